package model

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// IntelligenceStatus represents the current phase of the intelligence pipeline
// for a prospect.
type IntelligenceStatus string

const (
	StatusIdle        IntelligenceStatus = "idle"
	StatusResearching IntelligenceStatus = "researching"
	StatusGenerating  IntelligenceStatus = "generating"
	StatusComplete    IntelligenceStatus = "complete"
	StatusError       IntelligenceStatus = "error"
)

// transitions lists the allowed forward moves between statuses. Entering
// researching is allowed from every state: a re-run force-resets the pipeline.
var transitions = map[IntelligenceStatus][]IntelligenceStatus{
	StatusIdle:        {StatusResearching},
	StatusResearching: {StatusResearching, StatusGenerating, StatusError},
	StatusGenerating:  {StatusResearching, StatusComplete, StatusError},
	StatusComplete:    {StatusResearching},
	StatusError:       {StatusResearching},
}

// Valid reports whether s is a known status.
func (s IntelligenceStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether a poller should stop watching at s.
func (s IntelligenceStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// CanTransition reports whether the pipeline may move from one status to another.
func CanTransition(from, to IntelligenceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Grade is a letter score estimating wholesale sales potential.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// DefaultGrade is used when the model response carries no grade line.
const DefaultGrade = GradeC

// ParseGrade converts a single letter to a Grade. E and anything else
// outside A-D,F is rejected.
func ParseGrade(s string) (Grade, bool) {
	switch g := Grade(strings.ToUpper(strings.TrimSpace(s))); g {
	case GradeA, GradeB, GradeC, GradeD, GradeF:
		return g, true
	}
	return "", false
}

// Contacts holds the independently nullable contact fields of a prospect.
type Contacts struct {
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
	Facebook  *string `json:"facebook_page"`
	Instagram *string `json:"instagram_page"`
}

// Empty reports whether no contact field is populated.
func (c Contacts) Empty() bool {
	return c.Phone == nil && c.Email == nil && c.Facebook == nil && c.Instagram == nil
}

// Prospect is one candidate customer business, keyed by its website.
type Prospect struct {
	Website      string `json:"website"`
	BusinessName string `json:"business_name"`
	City         string `json:"city"`

	Status             IntelligenceStatus `json:"intelligence_status"`
	RunID              string             `json:"intelligence_run_id,omitempty"`
	LastGather         *time.Time         `json:"last_intelligence_gather,omitempty"`
	ScreenshotURL      *string            `json:"homepage_screenshot_url,omitempty"`
	ResearchData       json.RawMessage    `json:"tavily_research_data,omitempty"`
	AIMarkdown         *string            `json:"ai_markdown,omitempty"`
	Icebreakers        *string            `json:"icebreakers,omitempty"`
	AIGrade            *Grade             `json:"ai_grade,omitempty"`
	AIGradeReason      *string            `json:"ai_grade_reason,omitempty"`
	AIMusicFocus       *bool              `json:"ai_music_focus,omitempty"`
	Contacts

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IntelligenceResult is everything written in the generating → complete
// transition. Contact fields that are nil leave the stored value untouched.
type IntelligenceResult struct {
	Markdown    string
	Icebreakers string
	Grade       Grade
	GradeReason string
	MusicFocus  bool
	Contacts    Contacts
}

// ProspectUpdate carries CRM editor changes. Nil fields are left unchanged.
type ProspectUpdate struct {
	BusinessName *string  `json:"business_name,omitempty"`
	City         *string  `json:"city,omitempty"`
	Contacts     Contacts `json:"contacts"`
}

// IntelligenceRun is the audit row kept for every run.
type IntelligenceRun struct {
	ID          string             `json:"id"`
	Website     string             `json:"website"`
	RequestedBy string             `json:"requested_by"`
	Status      IntelligenceStatus `json:"status"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
}

// NormalizeWebsite reduces a URL or host to the bare lowercase domain used as
// the prospect key: "https://www.AcmeMusic.com/shop/" → "acmemusic.com".
func NormalizeWebsite(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	host := ""
	if err == nil {
		host = u.Hostname()
	}
	if host == "" {
		host = strings.TrimPrefix(strings.TrimPrefix(s, "http://"), "https://")
		if i := strings.IndexAny(host, "/?#"); i >= 0 {
			host = host[:i]
		}
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "www."), ".")
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

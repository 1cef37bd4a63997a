package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sells-group/prospector/internal/model"
)

var (
	// ErrNotFound is returned when no prospect exists for a website.
	ErrNotFound = errors.New("store: prospect not found")

	// ErrStaleRun is returned when a conditional run transition is rejected
	// because the prospect now belongs to a newer run or is no longer in the
	// expected prior status.
	ErrStaleRun = errors.New("store: stale intelligence run")
)

// ProspectFilter specifies criteria for listing prospects.
type ProspectFilter struct {
	Status model.IntelligenceStatus `json:"status,omitempty"`
	Grade  model.Grade              `json:"grade,omitempty"`
	Limit  int                      `json:"limit,omitempty"`
	Offset int                      `json:"offset,omitempty"`
}

// Store defines the persistence interface for prospects and their
// intelligence runs. Every run-scoped write is conditional on the run token
// set by BeginRun.
type Store interface {
	// Prospects
	CreateProspect(ctx context.Context, p model.Prospect) (*model.Prospect, error)
	GetProspect(ctx context.Context, website string) (*model.Prospect, error)
	ListProspects(ctx context.Context, filter ProspectFilter) ([]model.Prospect, error)
	UpdateProspect(ctx context.Context, website string, upd model.ProspectUpdate) (*model.Prospect, error)

	// Run transitions
	BeginRun(ctx context.Context, website, runID string, startedAt time.Time) error
	SaveResearch(ctx context.Context, website, runID string, data json.RawMessage) error
	Transition(ctx context.Context, website, runID string, from, to model.IntelligenceStatus) error
	CompleteRun(ctx context.Context, website, runID string, result model.IntelligenceResult) error
	FailRun(ctx context.Context, website, runID string) error

	// Run audit
	CreateRun(ctx context.Context, run model.IntelligenceRun) error
	FinishRun(ctx context.Context, runID string, status model.IntelligenceStatus, errMsg string) error
	ListRuns(ctx context.Context, website string, limit int) ([]model.IntelligenceRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// nullableJSON keeps empty research payloads out of the JSON columns.
func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}

// nullableString passes nil for unset contact values so COALESCE keeps the
// stored one.
func nullableString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

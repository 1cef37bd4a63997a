package pipeline

import (
	"regexp"
	"strings"

	"github.com/sells-group/prospector/internal/model"
)

const (
	// NoReportPlaceholder replaces an empty narrative.
	NoReportPlaceholder = "No report generated."
	// NoReasonPlaceholder replaces a missing reasoning line.
	NoReasonPlaceholder = "No reasoning provided."
	// NoIcebreakersSentinel marks a run whose model output had no usable
	// openers.
	NoIcebreakersSentinel = "No authentic detail found - manual review recommended."
)

var gradeRe = regexp.MustCompile(`(?i)\bgrade:\W*([a-f])\b`)

// "grade:" as a word, so "upgrade:" in prose stays narrative.
var gradeHeaderRe = regexp.MustCompile(`(?i)\bgrade:`)

// Leading list markers: "-", "*", "•", "1.", "2)".
var bulletRe = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)

type section int

const (
	sectionNone section = iota
	sectionIcebreakers
	sectionContact
)

// ParsedReport is the structured form of a model response.
type ParsedReport struct {
	Narrative   string
	Icebreakers string
	Grade       model.Grade
	Reason      string
	MusicFocus  bool
	Contacts    model.Contacts
}

// Result converts the report into the fields written on completion, with the
// given merged contacts.
func (r ParsedReport) Result(contacts model.Contacts) model.IntelligenceResult {
	return model.IntelligenceResult{
		Markdown:    r.Narrative,
		Icebreakers: r.Icebreakers,
		Grade:       r.Grade,
		GradeReason: r.Reason,
		MusicFocus:  r.MusicFocus,
		Contacts:    contacts,
	}
}

// ParseAnalysis splits model output into its sections with one pass over the
// lines. Headers are matched case-insensitively as substrings. Missing
// sections fall back to placeholders and never produce an error.
func ParseAnalysis(text string) ParsedReport {
	var (
		narrative   []string
		icebreakers []string
		report      = ParsedReport{Grade: model.DefaultGrade}
		current     = sectionNone
	)

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		lower := strings.ToLower(line)

		switch {
		// Single-line fields are captured wherever they appear and leave the
		// current section unchanged.
		case gradeHeaderRe.MatchString(line):
			if m := gradeRe.FindStringSubmatch(line); len(m) == 2 {
				if g, ok := model.ParseGrade(m[1]); ok {
					report.Grade = g
				}
			}
			continue
		case strings.Contains(lower, "music focus:"):
			v := strings.ToLower(valueAfter(line, "music focus:"))
			report.MusicFocus = strings.Contains(v, "true") || strings.Contains(v, "yes")
			continue
		case strings.Contains(lower, "reasoning:"):
			report.Reason = cleanValue(valueAfter(line, "reasoning:"))
			continue
		case strings.Contains(lower, "reason:"):
			report.Reason = cleanValue(valueAfter(line, "reason:"))
			continue
		case strings.Contains(lower, "icebreaker"):
			current = sectionIcebreakers
			continue
		case strings.Contains(lower, "contact information"):
			current = sectionContact
			continue
		}

		switch current {
		case sectionNone:
			narrative = append(narrative, strings.TrimRight(raw, " \t\r"))
		case sectionIcebreakers:
			if ib := strings.TrimSpace(bulletRe.ReplaceAllString(line, "")); ib != "" {
				icebreakers = append(icebreakers, ib)
			}
		case sectionContact:
			parseContactLine(line, &report.Contacts)
		}
	}

	report.Narrative = strings.TrimSpace(strings.Join(narrative, "\n"))
	if report.Narrative == "" {
		report.Narrative = NoReportPlaceholder
	}
	report.Icebreakers = strings.Join(icebreakers, "\n")
	if report.Icebreakers == "" {
		report.Icebreakers = NoIcebreakersSentinel
	}
	if report.Reason == "" {
		report.Reason = NoReasonPlaceholder
	}
	return report
}

// parseContactLine captures "Phone: ..." style lines. The value is kept as
// written after the colon; "not found" values are treated as absent.
func parseContactLine(line string, c *model.Contacts) {
	line = strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
	idx := strings.Index(line, ":")
	if idx < 0 {
		return
	}
	key := strings.ToLower(strings.Trim(line[:idx], "* _"))
	value := cleanValue(line[idx+1:])
	if strings.Contains(strings.ToLower(value), "not found") {
		value = ""
	}

	switch {
	case strings.Contains(key, "phone"):
		c.Phone = model.StringPtr(value)
	case strings.Contains(key, "email"):
		c.Email = model.StringPtr(value)
	case strings.Contains(key, "facebook"):
		c.Facebook = model.StringPtr(value)
	case strings.Contains(key, "instagram"):
		c.Instagram = model.StringPtr(value)
	}
}

// valueAfter returns the text following the first case-insensitive
// occurrence of the ASCII header in line. Offsets are taken on line itself,
// since lowercasing can change the byte length of non-ASCII text.
func valueAfter(line, header string) string {
	for i := 0; i+len(header) <= len(line); i++ {
		if strings.EqualFold(line[i:i+len(header)], header) {
			return line[i+len(header):]
		}
	}
	return ""
}

// cleanValue strips whitespace and markdown emphasis around a value.
func cleanValue(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_"))
}

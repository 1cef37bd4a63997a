package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/model"
)

const fullResponse = `Acme Music is a family-owned instrument shop in Springfield.
They sell guitars, drums and band instruments and run a lesson studio.

## Icebreakers
- I saw you just added a second lesson room. How is the waitlist?
- Your summer rock camp photos look like a blast.
1. How are the used Fender trade-ins moving this year?

## Contact Information
Phone: (555) 111-2222
Email: sales@acmemusic.com
Facebook: https://facebook.com/acmemusic
Instagram: https://instagram.com/acmemusic

Grade: B
Reasoning: Established retail shop with steady lesson traffic.
Music Focus: true`

func TestParseAnalysis_RoundTrip(t *testing.T) {
	r := ParseAnalysis(fullResponse)

	assert.Equal(t, "Acme Music is a family-owned instrument shop in Springfield.\n"+
		"They sell guitars, drums and band instruments and run a lesson studio.", r.Narrative)
	assert.Equal(t, "I saw you just added a second lesson room. How is the waitlist?\n"+
		"Your summer rock camp photos look like a blast.\n"+
		"How are the used Fender trade-ins moving this year?", r.Icebreakers)
	assert.Equal(t, model.GradeB, r.Grade)
	assert.Equal(t, "Established retail shop with steady lesson traffic.", r.Reason)
	assert.True(t, r.MusicFocus)

	require.NotNil(t, r.Contacts.Phone)
	require.NotNil(t, r.Contacts.Email)
	require.NotNil(t, r.Contacts.Facebook)
	require.NotNil(t, r.Contacts.Instagram)
	assert.Equal(t, "(555) 111-2222", *r.Contacts.Phone)
	assert.Equal(t, "sales@acmemusic.com", *r.Contacts.Email)
	assert.Equal(t, "https://facebook.com/acmemusic", *r.Contacts.Facebook)
	assert.Equal(t, "https://instagram.com/acmemusic", *r.Contacts.Instagram)
}

func TestParseAnalysis_MarkdownEmphasis(t *testing.T) {
	r := ParseAnalysis(`Report body.

**ICEBREAKERS:**
* Loved the ukulele wall.

**Contact Information:**
- **Phone:** 555-333-4444
- **Email:** Not found
- **Facebook:** not found on site

**Grade:** **a**
**Reason:** Big catalog.
**Music Focus:** Yes`)

	assert.Equal(t, "Report body.", r.Narrative)
	assert.Equal(t, "Loved the ukulele wall.", r.Icebreakers)
	assert.Equal(t, model.GradeA, r.Grade)
	assert.Equal(t, "Big catalog.", r.Reason)
	assert.True(t, r.MusicFocus)
	require.NotNil(t, r.Contacts.Phone)
	assert.Equal(t, "555-333-4444", *r.Contacts.Phone)
	assert.Nil(t, r.Contacts.Email)
	assert.Nil(t, r.Contacts.Facebook)
	assert.Nil(t, r.Contacts.Instagram)
}

func TestParseAnalysis_Defaults(t *testing.T) {
	r := ParseAnalysis("")

	assert.Equal(t, NoReportPlaceholder, r.Narrative)
	assert.Equal(t, NoIcebreakersSentinel, r.Icebreakers)
	assert.Equal(t, model.GradeC, r.Grade)
	assert.Equal(t, NoReasonPlaceholder, r.Reason)
	assert.False(t, r.MusicFocus)
	assert.True(t, r.Contacts.Empty())
}

func TestParseAnalysis_BlankIcebreakers(t *testing.T) {
	r := ParseAnalysis("Narrative.\n\nIcebreakers\n\n   \n\t\nContact Information\nPhone: Not found\nGrade: D")

	assert.Equal(t, NoIcebreakersSentinel, r.Icebreakers)
	assert.Equal(t, model.GradeD, r.Grade)
	assert.Nil(t, r.Contacts.Phone)
}

func TestParseAnalysis_Grade(t *testing.T) {
	tests := []struct {
		name string
		line string
		want model.Grade
	}{
		{"plain", "Grade: F", model.GradeF},
		{"lowercase", "grade: b", model.GradeB},
		{"with_modifier", "Grade: A- (strong)", model.GradeA},
		{"e_rejected", "Grade: E", model.GradeC},
		{"no_letter", "Grade: excellent", model.GradeC},
		{"missing", "Reasoning: fine", model.GradeC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAnalysis(tt.line).Grade)
		})
	}
}

func TestParseAnalysis_MusicFocus(t *testing.T) {
	assert.True(t, ParseAnalysis("Music Focus: TRUE").MusicFocus)
	assert.True(t, ParseAnalysis("music focus: yes, mostly guitars").MusicFocus)
	assert.False(t, ParseAnalysis("Music Focus: false").MusicFocus)
	assert.False(t, ParseAnalysis("Music Focus: no").MusicFocus)
}

func TestParseAnalysis_FieldLinesKeepSection(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		narrative   string
		icebreakers string
		grade       model.Grade
		reason      string
	}{
		{
			name:        "reason_inside_narrative",
			text:        "Acme Music sells guitars.\nThe main reason: they focus on school band rentals.\nThey also run lessons downtown.\n\nIcebreakers\n- How is rental season going?",
			narrative:   "Acme Music sells guitars.\nThey also run lessons downtown.",
			icebreakers: "How is rental season going?",
			grade:       model.GradeC,
			reason:      "they focus on school band rentals.",
		},
		{
			name:        "upgrade_is_not_a_grade",
			text:        "Acme Music recently completed a store upgrade: new showroom.\nThey stock pianos.\n\nIcebreakers\n- Congrats on the showroom.",
			narrative:   "Acme Music recently completed a store upgrade: new showroom.\nThey stock pianos.",
			icebreakers: "Congrats on the showroom.",
			grade:       model.GradeC,
			reason:      NoReasonPlaceholder,
		},
		{
			name:        "grade_between_narrative_lines",
			text:        "Intro line.\nGrade: A\nMore about the shop.",
			narrative:   "Intro line.\nMore about the shop.",
			icebreakers: NoIcebreakersSentinel,
			grade:       model.GradeA,
			reason:      NoReasonPlaceholder,
		},
		{
			name:        "icebreakers_continue_after_grade",
			text:        "Body\nIcebreakers\n- one\nGrade: B\n- two",
			narrative:   "Body",
			icebreakers: "one\ntwo",
			grade:       model.GradeB,
			reason:      NoReasonPlaceholder,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseAnalysis(tt.text)
			assert.Equal(t, tt.narrative, r.Narrative)
			assert.Equal(t, tt.icebreakers, r.Icebreakers)
			assert.Equal(t, tt.grade, r.Grade)
			assert.Equal(t, tt.reason, r.Reason)
		})
	}
}

func TestValueAfter(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"ascii", "Reason: Big catalog.", " Big catalog."},
		{"mixed_case", "**REASON:** steady", "** steady"},
		{"non_ascii_prefix", "İstanbul İİ Reason: Big catalog.", " Big catalog."},
		{"missing", "no header here", ""},
		{"at_end", "reason:", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valueAfter(tt.line, "reason:"))
		})
	}

	assert.Equal(t, "Big catalog.", ParseAnalysis("İİİ Reason: Big catalog.").Reason)
}

func TestParsedReport_Result(t *testing.T) {
	r := ParseAnalysis(fullResponse)
	merged := model.Contacts{Phone: strPtr("555-000-1111")}

	res := r.Result(merged)
	assert.Equal(t, r.Narrative, res.Markdown)
	assert.Equal(t, r.Icebreakers, res.Icebreakers)
	assert.Equal(t, model.GradeB, res.Grade)
	assert.Equal(t, r.Reason, res.GradeReason)
	assert.True(t, res.MusicFocus)
	assert.Equal(t, merged, res.Contacts)
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"acmemusic.com", "acmemusic.com"},
		{"https://www.AcmeMusic.com/shop/", "acmemusic.com"},
		{"http://acmemusic.com?ref=ad", "acmemusic.com"},
		{"  WWW.Strings-N-Things.co.uk  ", "strings-n-things.co.uk"},
		{"acmemusic.com.", "acmemusic.com"},
		{"https://acmemusic.com:8443/x", "acmemusic.com"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWebsite(tt.in))
		})
	}
}

func TestParseGrade(t *testing.T) {
	for _, in := range []string{"A", "b", " c ", "D", "f"} {
		g, ok := ParseGrade(in)
		assert.True(t, ok, in)
		assert.NotEmpty(t, g)
	}

	g, ok := ParseGrade("b")
	assert.True(t, ok)
	assert.Equal(t, GradeB, g)

	for _, in := range []string{"E", "", "AA", "A+", "1"} {
		_, ok := ParseGrade(in)
		assert.False(t, ok, in)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to IntelligenceStatus
		want     bool
	}{
		{StatusIdle, StatusResearching, true},
		{StatusIdle, StatusGenerating, false},
		{StatusIdle, StatusComplete, false},
		{StatusResearching, StatusGenerating, true},
		{StatusResearching, StatusError, true},
		{StatusResearching, StatusComplete, false},
		{StatusGenerating, StatusComplete, true},
		{StatusGenerating, StatusError, true},
		{StatusGenerating, StatusIdle, false},
		{StatusComplete, StatusResearching, true},
		{StatusComplete, StatusGenerating, false},
		{StatusError, StatusResearching, true},
		{StatusError, StatusComplete, false},
		{"bogus", StatusResearching, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusComplete.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusIdle.Terminal())
	assert.False(t, StatusResearching.Terminal())
	assert.False(t, StatusGenerating.Terminal())

	for _, s := range []IntelligenceStatus{StatusIdle, StatusResearching, StatusGenerating, StatusComplete, StatusError} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, IntelligenceStatus("stuck").Valid())
}

func TestContactsEmpty(t *testing.T) {
	assert.True(t, Contacts{}.Empty())
	assert.False(t, Contacts{Email: StringPtr("shop@acmemusic.com")}.Empty())
	assert.False(t, Contacts{Instagram: StringPtr("https://instagram.com/acme")}.Empty())
}

func TestStringPtrAndDeref(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Nil(t, StringPtr("  \t"))

	p := StringPtr("  (555) 123-4567 ")
	if assert.NotNil(t, p) {
		assert.Equal(t, "(555) 123-4567", *p)
	}

	assert.Equal(t, "", Deref(nil))
	assert.Equal(t, "x", Deref(StringPtr("x")))
}

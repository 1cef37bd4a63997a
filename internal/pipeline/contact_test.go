package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospector/internal/model"
)

func TestExtractContacts_Phone(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *string
	}{
		{"parens", "Call us at (555) 111-2222 today", strPtr("(555) 111-2222")},
		{"dashes", "phone 555-111-2222", strPtr("555-111-2222")},
		{"dots", "555.111.2222", strPtr("555.111.2222")},
		{"plus_one", "Tel: +1 555 111 2222.", strPtr("+1 555 111 2222")},
		{"leading_one", "1-555-111-2222", strPtr("1-555-111-2222")},
		{"bare_digits", "fax 5551112222 now", strPtr("5551112222")},
		{"first_wins", "555-111-2222 or 555-333-4444", strPtr("555-111-2222")},
		{"too_long", "order 123456789012345", nil},
		{"too_short", "call 555-1222", nil},
		{"fullwidth", "Call ５５５-１１１-２２２２", strPtr("555-111-2222")},
		{"none", "no number here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractContacts(tt.text).Phone)
		})
	}
}

func TestExtractContacts_Email(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *string
	}{
		{"simple", "Email Sales@AcmeMusic.com for pricing", strPtr("sales@acmemusic.com")},
		{"trailing_period", "write to info@acmemusic.com.", strPtr("info@acmemusic.com")},
		{"skips_images", "logo@2x.png then hello@acmemusic.com", strPtr("hello@acmemusic.com")},
		{"first_wins", "a@b.io and c@d.io", strPtr("a@b.io")},
		{"next_word_not_joined", "Email info@acme.com.Visit our store", strPtr("info@acme.com")},
		{"uppercase_tld", "WRITE INFO@ACME.COM NOW", strPtr("info@acme.com")},
		{"country_tld", "sales@acmemusic.co.uk, ask for Sam", strPtr("sales@acmemusic.co.uk")},
		{"none", "no address", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractContacts(tt.text).Email)
		})
	}
}

func TestExtractContacts_Social(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		facebook  *string
		instagram *string
	}{
		{
			name:      "both",
			text:      "Follow https://www.facebook.com/AcmeMusic and https://instagram.com/acme.music.",
			facebook:  strPtr("https://www.facebook.com/AcmeMusic"),
			instagram: strPtr("https://instagram.com/acme.music"),
		},
		{
			name:     "no_scheme",
			text:     "facebook.com/acmemusic",
			facebook: strPtr("facebook.com/acmemusic"),
		},
		{
			name:     "skips_share_links",
			text:     "https://www.facebook.com/sharer/sharer.php?u=x then https://facebook.com/acmemusic/",
			facebook: strPtr("https://facebook.com/acmemusic/"),
		},
		{
			name:      "mobile",
			text:      "m.facebook.com/acme, www.instagram.com/acme_music",
			facebook:  strPtr("m.facebook.com/acme"),
			instagram: strPtr("www.instagram.com/acme_music"),
		},
		{
			name:      "share_prefix_is_a_page",
			text:      "Follow us https://facebook.com/sharedrhythmmusic or instagram.com/p/abc123 and instagram.com/acme",
			facebook:  strPtr("https://facebook.com/sharedrhythmmusic"),
			instagram: strPtr("instagram.com/acme"),
		},
		{
			name:     "share_segments_skipped",
			text:     "facebook.com/share/xyz facebook.com/share.php?u=1 facebook.com/tr?id=9 facebook.com/acme",
			facebook: strPtr("facebook.com/acme"),
		},
		{
			name:      "instagram_app_paths_skipped",
			text:      "instagram.com/reel/C1 instagram.com/explore/tags/guitar instagram.com/stories/acme instagram.com/acme_music",
			instagram: strPtr("instagram.com/acme_music"),
		},
		{
			name: "only_post_links",
			text: "https://www.instagram.com/p/abc123/",
		},
		{
			name: "none",
			text: "see our website",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ExtractContacts(tt.text)
			assert.Equal(t, tt.facebook, c.Facebook)
			assert.Equal(t, tt.instagram, c.Instagram)
		})
	}
}

func TestExtractContacts_EmptyInput(t *testing.T) {
	assert.True(t, ExtractContacts("").Empty())
	assert.True(t, ExtractContacts("   \n\t").Empty())
}

func TestExtractContacts_Idempotent(t *testing.T) {
	text := "Acme Music (555) 111-2222 sales@acmemusic.com https://facebook.com/acmemusic instagram.com/acmemusic"

	first := ExtractContacts(text)
	second := ExtractContacts(text)

	assert.Equal(t, first, second)
	assert.False(t, first.Empty())
}

func TestMergeContacts(t *testing.T) {
	research := model.Contacts{Phone: strPtr("555-111-2222")}
	existing := model.Contacts{Phone: strPtr("555-000-0000"), Email: strPtr("old@acmemusic.com")}
	claimed := model.Contacts{
		Phone:     strPtr("555-999-8888"),
		Email:     strPtr("model@acmemusic.com"),
		Instagram: strPtr("instagram.com/acme"),
	}

	got := MergeContacts(research, existing, claimed)

	assert.Equal(t, "555-111-2222", *got.Phone, "research text beats the model")
	assert.Equal(t, "old@acmemusic.com", *got.Email)
	assert.Equal(t, "instagram.com/acme", *got.Instagram)
	assert.Nil(t, got.Facebook)
}

func TestMergeContacts_IgnoresEmptyStrings(t *testing.T) {
	got := MergeContacts(model.Contacts{Phone: strPtr("")}, model.Contacts{Phone: strPtr("555-111-2222")})
	assert.Equal(t, "555-111-2222", *got.Phone)

	assert.True(t, MergeContacts().Empty())
}

func strPtr(s string) *string { return &s }

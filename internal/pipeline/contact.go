package pipeline

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/prospector/internal/model"
)

var (
	// Ten significant digits with an optional +1/1 prefix. The outer groups
	// keep the match from starting or ending inside a longer digit run.
	contactPhoneRe = regexp.MustCompile(`(?:^|[^0-9+])((?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4})(?:$|[^0-9])`)
	// The TLD is all lowercase or all uppercase and must end at a non-letter,
	// so "info@acme.com.Visit" stops at ".com".
	contactEmailRe = regexp.MustCompile(`([A-Za-z0-9._%+\-]+@(?:[A-Za-z0-9\-]+\.)+(?:[a-z]{2,}|[A-Z]{2,}))(?:[^A-Za-z]|$)`)
	facebookRe     = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|m\.)?facebook\.com/[A-Za-z0-9_.\-/?=]+`)
	instagramRe    = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?instagram\.com/([A-Za-z0-9_.]+)`)
)

// Asset filenames like logo@2x.png look like addresses.
var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}

// First path segments of Facebook widget and share links.
var facebookReserved = map[string]bool{
	"sharer": true, "sharer.php": true, "share": true, "share.php": true,
	"plugins": true, "tr": true, "dialog": true,
}

// First path segments of Instagram posts and app pages.
var instagramReserved = map[string]bool{
	"p": true, "reel": true, "reels": true, "explore": true,
	"stories": true, "tv": true, "accounts": true,
}

// ExtractContacts scans text for the first phone number, email address,
// Facebook page and Instagram profile, in that order. Fields with no match
// are nil. The input is NFKC-normalized first so full-width digits and
// punctuation match.
func ExtractContacts(text string) model.Contacts {
	if strings.TrimSpace(text) == "" {
		return model.Contacts{}
	}
	text = norm.NFKC.String(text)

	return model.Contacts{
		Phone:     firstPhone(text),
		Email:     firstEmail(text),
		Facebook:  firstFacebook(text),
		Instagram: firstInstagram(text),
	}
}

func firstPhone(text string) *string {
	m := contactPhoneRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	return model.StringPtr(m[1])
}

func firstEmail(text string) *string {
	for _, m := range contactEmailRe.FindAllStringSubmatch(text, -1) {
		email := strings.ToLower(strings.TrimRight(m[1], "."))
		if hasAnySuffix(email, imageSuffixes) {
			continue
		}
		return &email
	}
	return nil
}

func firstFacebook(text string) *string {
	for _, m := range facebookRe.FindAllString(text, -1) {
		if facebookReserved[firstSegment(m, "facebook.com/")] {
			continue
		}
		u := strings.TrimRight(m, ".,;:?")
		if strings.HasSuffix(strings.ToLower(u), "facebook.com/") {
			continue
		}
		return &u
	}
	return nil
}

func firstInstagram(text string) *string {
	for _, m := range instagramRe.FindAllStringSubmatch(text, -1) {
		if instagramReserved[strings.ToLower(m[1])] {
			continue
		}
		u := strings.TrimRight(m[0], ".")
		if strings.HasSuffix(strings.ToLower(u), "instagram.com/") {
			continue
		}
		return &u
	}
	return nil
}

// firstSegment returns the lowercased path segment after host in u.
func firstSegment(u, host string) string {
	lower := strings.ToLower(u)
	i := strings.Index(lower, host)
	if i < 0 {
		return ""
	}
	seg := lower[i+len(host):]
	if j := strings.IndexAny(seg, "/?#"); j >= 0 {
		seg = seg[:j]
	}
	return seg
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// Package htmlsanitize cleans untrusted display text before it is stored.
// Profile fields arrive from the identity provider and end up rendered in the
// dashboard, so every tag is stripped.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxFieldLength caps a sanitized profile field, in runes.
const MaxFieldLength = 256

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText strips all markup from s, unescapes the entities bluemonday
// leaves behind, trims whitespace and truncates to MaxFieldLength runes.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	out := html.UnescapeString(getPolicy().Sanitize(s))
	out = strings.TrimSpace(out)
	if utf8.RuneCountInString(out) > MaxFieldLength {
		out = string([]rune(out)[:MaxFieldLength])
	}
	return out
}

// URL returns s if it is an absolute https URL without markup, else "".
func URL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "https://") {
		return ""
	}
	if strings.ContainsAny(s, "<>\"' ") {
		return ""
	}
	return s
}

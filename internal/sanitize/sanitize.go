// Package sanitize turns text received from outside the app (identity
// service error messages, callback parameters) into plain text that is safe
// to show to the user. Uses bluemonday's strict policy to drop any markup.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxTextLength caps sanitized text, in runes.
const MaxTextLength = 300

// policy is the shared strict policy. Initialized once via sync.Once.
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

// Text strips all HTML from input, collapses whitespace, and truncates the
// result to MaxTextLength runes. The output is plain text: entities are
// decoded, so it still needs escaping when written into HTML.
func Text(input string) string {
	if input == "" {
		return ""
	}

	plain := html.UnescapeString(getPolicy().Sanitize(input))
	plain = strings.Join(strings.Fields(plain), " ")

	if utf8.RuneCountInString(plain) > MaxTextLength {
		runes := []rune(plain)
		plain = strings.TrimSpace(string(runes[:MaxTextLength-1])) + "…"
	}
	return plain
}

// Package sanitize cleans user-supplied text before it is embedded in
// filenames. Uses bluemonday to strip markup from photographer labels, since
// the browser client renders the label decoded from every filename, and then
// removes characters that would break the on-disk naming convention.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultLabel is used when a label is absent or sanitizes to nothing.
const DefaultLabel = "undefined"

// MaxLabelBytes bounds the encoded label. With the timestamp, token,
// extension and temp-file affixes added, names stay under the 255-byte
// NAME_MAX of Linux filesystems whatever script the label is written in.
const MaxLabelBytes = 128

// policy is the singleton bluemonday policy for stripping markup.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// StripHTML removes all tags from s and decodes entities bluemonday
// escaped along the way, so "Ana &amp; Bo" comes back as "Ana & Bo".
func StripHTML(s string) string {
	return html.UnescapeString(getPolicy().Sanitize(s))
}

// Label turns a free-text photographer name into a safe filename prefix.
//
// The "_" delimiter, path separators, reserved filename characters and
// control characters become "-", runs of whitespace collapse to one space,
// and the result is trimmed and truncated to MaxLabelBytes on a rune
// boundary. A blank result yields DefaultLabel.
func Label(raw string) string {
	s := StripHTML(raw)

	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		case r == '_' || r == '/' || r == '\\' || r == ':' || r == '*' ||
			r == '?' || r == '"' || r == '<' || r == '>' || r == '|' ||
			unicode.IsControl(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
		lastSpace = false
	}

	out := strings.TrimSpace(b.String())
	out = strings.Trim(out, ".")
	out = strings.TrimSpace(truncate(out, MaxLabelBytes))
	if out == "" {
		return DefaultLabel
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package docket

import (
	"regexp"
	"strings"
)

var multiSpaceRe = regexp.MustCompile(`\s+`)

// normalizeKey builds the match key for case numbers and names:
// invisible characters removed, whitespace collapsed, case folded.
// "CRIM   001" and "crim 001" compare equal.
func normalizeKey(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, "​", "")
	s = strings.TrimSpace(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(s)
}

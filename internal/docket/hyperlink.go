package docket

import (
	"fmt"
	"regexp"
	"strings"
)

// The store keeps links as =HYPERLINK("url","Label") formula cells.
// Encoding always goes through Formula so a bare URL string is never
// written; decoding tolerates single quotes and plain URLs because
// hand-edited rows exist.

// Formula encodes a URL as a hyperlink formula cell. An empty URL
// yields an empty cell.
func Formula(url, label string) string {
	if url == "" {
		return ""
	}
	return fmt.Sprintf(`=HYPERLINK(%q, %q)`, url, label)
}

var (
	hyperlinkDoubleRe = regexp.MustCompile(`(?i)HYPERLINK\s*\(\s*"([^"]+)"`)
	hyperlinkSingleRe = regexp.MustCompile(`(?i)HYPERLINK\s*\(\s*'([^']+)'`)
	hyperlinkLabelRe  = regexp.MustCompile(`(?i)HYPERLINK\(\s*"[^"]+"\s*,\s*"([^"]+)"`)
	plainURLRe        = regexp.MustCompile(`(https?://[^\s"']+)`)
)

// ExtractURL pulls the underlying URL out of a hyperlink-formula cell,
// falling back to a bare URL if no formula is present. Returns "" when
// the cell holds no link.
func ExtractURL(cell string) string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return ""
	}
	if m := hyperlinkDoubleRe.FindStringSubmatch(cell); m != nil {
		if u := strings.TrimSpace(m[1]); isHTTP(u) {
			return u
		}
	}
	if m := hyperlinkSingleRe.FindStringSubmatch(cell); m != nil {
		if u := strings.TrimSpace(m[1]); isHTTP(u) {
			return u
		}
	}
	if m := plainURLRe.FindStringSubmatch(cell); m != nil {
		if u := strings.TrimRight(m[1], `")'`); isHTTP(u) {
			return u
		}
	}
	return ""
}

// ExtractLabel returns the visible text of a cell: the formula label
// when present, otherwise the cell itself.
func ExtractLabel(cell string) string {
	if m := hyperlinkLabelRe.FindStringSubmatch(cell); m != nil {
		return m[1]
	}
	return cell
}

func isHTTP(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

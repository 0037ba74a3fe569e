// Package extract pulls document links out of filing text and fetches
// document content for classification.
package extract

import (
	"context"
	"regexp"
)

// Document links are cut at the document id: tab fragments, edit
// suffixes and share parameters are noise for both storage and
// deduplication.
var docLinkRe = regexp.MustCompile(`https://docs\.google\.com/document/d/[A-Za-z0-9_-]+|https://drive\.google\.com/file/d/[A-Za-z0-9_-]+|https://drive\.google\.com/open\?id=[A-Za-z0-9_-]+`)

// Links returns the document links found in text, in order, truncated
// to their canonical form.
func Links(text string) []string {
	return docLinkRe.FindAllString(text, -1)
}

// First returns the first document link in text, or "".
func First(text string) string {
	return docLinkRe.FindString(text)
}

// Extractor fetches the plain text of a linked document.
type Extractor interface {
	DocumentText(ctx context.Context, url string) (string, error)
}

// Null is an Extractor for deployments without document access; the
// classifier then works from the filing message alone.
type Null struct{}

func (Null) DocumentText(ctx context.Context, url string) (string, error) {
	return "", nil
}

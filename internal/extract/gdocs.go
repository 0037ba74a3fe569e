package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

var docIDRe = regexp.MustCompile(`/document/d/([A-Za-z0-9_-]+)`)

// GoogleDocs fetches document text through the Docs API with
// service-account credentials.
type GoogleDocs struct {
	svc *docs.Service
}

func NewGoogleDocs(ctx context.Context, credentialsFile string) (*GoogleDocs, error) {
	svc, err := docs.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(docs.DocumentsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("docs service: %w", err)
	}
	return &GoogleDocs{svc: svc}, nil
}

func (g *GoogleDocs) DocumentText(ctx context.Context, url string) (string, error) {
	m := docIDRe.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("not a document url: %s", url)
	}
	doc, err := g.svc.Documents.Get(m[1]).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetch document: %w", err)
	}
	var sb strings.Builder
	for _, elem := range doc.Body.Content {
		if elem.Paragraph == nil {
			continue
		}
		for _, pe := range elem.Paragraph.Elements {
			if pe.TextRun != nil {
				sb.WriteString(pe.TextRun.Content)
			}
		}
	}
	return sb.String(), nil
}

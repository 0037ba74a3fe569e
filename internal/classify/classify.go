// Package classify turns free-form filing text into a structured case
// draft. The real implementation calls a language-model endpoint; a
// static implementation serves test deployments.
package classify

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"docketline/internal/domain"
)

// Classifier extracts a case draft from filing text. A failed
// extraction is a successful call with Success=false and Errors set;
// the error return is for transport faults only.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.CaseInfo, error)
}

// maxInput caps the text sent to the model. Filings are short; the cap
// protects against pasted walls of text.
const maxInput = 600

var (
	fenceRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	lineKVRe = regexp.MustCompile(`(?mi)^\s*"?([a-z_ ]+)"?\s*[:=]\s*"?([^"\n]+?)"?\s*,?\s*$`)
)

type rawResult struct {
	CaseName   string `json:"case_name"`
	CaseNumber string `json:"case_number"`
	CaseType   string `json:"case_type"`
}

// Truncate caps filing text at the model input limit.
func Truncate(text string) string {
	if len(text) > maxInput {
		return text[:maxInput]
	}
	return text
}

// parseResponse interprets model output: code fences stripped, JSON
// first, loose "key: value" lines as fallback. Models drift between
// the two formats.
func parseResponse(out string) domain.CaseInfo {
	out = strings.TrimSpace(out)
	if m := fenceRe.FindStringSubmatch(out); m != nil {
		out = strings.TrimSpace(m[1])
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		for _, m := range lineKVRe.FindAllStringSubmatch(out, -1) {
			key := strings.ToLower(strings.TrimSpace(m[1]))
			val := strings.TrimSpace(m[2])
			switch key {
			case "case_name", "case name", "name":
				raw.CaseName = val
			case "case_number", "case number", "number":
				raw.CaseNumber = val
			case "case_type", "case type", "type":
				raw.CaseType = val
			}
		}
	}

	info := domain.CaseInfo{
		Name:   strings.TrimSpace(raw.CaseName),
		Number: strings.TrimSpace(raw.CaseNumber),
		Type:   domain.ParseCaseType(raw.CaseType),
	}
	if info.Type == domain.TypeUnknown && info.Number != "" {
		info.Type = domain.TypeFromNumber(info.Number)
	}
	if info.Name == "" {
		info.Errors = append(info.Errors, "case name not found in filing")
	}
	if info.Number == "" && info.Type != domain.TypeSC {
		info.Errors = append(info.Errors, "case number not found in filing")
	}
	info.Success = len(info.Errors) == 0
	return info
}

// Static returns a fixed draft, used when the classifier is configured
// for test deployments and in unit tests.
type Static struct {
	Info domain.CaseInfo
}

func (s Static) Classify(ctx context.Context, text string) (domain.CaseInfo, error) {
	return s.Info, nil
}

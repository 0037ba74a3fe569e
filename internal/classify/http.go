package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docketline/internal/domain"
)

const defaultTimeout = 30 * time.Second

const promptTemplate = `Extract the case name and case number from this court filing.
Respond with JSON only: {"case_name": "...", "case_number": "...", "case_type": "criminal|civil|sc"}.
Use "sc" when the filing is a supreme court petition. Leave a field empty when it is absent.

Filing:
%s`

// HTTP calls a language-model completion endpoint to classify filings.
type HTTP struct {
	Endpoint string
	Model    string
	Client   *http.Client
}

func NewHTTP(endpoint, model string) *HTTP {
	return &HTTP{
		Endpoint: endpoint,
		Model:    model,
		Client:   &http.Client{Timeout: defaultTimeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (h *HTTP) Classify(ctx context.Context, text string) (domain.CaseInfo, error) {
	body, err := json.Marshal(generateRequest{
		Model:  h.Model,
		Prompt: fmt.Sprintf(promptTemplate, Truncate(text)),
	})
	if err != nil {
		return domain.CaseInfo{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.CaseInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := h.Client.Do(req)
	if err != nil {
		return domain.CaseInfo{}, fmt.Errorf("classifier request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return domain.CaseInfo{}, fmt.Errorf("classifier status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out generateResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return domain.CaseInfo{}, fmt.Errorf("classifier response: %w", err)
	}
	return parseResponse(out.Response), nil
}

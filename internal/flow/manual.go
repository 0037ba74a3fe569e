package flow

import (
	"context"

	"docketline/internal/domain"
)

// AddCase dockets a case directly, bypassing review. Serves the manual
// add command for filings that arrive outside the submission channel.
func (e *Engine) AddCase(ctx context.Context, c domain.Case, actorID string) domain.Result {
	if c.Judge == "" {
		c.Judge = "NA"
	}
	if c.Status == "" && c.StatusText == "" {
		c.Status = domain.StatusNotAssigned
	}
	if c.FilingDate == "" {
		c.FilingDate = filingDate(e.Clock.Now())
	}
	res := e.Store.AppendCase(ctx, c)
	if res.Success {
		e.audit(ctx, "case_added_manual", c.Number, actorID, map[string]any{"name": c.Name})
	}
	return res
}

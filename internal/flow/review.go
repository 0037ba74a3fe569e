package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docketline/internal/domain"
	"docketline/internal/extract"
	"docketline/internal/guard"
	"docketline/internal/state"
	"docketline/internal/transport"
)

// reviewPayload is the context shared by the controls of one review
// card. Controls lists every correlation id minted for the card so a
// terminal action can consume all of them.
type reviewPayload struct {
	Action     string               `json:"action"`
	Draft      domain.CaseInfo      `json:"draft"`
	FilingLink string               `json:"filing_link,omitempty"`
	FilingDate string               `json:"filing_date"`
	Minted     bool                 `json:"minted,omitempty"`
	Edited     bool                 `json:"edited,omitempty"`
	FilerID    string               `json:"filer_id"`
	Filing     transport.MessageRef `json:"filing"`
	Card       transport.MessageRef `json:"card"`
	Controls   []string             `json:"controls"`
}

// HandleFiling ingests a submission-channel message: extract the
// filing document, classify it, and either short-circuit (supreme
// court petitions) or post a review card to the internal board. A
// classification failure still reaches the board as an empty draft.
func (e *Engine) HandleFiling(ctx context.Context, ev transport.Event) error {
	if ev.Origin.ChannelID != e.Cfg.Channels.Submission {
		return nil
	}

	link := extractFilingLink(ev)
	text := ev.Text
	if link != "" {
		docText, err := e.Extractor.DocumentText(ctx, link)
		if err != nil {
			e.log.Warn("document fetch failed, classifying from message", "link", link, "error", err)
		} else if docText != "" {
			text = docText
		}
	}

	info, err := e.Classifier.Classify(ctx, text)
	if err != nil {
		e.log.Error("classify filing", "error", err)
		info = domain.CaseInfo{Errors: []string{"the filing could not be classified"}}
	}

	if info.Type == domain.TypeSC {
		e.audit(ctx, "sc_petition_received", "", ev.Actor.ID, map[string]any{"name": info.Name})
		_, err := e.Msg.Reply(ctx, ev.Origin, transport.Card{
			Body: "Supreme Court petition received. It has been forwarded without docketing.",
		})
		return err
	}

	// a failed classification still enters review as an unknown case;
	// reviewers repair the draft through Edit before accepting
	minted := false
	if info.Success && info.Number == "" {
		next, res := e.Store.NextCaseNumber(ctx, info.Type)
		if !res.Success {
			return fmt.Errorf("next case number: %s", res.Message)
		}
		info.Number = next
		minted = true
	}

	p := reviewPayload{
		Draft:      info,
		FilingLink: link,
		FilingDate: filingDate(e.Clock.Now()),
		Minted:     minted,
		FilerID:    ev.Actor.ID,
		Filing:     ev.Origin,
	}
	return e.postReviewCard(ctx, p)
}

// postReviewCard mints the card's controls, posts it to the internal
// review channel and binds the contexts to the posted message.
func (e *Engine) postReviewCard(ctx context.Context, p reviewPayload) error {
	ids := make(map[string]string, 3)
	for _, action := range []string{"accept", "deny", "edit"} {
		p.Action = action
		id, err := e.mint(ctx, state.KindReview, p)
		if err != nil {
			return err
		}
		ids[action] = id
		p.Controls = append(p.Controls, id)
	}

	ref, err := e.Msg.Send(ctx, e.Cfg.Channels.InternalReview, reviewCard(p, ids))
	if err != nil {
		return err
	}

	// rebind with the card ref and full control list
	p.Card = ref
	for _, action := range []string{"accept", "deny", "edit"} {
		p.Action = action
		if err := e.State.PutContext(ctx, ids[action], state.KindReview, p); err != nil {
			return err
		}
	}
	e.audit(ctx, "filing_received", p.Draft.Number, p.FilerID, map[string]any{"name": p.Draft.Name})
	return nil
}

func reviewCard(p reviewPayload, ids map[string]string) transport.Card {
	title := "New Case Filing"
	if p.Edited {
		title = "New Case Filing (edited)"
	}
	fields := []transport.Field{
		{Name: "Case Name", Value: p.Draft.Name},
		{Name: "Case Number", Value: p.Draft.Number},
		{Name: "Filed", Value: p.FilingDate},
	}
	if p.FilingLink != "" {
		fields = append(fields, transport.Field{Name: "Filing", Value: p.FilingLink})
	}
	if len(p.Draft.Errors) > 0 {
		fields = append(fields, transport.Field{Name: "Issues", Value: strings.Join(p.Draft.Errors, "; ")})
	}
	return transport.Card{
		Title:  title,
		Fields: fields,
		Buttons: []transport.Button{
			{Label: "Accept", Style: "success", CorrelationID: ids["accept"]},
			{Label: "Deny", Style: "danger", CorrelationID: ids["deny"]},
			{Label: "Edit", Style: "secondary", CorrelationID: ids["edit"]},
		},
	}
}

func (e *Engine) handleReviewEvent(ctx context.Context, ev transport.Event, raw json.RawMessage) error {
	var p reviewPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	if denied, err := e.denyGate(ctx, ev, guard.RequireReviewer(e.Cfg, ev.Actor.ID)); denied {
		return err
	}

	switch p.Action {
	case "accept":
		return e.acceptFiling(ctx, ev, p)
	case "deny":
		p.Action = "deny_submit"
		id, err := e.mint(ctx, state.KindReview, p)
		if err != nil {
			return err
		}
		return e.Msg.OpenForm(ctx, ev, transport.Form{
			Title:         "Deny Filing",
			CorrelationID: id,
			Inputs: []transport.Input{
				{Name: "reason", Label: "Reason shown to the filer", Required: true, Paragraph: true},
			},
		})
	case "deny_submit":
		return e.denyFiling(ctx, ev, p)
	case "edit":
		p.Action = "edit_submit"
		id, err := e.mint(ctx, state.KindReview, p)
		if err != nil {
			return err
		}
		return e.Msg.OpenForm(ctx, ev, transport.Form{
			Title:         "Edit Case Draft",
			CorrelationID: id,
			Inputs: []transport.Input{
				{Name: "case_name", Label: "Case Name", Value: p.Draft.Name, Required: true},
				{Name: "case_number", Label: "Case Number", Value: p.Draft.Number, Required: true},
				{Name: "filing_link", Label: "Filing Link", Value: p.FilingLink},
			},
		})
	case "edit_submit":
		return e.editFiling(ctx, ev, p)
	default:
		return fmt.Errorf("unknown review action %q", p.Action)
	}
}

// acceptFiling is the accept transition: docket the case, advance the
// counter when the number was minted from it, close the card, notify
// the filer, then start assignment.
func (e *Engine) acceptFiling(ctx context.Context, ev transport.Event, p reviewPayload) error {
	if !p.Draft.Success {
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID,
			"The draft has unresolved issues. Edit it before accepting.")
	}
	res := e.Store.AppendCase(ctx, domain.Case{
		Judge:      "NA",
		Status:     domain.StatusNotAssigned,
		Name:       p.Draft.Name,
		Number:     p.Draft.Number,
		FilingDate: p.FilingDate,
		FilingLink: p.FilingLink,
	})
	if !res.Success {
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, res.Message)
	}

	if p.Minted {
		if advRes := e.Store.AdvanceCaseNumber(ctx, p.Draft.Type); !advRes.Success {
			e.log.Error("advance case number", "type", p.Draft.Type, "message", advRes.Message)
		}
	}

	e.closeReviewCard(ctx, p, fmt.Sprintf("Accepted by %s", actorLabel(ev.Actor)))
	e.consume(ctx, ev.CorrelationID)
	for _, id := range p.Controls {
		e.consume(ctx, id)
	}

	if _, err := e.Msg.Reply(ctx, p.Filing, transport.Card{
		Body: fmt.Sprintf("Your filing has been accepted and docketed as %s.", p.Draft.Number),
	}); err != nil {
		e.log.Error("notify filer", "error", err)
	}

	e.audit(ctx, "case_accepted", p.Draft.Number, ev.Actor.ID, map[string]any{"name": p.Draft.Name})
	return e.StartAssignment(ctx, assignmentSeed{
		CaseName:   p.Draft.Name,
		CaseNumber: p.Draft.Number,
		FilingLink: p.FilingLink,
	})
}

func (e *Engine) denyFiling(ctx context.Context, ev transport.Event, p reviewPayload) error {
	reason := strings.TrimSpace(ev.Fields["reason"])
	if reason == "" {
		reason = "No reason given."
	}

	e.closeReviewCard(ctx, p, fmt.Sprintf("Denied by %s", actorLabel(ev.Actor)))
	e.consume(ctx, ev.CorrelationID)
	for _, id := range p.Controls {
		e.consume(ctx, id)
	}

	if _, err := e.Msg.Reply(ctx, p.Filing, transport.Card{
		Body: fmt.Sprintf("Your filing was denied: %s", reason),
	}); err != nil {
		e.log.Error("notify filer", "error", err)
	}
	e.audit(ctx, "case_denied", p.Draft.Number, ev.Actor.ID, map[string]any{"reason": reason})
	return nil
}

// editFiling rewrites the draft on every live control of the card and
// refreshes the card content. The card stays open for accept or deny.
func (e *Engine) editFiling(ctx context.Context, ev transport.Event, p reviewPayload) error {
	if v, ok := ev.Fields["case_name"]; ok && strings.TrimSpace(v) != "" {
		p.Draft.Name = strings.TrimSpace(v)
	}
	if v, ok := ev.Fields["case_number"]; ok && strings.TrimSpace(v) != "" {
		p.Draft.Number = strings.TrimSpace(v)
		p.Draft.Type = domain.TypeFromNumber(p.Draft.Number)
		p.Minted = false
	}
	if v, ok := ev.Fields["filing_link"]; ok {
		p.FilingLink = strings.TrimSpace(v)
	}
	if p.Draft.Name != "" && p.Draft.Number != "" {
		p.Draft.Success = true
		p.Draft.Errors = nil
	}
	p.Edited = true
	e.consume(ctx, ev.CorrelationID)

	ids := make(map[string]string, 3)
	for i, action := range []string{"accept", "deny", "edit"} {
		if i < len(p.Controls) {
			ids[action] = p.Controls[i]
		}
	}
	for _, action := range []string{"accept", "deny", "edit"} {
		p.Action = action
		if err := e.State.PutContext(ctx, ids[action], state.KindReview, p); err != nil {
			return err
		}
	}
	if err := e.Msg.Edit(ctx, p.Card, reviewCard(p, ids)); err != nil {
		return err
	}
	e.audit(ctx, "filing_edited", p.Draft.Number, ev.Actor.ID, nil)
	return nil
}

// closeReviewCard replaces the card with its outcome, controls gone.
func (e *Engine) closeReviewCard(ctx context.Context, p reviewPayload, outcome string) {
	card := transport.Card{
		Title: "Case Filing",
		Body:  outcome,
		Fields: []transport.Field{
			{Name: "Case Name", Value: p.Draft.Name},
			{Name: "Case Number", Value: p.Draft.Number},
		},
	}
	if err := e.Msg.Edit(ctx, p.Card, card); err != nil {
		e.log.Error("close review card", "error", err)
	}
}

func extractFilingLink(ev transport.Event) string {
	if link := extract.First(ev.Text); link != "" {
		return link
	}
	for _, a := range ev.Attachments {
		if link := extract.First(a); link != "" {
			return link
		}
	}
	return ""
}

func actorLabel(a transport.Actor) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

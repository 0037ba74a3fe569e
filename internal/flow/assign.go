package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docketline/internal/docket"
	"docketline/internal/guard"
	"docketline/internal/state"
	"docketline/internal/transport"
)

// denyDebounce is the pause between a declined proposal and the next
// one, so a full pool of declines does not hammer the transport.
const denyDebounce = time.Second

type assignmentSeed struct {
	CaseName   string
	CaseNumber string
	FilingLink string
	// Notify, when set, is another rendering of the case that gets a
	// best-effort refresh once a judge accepts.
	Notify *transport.MessageRef
}

// assignPayload is the context behind one proposal's controls.
type assignPayload struct {
	Action     string                `json:"action"`
	CaseName   string                `json:"case_name"`
	CaseNumber string                `json:"case_number"`
	FilingLink string                `json:"filing_link,omitempty"`
	JudgeID    string                `json:"judge_id"`
	JudgeName  string                `json:"judge_name"`
	Excluded   []string              `json:"excluded,omitempty"`
	Notify     *transport.MessageRef `json:"notify,omitempty"`
	Card       transport.MessageRef  `json:"card"`
	Controls   []string              `json:"controls"`
}

// StartAssignment opens the assignment protocol for a docketed case:
// a proposal is sent to the first available judge, and declines walk
// the pool until someone accepts or everyone has declined.
func (e *Engine) StartAssignment(ctx context.Context, seed assignmentSeed) error {
	return e.propose(ctx, seed, nil)
}

func (e *Engine) propose(ctx context.Context, seed assignmentSeed, excluded []string) error {
	candidates, err := e.Pool.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("assignment candidates: %w", err)
	}

	if len(candidates) == 0 {
		e.audit(ctx, "assignment_exhausted", seed.CaseNumber, "", map[string]any{"declined": len(excluded)})
		_, serr := e.Msg.Send(ctx, e.Cfg.Channels.InternalReview, transport.Card{
			Body: fmt.Sprintf("No judge is available to take %s (%s). Assign it manually once someone frees up.", seed.CaseNumber, seed.CaseName),
		})
		return serr
	}

	// prefer a judge who has not declined yet; once everyone has, the
	// rotation starts over (the exclusion list keeps growing, one
	// entry per decline)
	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	next := &candidates[0]
	for i := range candidates {
		if !skip[candidates[i].ID] {
			next = &candidates[i]
			break
		}
	}

	p := assignPayload{
		CaseName:   seed.CaseName,
		CaseNumber: seed.CaseNumber,
		FilingLink: seed.FilingLink,
		JudgeID:    next.ID,
		JudgeName:  next.Name,
		Excluded:   excluded,
		Notify:     seed.Notify,
	}
	ids := make(map[string]string, 2)
	for _, action := range []string{"accept", "deny"} {
		p.Action = action
		id, err := e.mint(ctx, state.KindAssignment, p)
		if err != nil {
			return err
		}
		ids[action] = id
		p.Controls = append(p.Controls, id)
	}

	ref, err := e.Msg.DirectMessage(ctx, next.ID, proposalCard(p, ids))
	if err != nil {
		return fmt.Errorf("send proposal to %s: %w", next.ID, err)
	}
	p.Card = ref
	for _, action := range []string{"accept", "deny"} {
		p.Action = action
		if err := e.State.PutContext(ctx, ids[action], state.KindAssignment, p); err != nil {
			return err
		}
	}
	e.audit(ctx, "assignment_proposed", seed.CaseNumber, next.ID, map[string]any{"judge": next.Name})
	return nil
}

func proposalCard(p assignPayload, ids map[string]string) transport.Card {
	fields := []transport.Field{
		{Name: "Case Name", Value: p.CaseName},
		{Name: "Case Number", Value: p.CaseNumber},
	}
	if p.FilingLink != "" {
		fields = append(fields, transport.Field{Name: "Filing", Value: p.FilingLink})
	}
	return transport.Card{
		Title:  "Case Assignment",
		Body:   "You have been proposed as presiding judge. Accept to take the case.",
		Fields: fields,
		Buttons: []transport.Button{
			{Label: "Accept", Style: "success", CorrelationID: ids["accept"]},
			{Label: "Decline", Style: "danger", CorrelationID: ids["deny"]},
		},
	}
}

func (e *Engine) handleAssignmentEvent(ctx context.Context, ev transport.Event, raw json.RawMessage) error {
	var p assignPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	if denied, err := e.denyGate(ctx, ev, guard.RequireProposedJudge(p.JudgeID, ev.Actor.ID)); denied {
		return err
	}

	switch p.Action {
	case "accept":
		return e.acceptAssignment(ctx, ev, p)
	case "deny":
		return e.declineAssignment(ctx, ev, p)
	default:
		return fmt.Errorf("unknown assignment action %q", p.Action)
	}
}

func (e *Engine) acceptAssignment(ctx context.Context, ev transport.Event, p assignPayload) error {
	status := "In Pre-Trial"
	changes := docket.FieldChanges{Judge: &p.JudgeName, Status: &status}
	if p.FilingLink != "" {
		changes.FilingLink = &p.FilingLink
	}
	res := e.Store.UpdateCase(ctx, p.CaseNumber, changes)
	if !res.Success {
		// leave the proposal controls live so the judge can retry
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, res.Message)
	}
	e.consume(ctx, ev.CorrelationID)
	for _, id := range p.Controls {
		e.consume(ctx, id)
	}

	if err := e.Msg.Edit(ctx, p.Card, transport.Card{
		Title: "Case Assignment",
		Body:  fmt.Sprintf("You accepted %s (%s).", p.CaseNumber, p.CaseName),
	}); err != nil {
		e.log.Error("close proposal card", "error", err)
	}
	if _, err := e.Msg.Send(ctx, e.Cfg.Channels.InternalReview, transport.Card{
		Body: fmt.Sprintf("%s has taken %s (%s).", p.JudgeName, p.CaseNumber, p.CaseName),
	}); err != nil {
		e.log.Error("announce assignment", "error", err)
	}
	e.audit(ctx, "case_assigned", p.CaseNumber, p.JudgeID, map[string]any{"judge": p.JudgeName})

	// refresh the requesting view, best effort
	if p.Notify != nil {
		if found, fres := e.Store.FindCase(ctx, p.CaseNumber); fres.Success {
			if err := e.Msg.Edit(ctx, *p.Notify, transport.Card{
				Title: "Case Management",
				Body:  fmt.Sprintf("%s is now assigned to %s.", found.Number, found.Judge),
				Fields: []transport.Field{
					{Name: "Case Name", Value: found.Name},
					{Name: "Status", Value: found.StatusText},
				},
			}); err != nil {
				e.log.Warn("refresh notify target", "error", err)
			}
		}
	}
	return nil
}

func (e *Engine) declineAssignment(ctx context.Context, ev transport.Event, p assignPayload) error {
	e.consume(ctx, ev.CorrelationID)
	for _, id := range p.Controls {
		e.consume(ctx, id)
	}
	if err := e.Msg.Edit(ctx, p.Card, transport.Card{
		Title: "Case Assignment",
		Body:  fmt.Sprintf("You declined %s.", p.CaseNumber),
	}); err != nil {
		e.log.Error("close proposal card", "error", err)
	}
	e.audit(ctx, "assignment_declined", p.CaseNumber, p.JudgeID, map[string]any{"judge": p.JudgeName})

	if err := e.Clock.Sleep(ctx, denyDebounce); err != nil {
		return err
	}
	return e.propose(ctx, assignmentSeed{
		CaseName:   p.CaseName,
		CaseNumber: p.CaseNumber,
		FilingLink: p.FilingLink,
		Notify:     p.Notify,
	}, append(p.Excluded, p.JudgeID))
}

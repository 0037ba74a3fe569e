package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docketline/internal/docket"
	"docketline/internal/domain"
	"docketline/internal/guard"
	"docketline/internal/state"
	"docketline/internal/transport"
)

// maxSelectOptions is the platform cap on select entries. A docket
// larger than this shows the newest slice and says so.
const maxSelectOptions = 25

// dispositionPayload is the context behind the management card's
// controls. Case is the selected snapshot; identity is re-validated by
// number before every mutation.
type dispositionPayload struct {
	Action      string      `json:"action"`
	InitiatorID string      `json:"initiator_id"`
	Case        domain.Case `json:"case,omitempty"`
	// Actions is the view's history, one line per mutation, preserved
	// through Close and Delete.
	Actions  []string             `json:"actions,omitempty"`
	Card     transport.MessageRef `json:"card"`
	Controls []string             `json:"controls"`
}

// OpenDisposition posts the case-management card: a case picker bound
// to the opening actor. Every control on it is initiator-gated.
func (e *Engine) OpenDisposition(ctx context.Context, channelID, actorID string) error {
	if err := guard.RequireReviewer(e.Cfg, actorID); err != nil {
		return err
	}
	cases, res := e.Store.ListCases(ctx)
	if !res.Success {
		return fmt.Errorf("list cases: %s", res.Message)
	}
	if len(cases) == 0 {
		_, err := e.Msg.Send(ctx, channelID, transport.Card{Body: "There are no pending cases."})
		return err
	}

	p := dispositionPayload{Action: "select", InitiatorID: actorID}
	id, err := e.mint(ctx, state.KindDisposition, p)
	if err != nil {
		return err
	}
	p.Controls = []string{id}

	ref, err := e.Msg.Send(ctx, channelID, pickerCard(cases, id))
	if err != nil {
		return err
	}
	p.Card = ref
	return e.State.PutContext(ctx, id, state.KindDisposition, p)
}

func pickerCard(cases []domain.Case, selectID string) transport.Card {
	body := "Pick a case to manage."
	shown := cases
	if len(shown) > maxSelectOptions {
		shown = shown[len(shown)-maxSelectOptions:]
		body = fmt.Sprintf("Pick a case to manage. Showing the newest %d of %d.", maxSelectOptions, len(cases))
	}
	options := make([]transport.Option, 0, len(shown))
	for _, c := range shown {
		options = append(options, transport.Option{
			Label:       c.Number,
			Value:       c.Number,
			Description: truncateLabel(c.Name, 100),
		})
	}
	return transport.Card{
		Title: "Case Management",
		Body:  body,
		Select: &transport.Select{
			Placeholder:   "Select a case",
			CorrelationID: selectID,
			Options:       options,
		},
	}
}

func (e *Engine) handleDispositionEvent(ctx context.Context, ev transport.Event, raw json.RawMessage) error {
	var p dispositionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	if denied, err := e.denyGate(ctx, ev, guard.RequireInitiator(p.InitiatorID, ev.Actor.ID)); denied {
		return err
	}
	if denied, err := e.denyGate(ctx, ev, guard.RequireReviewer(e.Cfg, ev.Actor.ID)); denied {
		return err
	}

	switch p.Action {
	case "select":
		if len(ev.Values) == 0 {
			return fmt.Errorf("select event without value")
		}
		found, res := e.Store.FindCase(ctx, ev.Values[0])
		if !res.Success {
			return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, res.Message)
		}
		p.Case = found
		return e.renderCaseCard(ctx, p)
	case "edit":
		p.Action = "edit_submit"
		id, err := e.mint(ctx, state.KindDisposition, p)
		if err != nil {
			return err
		}
		return e.Msg.OpenForm(ctx, ev, transport.Form{
			Title:         "Edit Case",
			CorrelationID: id,
			Inputs: []transport.Input{
				{Name: "case_name", Label: "Case Name", Value: p.Case.Name, Required: true},
				{Name: "case_number", Label: "Case Number", Value: p.Case.Number, Required: true},
				{Name: "judge", Label: "Judge", Value: p.Case.Judge},
				{Name: "status", Label: "Status", Value: p.Case.StatusText},
				{Name: "filing_date", Label: "Filing Date", Value: p.Case.FilingDate},
				{Name: "filing_link", Label: "Filing Link", Value: p.Case.FilingLink},
			},
		})
	case "edit_submit":
		return e.editCase(ctx, ev, p)
	case "reassign":
		return e.reassignCase(ctx, ev, p)
	case "toggle":
		return e.toggleTrialStage(ctx, ev, p)
	case "finish":
		return e.openFinish(ctx, ev, p)
	case "delete":
		return e.openDeleteConfirm(ctx, ev, p)
	case "close":
		for _, id := range p.Controls {
			e.consume(ctx, id)
		}
		return e.Msg.Edit(ctx, p.Card, transport.Card{
			Title:  "Case Management",
			Body:   "Closed.",
			Fields: historyFields(p.Actions),
		})
	default:
		return fmt.Errorf("unknown disposition action %q", p.Action)
	}
}

// renderCaseCard replaces the management card with the selected case
// and fresh controls, consuming the previous generation.
func (e *Engine) renderCaseCard(ctx context.Context, p dispositionPayload) error {
	for _, id := range p.Controls {
		e.consume(ctx, id)
	}
	p.Controls = nil

	cases, res := e.Store.ListCases(ctx)
	if !res.Success {
		return fmt.Errorf("list cases: %s", res.Message)
	}

	actions := []string{"select", "edit", "reassign", "toggle", "finish", "delete", "close"}
	ids := make(map[string]string, len(actions))
	for _, action := range actions {
		p.Action = action
		id, err := e.mint(ctx, state.KindDisposition, p)
		if err != nil {
			return err
		}
		ids[action] = id
		p.Controls = append(p.Controls, id)
	}
	// rebind every control with the complete control list
	for _, action := range actions {
		p.Action = action
		if err := e.State.PutContext(ctx, ids[action], state.KindDisposition, p); err != nil {
			return err
		}
	}

	card := caseCard(p.Case, ids)
	card.Fields = append(card.Fields, historyFields(p.Actions)...)
	card.Select = pickerCard(cases, ids["select"]).Select
	return e.Msg.Edit(ctx, p.Card, card)
}

func historyFields(actions []string) []transport.Field {
	if len(actions) == 0 {
		return nil
	}
	return []transport.Field{{Name: "History", Value: strings.Join(actions, "\n")}}
}

func caseCard(c domain.Case, ids map[string]string) transport.Card {
	fields := []transport.Field{
		{Name: "Case Name", Value: c.Name},
		{Name: "Case Number", Value: c.Number},
		{Name: "Judge", Value: c.Judge},
		{Name: "Status", Value: c.StatusText},
		{Name: "Filed", Value: c.FilingDate},
	}
	if c.FilingLink != "" {
		fields = append(fields, transport.Field{Name: "Filing", Value: c.FilingLink})
	}
	return transport.Card{
		Title:  "Case Management",
		Fields: fields,
		Buttons: []transport.Button{
			{Label: "Edit", Style: "secondary", CorrelationID: ids["edit"]},
			{Label: "Reassign", Style: "secondary", CorrelationID: ids["reassign"]},
			{Label: "Toggle Trial Stage", Style: "secondary", CorrelationID: ids["toggle"]},
			{Label: "Finish", Style: "success", CorrelationID: ids["finish"]},
			{Label: "Delete", Style: "danger", CorrelationID: ids["delete"]},
			{Label: "Close", Style: "secondary", CorrelationID: ids["close"]},
		},
	}
}

func (e *Engine) editCase(ctx context.Context, ev transport.Event, p dispositionPayload) error {
	e.consume(ctx, ev.CorrelationID)

	var changes docket.FieldChanges
	changed := map[string]any{}
	field := func(name, current string, dst **string) {
		v, ok := ev.Fields[name]
		if !ok {
			return
		}
		v = strings.TrimSpace(v)
		if v != current {
			*dst = &v
			changed[name] = v
		}
	}
	field("case_name", p.Case.Name, &changes.Name)
	field("case_number", p.Case.Number, &changes.Number)
	field("judge", p.Case.Judge, &changes.Judge)
	field("status", p.Case.StatusText, &changes.Status)
	field("filing_date", p.Case.FilingDate, &changes.FilingDate)
	field("filing_link", p.Case.FilingLink, &changes.FilingLink)

	if len(changed) == 0 {
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, "Nothing changed.")
	}

	res := e.Store.UpdateCase(ctx, p.Case.Number, changes)
	if !res.Success {
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, res.Message)
	}
	e.audit(ctx, "case_edited", p.Case.Number, ev.Actor.ID, changed)
	p.Actions = append(p.Actions, fmt.Sprintf("Edited by %s", actorLabel(ev.Actor)))

	number := p.Case.Number
	if changes.Number != nil {
		number = *changes.Number
	}
	found, fres := e.Store.FindCase(ctx, number)
	if fres.Success {
		p.Case = found
	}
	return e.renderCaseCard(ctx, p)
}

func (e *Engine) reassignCase(ctx context.Context, ev transport.Event, p dispositionPayload) error {
	notify := p.Card
	if err := e.StartAssignment(ctx, assignmentSeed{
		CaseName:   p.Case.Name,
		CaseNumber: p.Case.Number,
		FilingLink: p.Case.FilingLink,
		Notify:     &notify,
	}); err != nil {
		return err
	}
	e.audit(ctx, "case_reassignment_started", p.Case.Number, ev.Actor.ID, nil)
	p.Actions = append(p.Actions, fmt.Sprintf("Reassignment started by %s", actorLabel(ev.Actor)))
	return e.renderCaseCard(ctx, p)
}

func (e *Engine) toggleTrialStage(ctx context.Context, ev transport.Event, p dispositionPayload) error {
	if !domain.TrialToggleable(p.Case.StatusText) {
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID,
			fmt.Sprintf("Cannot toggle trial stage from status '%s'.", p.Case.StatusText))
	}
	next := string(domain.StatusInTrial)
	if p.Case.Status == domain.StatusInTrial {
		next = string(domain.StatusPreTrial)
	}
	res := e.Store.UpdateCase(ctx, p.Case.Number, docket.FieldChanges{Status: &next})
	if !res.Success {
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, res.Message)
	}
	e.audit(ctx, "trial_stage_toggled", p.Case.Number, ev.Actor.ID, map[string]any{"status": next})
	p.Actions = append(p.Actions, fmt.Sprintf("Trial stage set to %s by %s", next, actorLabel(ev.Actor)))

	p.Case.Status = domain.ParseStatus(next)
	p.Case.StatusText = next
	return e.renderCaseCard(ctx, p)
}

// finishPayload carries the finish sub-flow: ending first, then the
// optional ending document link.
type finishPayload struct {
	Action      string             `json:"action"`
	InitiatorID string             `json:"initiator_id"`
	Case        domain.Case        `json:"case"`
	Ending      string             `json:"ending,omitempty"`
	Board       dispositionPayload `json:"board"`
}

func (e *Engine) openFinish(ctx context.Context, ev transport.Event, p dispositionPayload) error {
	fp := finishPayload{
		Action:      "ending_select",
		InitiatorID: p.InitiatorID,
		Case:        p.Case,
		Board:       p,
	}
	id, err := e.mint(ctx, state.KindFinish, fp)
	if err != nil {
		return err
	}
	options := make([]transport.Option, 0, len(domain.Endings()))
	for _, end := range domain.Endings() {
		options = append(options, transport.Option{Label: string(end), Value: string(end)})
	}
	return e.Msg.Edit(ctx, p.Card, transport.Card{
		Title: "Finish Case",
		Body:  fmt.Sprintf("How did %s (%s) end?", p.Case.Number, p.Case.Name),
		Select: &transport.Select{
			Placeholder:   "Select an ending",
			CorrelationID: id,
			Options:       options,
		},
	})
}

func (e *Engine) handleFinishEvent(ctx context.Context, ev transport.Event, raw json.RawMessage) error {
	var fp finishPayload
	if err := json.Unmarshal(raw, &fp); err != nil {
		return err
	}
	if denied, err := e.denyGate(ctx, ev, guard.RequireInitiator(fp.InitiatorID, ev.Actor.ID)); denied {
		return err
	}

	switch fp.Action {
	case "ending_select":
		if len(ev.Values) == 0 {
			return fmt.Errorf("ending select without value")
		}
		fp.Ending = string(domain.ParseEnding(ev.Values[0]))
		fp.Action = "link_submit"
		e.consume(ctx, ev.CorrelationID)
		id, err := e.mint(ctx, state.KindFinish, fp)
		if err != nil {
			return err
		}
		return e.Msg.OpenForm(ctx, ev, transport.Form{
			Title:         "Finish Case",
			CorrelationID: id,
			Inputs: []transport.Input{
				{Name: "ending_link", Label: "Ending document link (optional)"},
			},
		})
	case "link_submit":
		e.consume(ctx, ev.CorrelationID)
		return e.finishCase(ctx, ev, fp)
	default:
		return fmt.Errorf("unknown finish action %q", fp.Action)
	}
}

// finishCase appends the case-log record, then removes the pending
// row. The two writes are independent; a failure after the append is
// reported as partial, never rolled back.
func (e *Engine) finishCase(ctx context.Context, ev transport.Event, fp finishPayload) error {
	c := fp.Case
	ending := domain.ParseEnding(fp.Ending)
	endingLink := strings.TrimSpace(ev.Fields["ending_link"])

	res := e.Store.AppendToLog(ctx, domain.TypeFromNumber(c.Number), docket.LogRow{
		Name:       c.Name,
		Number:     c.Number,
		FilingDate: c.FilingDate,
		FilingLink: c.FilingLink,
		EndingDate: endingDate(e.Clock.Now()),
		Ending:     ending,
		EndingLink: endingLink,
	})
	if !res.Success {
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, res.Message)
	}

	delRes := e.Store.DeleteCase(ctx, c.Name, c.Number)
	if !delRes.Success {
		e.audit(ctx, "case_finish_partial", c.Number, ev.Actor.ID, map[string]any{"error": delRes.Message})
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID,
			fmt.Sprintf("Logged the ending, but the pending row was not removed: %s Remove it manually.", delRes.Message))
	}

	e.audit(ctx, "case_finished", c.Number, ev.Actor.ID, map[string]any{"ending": string(ending)})
	for _, id := range fp.Board.Controls {
		e.consume(ctx, id)
	}
	history := append(fp.Board.Actions, fmt.Sprintf("Finished (%s) by %s", ending, actorLabel(ev.Actor)))
	return e.Msg.Edit(ctx, fp.Board.Card, transport.Card{
		Title:  "Case Management",
		Body:   fmt.Sprintf("%s (%s) finished: %s.", c.Number, c.Name, ending),
		Fields: historyFields(history),
	})
}

// deletePayload is the confirm/cancel context for a pending deletion.
type deletePayload struct {
	Action      string             `json:"action"`
	InitiatorID string             `json:"initiator_id"`
	Case        domain.Case        `json:"case"`
	Board       dispositionPayload `json:"board"`
	Controls    []string           `json:"controls"`
}

func (e *Engine) openDeleteConfirm(ctx context.Context, ev transport.Event, p dispositionPayload) error {
	dp := deletePayload{InitiatorID: p.InitiatorID, Case: p.Case, Board: p}
	ids := make(map[string]string, 2)
	for _, action := range []string{"confirm", "cancel"} {
		dp.Action = action
		id, err := e.mint(ctx, state.KindDelete, dp)
		if err != nil {
			return err
		}
		ids[action] = id
		dp.Controls = append(dp.Controls, id)
	}
	for _, action := range []string{"confirm", "cancel"} {
		dp.Action = action
		if err := e.State.PutContext(ctx, ids[action], state.KindDelete, dp); err != nil {
			return err
		}
	}
	return e.Msg.Edit(ctx, p.Card, transport.Card{
		Title: "Delete Case",
		Body:  fmt.Sprintf("Permanently remove %s (%s) from the docket? This does not write a case-log entry.", p.Case.Number, p.Case.Name),
		Buttons: []transport.Button{
			{Label: "Delete", Style: "danger", CorrelationID: ids["confirm"]},
			{Label: "Cancel", Style: "secondary", CorrelationID: ids["cancel"]},
		},
	})
}

func (e *Engine) handleDeleteEvent(ctx context.Context, ev transport.Event, raw json.RawMessage) error {
	var dp deletePayload
	if err := json.Unmarshal(raw, &dp); err != nil {
		return err
	}
	if denied, err := e.denyGate(ctx, ev, guard.RequireInitiator(dp.InitiatorID, ev.Actor.ID)); denied {
		return err
	}

	switch dp.Action {
	case "confirm":
		if denied, err := e.denyGate(ctx, ev, guard.RequireReviewer(e.Cfg, ev.Actor.ID)); denied {
			return err
		}
		res := e.Store.DeleteCase(ctx, dp.Case.Name, dp.Case.Number)
		if !res.Success {
			// leave the dialog live so the deletion can be retried
			return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, res.Message)
		}
		for _, id := range dp.Controls {
			e.consume(ctx, id)
		}
		e.consume(ctx, ev.CorrelationID)
		e.audit(ctx, "case_deleted", dp.Case.Number, ev.Actor.ID, map[string]any{"name": dp.Case.Name})
		for _, id := range dp.Board.Controls {
			e.consume(ctx, id)
		}
		history := append(dp.Board.Actions, fmt.Sprintf("Deleted by %s", actorLabel(ev.Actor)))
		return e.Msg.Edit(ctx, dp.Board.Card, transport.Card{
			Title:  "Case Management",
			Body:   fmt.Sprintf("%s (%s) deleted.", dp.Case.Number, dp.Case.Name),
			Fields: historyFields(history),
		})
	case "cancel":
		for _, id := range dp.Controls {
			e.consume(ctx, id)
		}
		e.consume(ctx, ev.CorrelationID)
		return e.renderCaseCard(ctx, dp.Board)
	default:
		return fmt.Errorf("unknown delete action %q", dp.Action)
	}
}

func truncateLabel(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// Package flow implements the case lifecycle: filing review,
// assignment, disposition and notification. Flows are driven by
// inbound transport events; every pending control resolves through a
// correlation id whose context is persisted, so an in-flight flow
// survives a process restart.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docketline/internal/classify"
	"docketline/internal/config"
	"docketline/internal/docket"
	"docketline/internal/extract"
	"docketline/internal/guard"
	"docketline/internal/logging"
	"docketline/internal/state"
	"docketline/internal/transport"
)

// Engine wires the flows to their dependencies. A zero Clock defaults
// to the wall clock.
type Engine struct {
	Store      *docket.Store
	State      *state.Store
	Msg        transport.Messenger
	Classifier classify.Classifier
	Extractor  extract.Extractor
	Pool       JudgePool
	Cfg        *config.Config
	Clock      Clock

	log *slog.Logger
}

func New(e Engine) *Engine {
	if e.Clock == nil {
		e.Clock = NewClock()
	}
	if e.Extractor == nil {
		e.Extractor = extract.Null{}
	}
	e.log = logging.New("flow")
	return &e
}

// Run consumes events until the channel closes or ctx ends, handling
// them on a bounded worker pool. Handler failures are logged, never
// propagated: one bad interaction must not stop the service.
func (e *Engine) Run(ctx context.Context, events <-chan transport.Event) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Cfg.Workers)
	for {
		select {
		case <-gctx.Done():
			return g.Wait()
		case ev, ok := <-events:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				if err := e.Dispatch(gctx, ev); err != nil {
					e.log.Error("dispatch", "kind", ev.Kind, "correlation_id", ev.CorrelationID, "error", err)
				}
				return nil
			})
		}
	}
}

// Dispatch routes one event to its flow handler. Control events
// resolve their correlation id first; an unknown id means the control
// is stale (consumed, or minted before a data wipe) and is answered
// privately.
func (e *Engine) Dispatch(ctx context.Context, ev transport.Event) error {
	if ev.Kind == transport.EventFiling {
		return e.HandleFiling(ctx, ev)
	}
	if ev.CorrelationID == "" {
		return fmt.Errorf("control event without correlation id")
	}

	var raw json.RawMessage
	kind, err := e.State.GetContext(ctx, ev.CorrelationID, &raw)
	if errors.Is(err, state.ErrNotFound) {
		return e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, "This control has expired.")
	}
	if err != nil {
		return err
	}

	switch kind {
	case state.KindReview:
		return e.handleReviewEvent(ctx, ev, raw)
	case state.KindAssignment:
		return e.handleAssignmentEvent(ctx, ev, raw)
	case state.KindDisposition:
		return e.handleDispositionEvent(ctx, ev, raw)
	case state.KindFinish:
		return e.handleFinishEvent(ctx, ev, raw)
	case state.KindDelete:
		return e.handleDeleteEvent(ctx, ev, raw)
	default:
		return fmt.Errorf("unknown context kind %q", kind)
	}
}

// mint stores a fresh correlation context and returns its id.
func (e *Engine) mint(ctx context.Context, kind string, payload any) (string, error) {
	id := uuid.NewString()
	if err := e.State.PutContext(ctx, id, kind, payload); err != nil {
		return "", err
	}
	return id, nil
}

// consume drops a correlation context, logging rather than failing on
// cleanup errors.
func (e *Engine) consume(ctx context.Context, correlationID string) {
	if err := e.State.DeleteContext(ctx, correlationID); err != nil {
		e.log.Error("delete context", "correlation_id", correlationID, "error", err)
	}
}

// audit appends to the event log. Audit failures never fail a flow.
func (e *Engine) audit(ctx context.Context, evtType, caseNumber, actorID string, payload map[string]any) {
	if err := e.State.AppendEvent(ctx, evtType, caseNumber, actorID, payload); err != nil {
		e.log.Error("append event", "type", evtType, "error", err)
	}
}

// denyGate answers a failed authorization gate privately and reports
// whether the event was denied.
func (e *Engine) denyGate(ctx context.Context, ev transport.Event, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	var denied *guard.DeniedError
	if errors.As(err, &denied) {
		e.log.Warn("gate denied", "actor", denied.Actor, "correlation_id", ev.CorrelationID)
		return true, e.Msg.Ephemeral(ctx, ev.Origin, ev.Actor.ID, denied.Message)
	}
	return true, err
}

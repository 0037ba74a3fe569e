// Package server exposes the HTTP API: the chat gateway posts inbound
// interaction events here, and operators read the docket, the judge
// roster and the audit log.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"docketline/internal/config"
	"docketline/internal/docket"
	"docketline/internal/domain"
	"docketline/internal/flow"
	"docketline/internal/guard"
	"docketline/internal/state"
	"docketline/internal/transport"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *flow.Engine
	Store    *docket.Store
	State    *state.Store
	App      *config.Config
	BasePath string
	Auth     AuthConfig

	// Events, when set, queues ingested events for the engine's worker
	// pool instead of dispatching them on the request goroutine.
	Events chan<- transport.Event
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"case number 'Crim 404' not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Docketline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Docketline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerEvents(group, cfg.Engine, cfg.Events)
	registerCases(group, cfg)
	registerJudges(group, cfg)
	registerAudit(group, cfg.State)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var denied *guard.DeniedError
	if errors.As(err, &denied) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	if errors.Is(err, state.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerEvents(api huma.API, e *flow.Engine, queue chan<- transport.Event) {
	huma.Register(api, huma.Operation{
		OperationID: "ingest-event",
		Method:      http.MethodPost,
		Path:        "/events",
		Summary:     "Ingest an inbound interaction event",
		Errors:      []int{http.StatusUnprocessableEntity, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body transport.Event `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if queue != nil {
			select {
			case queue <- input.Body:
				return &struct {
					Body map[string]string `json:"body"`
				}{Body: map[string]string{"status": "queued"}}, nil
			case <-ctx.Done():
				return nil, handleError(ctx.Err())
			}
		}
		if err := e.Dispatch(ctx, input.Body); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "handled"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "open-disposition",
		Method:      http.MethodPost,
		Path:        "/dispositions",
		Summary:     "Open a case-management view in a channel",
		Errors:      []int{http.StatusForbidden, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ChannelID string `json:"channel_id"`
			ActorID   string `json:"actor_id"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.OpenDisposition(ctx, input.Body.ChannelID, input.Body.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "opened"}}, nil
	})
}

func registerCases(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List pending cases",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []domain.Case `json:"items"`
		} `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		cases, res := cfg.Store.ListCases(ctx)
		if !res.Success {
			return nil, newAPIError(http.StatusBadGateway, "store_error", res.Message, nil)
		}
		out := &struct {
			Body struct {
				Items []domain.Case `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = cases
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{case_number}",
		Summary:     "Find a pending case by number",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseNumber string `path:"case_number"`
	}) (*struct {
		Body domain.Case `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, res := cfg.Store.FindCase(ctx, input.CaseNumber)
		if !res.Success {
			return nil, newAPIError(http.StatusNotFound, "not_found", res.Message, nil)
		}
		return &struct {
			Body domain.Case `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-case",
		Method:      http.MethodPost,
		Path:        "/cases",
		Summary:     "Manually docket a case, bypassing review",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name       string `json:"case_name"`
			Number     string `json:"case_number"`
			Judge      string `json:"judge,omitempty"`
			Status     string `json:"case_status,omitempty"`
			FilingDate string `json:"filing_date,omitempty"`
			FilingLink string `json:"filing_link,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Result `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := guard.RequireReviewer(cfg.App, actorID); err != nil {
			return nil, handleError(err)
		}
		if input.Body.Name == "" || input.Body.Number == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "case_name and case_number are required", nil)
		}
		res := cfg.Engine.AddCase(ctx, domain.Case{
			Name:       input.Body.Name,
			Number:     input.Body.Number,
			Judge:      input.Body.Judge,
			StatusText: input.Body.Status,
			FilingDate: input.Body.FilingDate,
			FilingLink: input.Body.FilingLink,
		}, actorID)
		if !res.Success {
			return nil, newAPIError(http.StatusBadGateway, "store_error", res.Message, nil)
		}
		return &struct {
			Body domain.Result `json:"body"`
		}{Body: res}, nil
	})
}

func registerJudges(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-judges",
		Method:      http.MethodGet,
		Path:        "/judges",
		Summary:     "List the judge roster",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []domain.Judge `json:"items"`
		} `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		judges, res := cfg.Store.Judges(ctx)
		if !res.Success {
			return nil, newAPIError(http.StatusBadGateway, "store_error", res.Message, nil)
		}
		out := &struct {
			Body struct {
				Items []domain.Judge `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = judges
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-judge-availability",
		Method:      http.MethodPut,
		Path:        "/judges/{judge_name}/availability",
		Summary:     "Set a judge's assignment availability",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		JudgeName string `path:"judge_name"`
		Body      struct {
			Availability string `json:"availability" enum:"Active,Unavailable"`
		} `json:"body"`
	}) (*struct {
		Body domain.Result `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := guard.RequireReviewer(cfg.App, actorID); err != nil {
			return nil, handleError(err)
		}
		res := cfg.Store.SetJudgeAvailability(ctx, input.JudgeName, input.Body.Availability)
		if !res.Success {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", res.Message, nil)
		}
		return &struct {
			Body domain.Result `json:"body"`
		}{Body: res}, nil
	})
}

func registerAudit(api huma.API, st *state.Store) {
	type auditEvent struct {
		ID         int64          `json:"id"`
		TS         string         `json:"ts"`
		Type       string         `json:"type"`
		CaseNumber string         `json:"case_number,omitempty"`
		ActorID    string         `json:"actor_id,omitempty"`
		Payload    map[string]any `json:"payload"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-events",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List recent workflow events",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body struct {
			Items []auditEvent `json:"items"`
		} `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		events, err := st.RecentEvents(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []auditEvent `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []auditEvent{}
		for _, e := range events {
			out.Body.Items = append(out.Body.Items, auditEvent{
				ID: e.ID, TS: e.TS, Type: e.Type,
				CaseNumber: e.CaseNumber, ActorID: e.ActorID, Payload: e.Payload,
			})
		}
		return out, nil
	})
}

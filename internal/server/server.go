// Package server exposes the admin and webhook HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"raidbot/internal/bot"
	"raidbot/internal/chat"
	"raidbot/internal/engine"
	"raidbot/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Bot      *bot.Router
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"conflict"`
	Message string         `json:"message" example:"completion already approved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the raidbot API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Raidbot API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerUpdates(group, cfg.Bot)
	registerRaids(group, cfg.Engine)
	registerCompletions(group, cfg.Engine, cfg.Bot)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError translates engine errors into the envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	var nf engine.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok"}}, nil
	})
}

func registerUpdates(api huma.API, router *bot.Router) {
	huma.Register(api, huma.Operation{
		OperationID: "receive-update",
		Method:      http.MethodPost,
		Path:        "/updates",
		Summary:     "Receive a platform update",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body chat.Update `json:"body"`
	}) (*struct {
		Body AcceptedResponse `json:"body"`
	}, error) {
		if input.Body.ChatID == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "chat_id is required", nil)
		}
		router.Handle(ctx, input.Body)
		return &struct {
			Body AcceptedResponse `json:"body"`
		}{Body: AcceptedResponse{OK: true}}, nil
	})
}

func registerRaids(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-raids",
		Method:      http.MethodGet,
		Path:        "/raids",
		Summary:     "List raids",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Active bool `query:"active" doc:"Only list active raids"`
	}) (*struct {
		Body RaidListResponse `json:"body"`
	}, error) {
		raids, err := e.ListRaids(ctx, input.Active)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RaidListResponse `json:"body"`
		}{Body: RaidListResponse{Raids: raids}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-raid",
		Method:        http.MethodPost,
		Path:          "/raids",
		Summary:       "Create raid",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateRaidRequest `json:"body"`
	}) (*struct {
		Body RaidResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raid, err := e.CreateRaid(ctx, engine.RaidCreateOptions{
			Title:    input.Body.Title,
			Platform: input.Body.Platform,
			PostURL:  input.Body.PostURL,
			Reward:   input.Body.Reward,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RaidResponse `json:"body"`
		}{Body: RaidResponse{Raid: raid}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-raid",
		Method:      http.MethodPost,
		Path:        "/raids/{raid_id}/close",
		Summary:     "Close raid",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		RaidID string `path:"raid_id"`
	}) (*struct {
		Body AcceptedResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.CloseRaid(ctx, input.RaidID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcceptedResponse `json:"body"`
		}{Body: AcceptedResponse{OK: true}}, nil
	})
}

func registerCompletions(api huma.API, e engine.Engine, router *bot.Router) {
	huma.Register(api, huma.Operation{
		OperationID: "list-pending-completions",
		Method:      http.MethodGet,
		Path:        "/completions",
		Summary:     "List pending completions in trust order",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct {
		Status string `query:"status" enum:"pending," doc:"Only pending is served"`
	}) (*struct {
		Body PendingCompletionsResponse `json:"body"`
	}, error) {
		pending, err := e.PendingCompletions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PendingCompletionsResponse `json:"body"`
		}{Body: PendingCompletionsResponse{Completions: pending}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-completion",
		Method:      http.MethodPost,
		Path:        "/completions/{completion_id}/approve",
		Summary:     "Approve completion and credit the reward",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompletionID string `path:"completion_id"`
	}) (*struct {
		Body CompletionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ApproveCompletion(ctx, input.CompletionID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if router != nil {
			router.AnnounceApproval(ctx, c)
		}
		return &struct {
			Body CompletionResponse `json:"body"`
		}{Body: CompletionResponse{Completion: c}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-completion",
		Method:      http.MethodPost,
		Path:        "/completions/{completion_id}/reject",
		Summary:     "Reject completion",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompletionID string                  `path:"completion_id"`
		Body         RejectCompletionRequest `json:"body"`
	}) (*struct {
		Body CompletionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.RejectCompletion(ctx, input.CompletionID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		if router != nil {
			router.NotifyRejection(ctx, c)
		}
		return &struct {
			Body CompletionResponse `json:"body"`
		}{Body: CompletionResponse{Completion: c}}, nil
	})
}

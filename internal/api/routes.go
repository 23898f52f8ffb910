// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ganabosques/ganabosques-geo/internal/report"
	"github.com/ganabosques/ganabosques-geo/internal/riskapi"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
	"github.com/ganabosques/ganabosques-geo/internal/selection"
	"github.com/ganabosques/ganabosques-geo/internal/service"
	"github.com/ganabosques/ganabosques-geo/internal/templates"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Risk     *service.RiskService
	Reports  *service.ReportService
	Views    *service.ViewService
	Bus      *service.EventBus
	Renderer *templates.Renderer
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Resource ID" example:"3f2504e0-4f89-11d3-9a0c-0305e82c3301"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc.Bus == nil {
		svc.Bus = service.DefaultBus
	}
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

// apiError maps domain errors to Huma status errors.
func apiError(err error) error {
	var se *riskapi.StatusError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrReportNotFound), errors.Is(err, service.ErrViewNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, report.ErrBusy), errors.Is(err, report.ErrNotReady), errors.Is(err, selection.ErrStale):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, report.ErrInvalidFile),
		errors.Is(err, report.ErrNoFile),
		errors.Is(err, report.ErrNotParsed),
		errors.Is(err, report.ErrNoKind),
		errors.Is(err, report.ErrNoColumn),
		errors.Is(err, report.ErrNoIDs),
		errors.Is(err, selection.ErrSelectionFull),
		errors.Is(err, selection.ErrEmptyID),
		errors.Is(err, risktable.ErrUnknownSortField):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.As(err, &se), errors.Is(err, context.DeadlineExceeded):
		return huma.Error502BadGateway(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}

// RegisterRoutes registers every APIHandler route group.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

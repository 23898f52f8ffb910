package api

import (
	"context"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ganabosques/ganabosques-geo/internal/humastar"
	"github.com/ganabosques/ganabosques-geo/internal/period"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
	"github.com/ganabosques/ganabosques-geo/internal/service"
)

// RegisterRisk registers the remote risk data routes.
func (h *APIHandler) RegisterRisk(api huma.API) {
	huma.Get(api, "/api/v1/periods", h.ListPeriods, huma.OperationTags("risk"))
	huma.Get(api, "/api/v1/entities/{kind}/search", h.SearchEntities, huma.OperationTags("risk"))
	huma.Get(api, "/api/v1/entities/{kind}/lookup", h.LookupEntities, huma.OperationTags("risk"))
	huma.Post(api, "/api/v1/risk/{kind}/table", h.RiskTable, huma.OperationTags("risk"))
	huma.Post(api, "/api/v1/movement/summary", h.MovementSummary, huma.OperationTags("risk"))
	huma.Post(api, "/api/v1/overlay/farms", h.FarmOverlay, huma.OperationTags("risk"))
}

type KindInput struct {
	Kind risk.Kind `path:"kind" enum:"adm3,farm,enterprise" doc:"Entity kind"`
}

type PeriodsInput struct {
	Source string `query:"source" doc:"Deforestation source" example:"smbyc"`
	Type   string `query:"type" doc:"Period type" example:"annual"`
}

// PeriodBody is a listed period with its display label and comparison key.
type PeriodBody struct {
	period.Deforestation
	Label string `json:"label" doc:"Display label"`
	Key   string `json:"key" doc:"Comparison key at the granularity of the period type"`
}

func (h *APIHandler) ListPeriods(ctx context.Context, input *PeriodsInput) (*struct{ Body []PeriodBody }, error) {
	listed := h.svc.Risk.Periods(ctx, input.Source, input.Type)
	out := make([]PeriodBody, len(listed))
	for i, d := range listed {
		p := d.Period()
		out[i] = PeriodBody{Deforestation: d, Label: p.Label, Key: p.Key()}
	}
	return &struct{ Body []PeriodBody }{Body: out}, nil
}

type SearchInput struct {
	KindInput
	Q string `query:"q" minLength:"1" required:"true" doc:"Name fragment" example:"Esperanza"`
}

func (h *APIHandler) SearchEntities(ctx context.Context, input *SearchInput) (*struct{ Body []service.Entity }, error) {
	found, err := h.svc.Risk.Search(ctx, input.Kind, input.Q)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body []service.Entity }{Body: found}, nil
}

type LookupInput struct {
	KindInput
	Codes string `query:"codes" required:"true" doc:"Comma-separated external codes" example:"SIT-001,SIT-002"`
	Label string `query:"label" doc:"Optional code source label" example:"SIT"`
}

func (h *APIHandler) LookupEntities(ctx context.Context, input *LookupInput) (*struct{ Body []service.Entity }, error) {
	var codes []string
	for _, c := range strings.Split(input.Codes, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		return nil, huma.Error422UnprocessableEntity("no codes given")
	}
	found, err := h.svc.Risk.Lookup(ctx, input.Kind, codes, input.Label)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body []service.Entity }{Body: found}, nil
}

type TableInput struct {
	KindInput
	Body service.TableQuery
}

func (h *APIHandler) RiskTable(ctx context.Context, input *TableInput) (*struct {
	Body humastar.PageBody[risktable.Row]
}, error) {
	q := input.Body
	q.Kind = input.Kind
	page, err := h.svc.Risk.Table(ctx, q)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct {
		Body humastar.PageBody[risktable.Row]
	}{Body: page}, nil
}

type MovementInput struct {
	Body struct {
		IDs       []string `json:"ids" minItems:"1" doc:"Farm ids"`
		StartDate string   `json:"start_date,omitempty" format:"date" doc:"Range start" example:"2023-01-01"`
		EndDate   string   `json:"end_date,omitempty" format:"date" doc:"Range end" example:"2023-12-31"`
	}
}

func (h *APIHandler) MovementSummary(ctx context.Context, input *MovementInput) (*struct{ Body []service.MovementEntry }, error) {
	entries, err := h.svc.Risk.Movement(ctx, input.Body.IDs, input.Body.StartDate, input.Body.EndDate)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body []service.MovementEntry }{Body: entries}, nil
}

type OverlayInput struct {
	Body struct {
		IDs          []string  `json:"ids" minItems:"1" doc:"Farm ids"`
		Type         risk.Type `json:"type,omitempty" enum:"annual,cumulative" default:"annual" doc:"Risk type"`
		ClusterLevel int       `json:"cluster_level,omitempty" minimum:"0" maximum:"30" doc:"S2 cell level of point clusters; 0 disables clustering"`
	}
}

func (h *APIHandler) FarmOverlay(ctx context.Context, input *OverlayInput) (*struct{ Body service.Overlay }, error) {
	overlay, err := h.svc.Risk.FarmOverlay(ctx, input.Body.IDs, input.Body.Type, input.Body.ClusterLevel)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body service.Overlay }{Body: overlay}, nil
}

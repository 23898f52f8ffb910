package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ganabosques/ganabosques-geo/internal/humastar"
	"github.com/ganabosques/ganabosques-geo/internal/period"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/selection"
	"github.com/ganabosques/ganabosques-geo/internal/service"
)

var viewActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/v1/views/%s/filters", Method: http.MethodPut, Title: "Cambiar filtros"},
	{Rel: "select", Pattern: "/api/v1/views/%s/selection", Method: http.MethodPost, Title: "Seleccionar"},
	{Rel: "search", Pattern: "/api/v1/views/%s/search", Method: http.MethodPost, Title: "Buscar"},
	{Rel: "risk", Pattern: "/api/v1/views/%s/risk", Method: http.MethodGet, Title: "Riesgo de la selección"},
	{Rel: "events", Pattern: "/api/v1/views/%s/events", Method: http.MethodGet},
	{Rel: "delete", Pattern: "/api/v1/views/%s", Method: http.MethodDelete},
}

// ViewBody is a view and its selection.
type ViewBody struct {
	ID    string          `json:"id" doc:"View ID"`
	State selection.State `json:"state" doc:"Filters and selection"`
}

func (b ViewBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, viewActions...)
}

type ViewOutput struct {
	Body ViewBody
}

// RegisterViews registers the selection view routes.
func (h *APIHandler) RegisterViews(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-view",
		Method:        http.MethodPost,
		Path:          "/api/v1/views",
		DefaultStatus: http.StatusCreated,
		Tags:          []string{"views"},
	}, h.CreateView)
	huma.Get(api, "/api/v1/views/{id}", h.GetView, huma.OperationTags("views"))
	huma.Delete(api, "/api/v1/views/{id}", h.DeleteView, huma.OperationTags("views"))
	huma.Put(api, "/api/v1/views/{id}/filters", h.PutFilters, huma.OperationTags("views"))
	huma.Post(api, "/api/v1/views/{id}/selection", h.PostSelection, huma.OperationTags("views"))
	huma.Register(api, huma.Operation{
		OperationID:   "search-view",
		Method:        http.MethodPost,
		Path:          "/api/v1/views/{id}/search",
		DefaultStatus: http.StatusAccepted,
		Tags:          []string{"views"},
	}, h.SearchView)
	huma.Get(api, "/api/v1/views/{id}/risk", h.ViewRisk, huma.OperationTags("views"))
	huma.Get(api, "/api/v1/views/{id}/events", h.ViewEvents, huma.OperationTags("events"))
}

func (h *APIHandler) CreateView(ctx context.Context, input *struct{}) (*ViewOutput, error) {
	v := h.svc.Views.Create()
	return &ViewOutput{Body: ViewBody{ID: v.ID, State: v.State()}}, nil
}

func (h *APIHandler) GetView(ctx context.Context, input *IDInput) (*ViewOutput, error) {
	v, err := h.svc.Views.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ViewOutput{Body: ViewBody{ID: v.ID, State: v.State()}}, nil
}

func (h *APIHandler) DeleteView(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Views.Delete(input.ID); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "View deleted"}}, nil
}

// FiltersBody changes the filters of a view. Empty fields are left as they
// are; a new risk type or source replaces the selected period with the
// latest listed one.
type FiltersBody struct {
	RiskType    risk.Type   `json:"risk_type,omitempty" enum:"annual,cumulative" doc:"Risk classification mode"`
	Source      string      `json:"source,omitempty" doc:"Deforestation source" example:"smbyc"`
	PeriodID    string      `json:"period_id,omitempty" doc:"Selected deforestation period id"`
	PeriodType  period.Type `json:"period_type,omitempty" enum:"annual,cumulative,atd,nad" doc:"Type of the selected period; defaults to the risk type"`
	PeriodStart string      `json:"period_start,omitempty" doc:"Selected period start" example:"2023-01-01"`
	PeriodEnd   string      `json:"period_end,omitempty" doc:"Selected period end" example:"2023-12-31"`
}

func (b FiltersBody) actions(current selection.State) []selection.Action {
	var actions []selection.Action
	riskType := current.RiskType
	if b.RiskType != "" {
		actions = append(actions, selection.SetRiskType{Type: b.RiskType})
		riskType = b.RiskType
	}
	if b.Source != "" {
		actions = append(actions, selection.SetSource{Source: b.Source})
	}
	if b.PeriodID != "" {
		typ := b.PeriodType
		if typ == "" {
			typ = period.Type(riskType)
		}
		actions = append(actions, selection.SetPeriod{ID: b.PeriodID, Period: period.Classify(typ, b.PeriodStart, b.PeriodEnd)})
	}
	return actions
}

func (h *APIHandler) PutFilters(ctx context.Context, input *struct {
	IDInput
	Body FiltersBody
}) (*ViewOutput, error) {
	v, err := h.svc.Views.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	st, err := h.svc.Views.SetFilters(ctx, input.ID, input.Body.actions(v.State())...)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return &ViewOutput{Body: ViewBody{ID: input.ID, State: st}}, nil
}

// SelectionBody adds, removes or clears selected entities.
type SelectionBody struct {
	Op        string    `json:"op" enum:"add,remove,clear" doc:"Operation"`
	Kind      risk.Kind `json:"kind,omitempty" enum:"adm3,farm,enterprise" doc:"Entity kind; required for add and remove"`
	ID        string    `json:"id,omitempty" doc:"Entity id"`
	DisplayID string    `json:"display_id,omitempty" doc:"Enterprise display id"`
	Name      string    `json:"name,omitempty" doc:"Enterprise name"`
}

func (b SelectionBody) action() (selection.Action, error) {
	if b.Op == "clear" {
		return selection.Clear{}, nil
	}
	add := b.Op == "add"
	switch b.Kind {
	case risk.KindFarm:
		if add {
			return selection.AddFarm{ID: b.ID}, nil
		}
		return selection.RemoveFarm{ID: b.ID}, nil
	case risk.KindAdm3:
		if add {
			return selection.AddAdm3{ID: b.ID}, nil
		}
		return selection.RemoveAdm3{ID: b.ID}, nil
	case risk.KindEnterprise:
		if add {
			return selection.AddEnterprise{Enterprise: selection.Enterprise{ID: b.ID, DisplayID: b.DisplayID, Name: b.Name}}, nil
		}
		return selection.RemoveEnterprise{ID: b.ID}, nil
	}
	return nil, huma.Error422UnprocessableEntity("kind is required for " + b.Op)
}

func (h *APIHandler) PostSelection(ctx context.Context, input *struct {
	IDInput
	Body SelectionBody
}) (*ViewOutput, error) {
	action, err := input.Body.action()
	if err != nil {
		return nil, err
	}
	st, err := h.svc.Views.Dispatch(input.ID, action)
	if err != nil {
		return nil, apiError(err)
	}
	return &ViewOutput{Body: ViewBody{ID: input.ID, State: st}}, nil
}

func (h *APIHandler) SearchView(ctx context.Context, input *struct {
	IDInput
	Body struct {
		Kind risk.Kind `json:"kind" enum:"adm3,farm,enterprise" doc:"Entity kind"`
		Q    string    `json:"q" minLength:"1" doc:"Name fragment"`
	}
}) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Views.Search(input.ID, input.Body.Kind, input.Body.Q); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Search scheduled"}}, nil
}

func (h *APIHandler) ViewRisk(ctx context.Context, input *IDInput) (*struct{ Body service.ViewRisk }, error) {
	out, err := h.svc.Views.Risk(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body service.ViewRisk }{Body: out}, nil
}

// ViewEvents streams selection changes, debounced search results and
// selection warnings of one view.
func (h *APIHandler) ViewEvents(ctx context.Context, input *IDInput) (*huma.StreamResponse, error) {
	v, err := h.svc.Views.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	sh := humastar.Handler{Renderer: h.svc.Renderer}
	return sh.Stream(func(sse humastar.SSE) {
		ch := h.svc.Bus.Subscribe()
		defer h.svc.Bus.Unsubscribe(ch)

		sse.Signals(map[string]any{"selection": v.State()})
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Resource != service.ResourceViews || ev.ID != input.ID {
					continue
				}
				switch ev.Action {
				case service.ViewChanged:
					sse.Signals(map[string]any{"selection": ev.Data})
				case service.ViewSearch:
					sse.Replace(sh.Fragment("search_results.html", ev.Data), "#search-results")
				case service.ViewWarning:
					msg, _ := ev.Data.(string)
					sse.Warning(msg)
				}
			}
		}
	}), nil
}

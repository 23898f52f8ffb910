package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ganabosques/ganabosques-geo/internal/period"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
	"github.com/ganabosques/ganabosques-geo/internal/selection"
	"github.com/ganabosques/ganabosques-geo/internal/task"
)

// ErrViewNotFound is returned for unknown view ids.
var ErrViewNotFound = errors.New("view not found")

// searchTimeout bounds one debounced search.
const searchTimeout = 30 * time.Second

// SearchResult is published on the bus when a debounced view search
// completes and is still the newest one.
type SearchResult struct {
	Kind    risk.Kind `json:"kind"`
	Query   string    `json:"query"`
	Results []Entity  `json:"results"`
	Error   string    `json:"error,omitempty"`
}

// ViewRisk is the risk of everything selected in a view.
type ViewRisk struct {
	State selection.State `json:"state"`
	Rows  []risktable.Row `json:"rows"`
}

// View is one client's filter and selection.
type View struct {
	ID       string
	store    *selection.Store
	latest   task.Latest
	debounce *task.Debouncer
}

// State returns the current selection.
func (v *View) State() selection.State { return v.store.State() }

// ViewService keys selection views by UUID.
type ViewService struct {
	risk  *RiskService
	bus   *EventBus
	quiet time.Duration

	mu    sync.RWMutex
	views map[string]*View
}

// NewViewService creates a new view service. quiet is the search debounce
// period; zero selects task.DefaultQuiet.
func NewViewService(riskSvc *RiskService, bus *EventBus, quiet time.Duration) *ViewService {
	if bus == nil {
		bus = DefaultBus
	}
	if quiet <= 0 {
		quiet = task.DefaultQuiet
	}
	return &ViewService{risk: riskSvc, bus: bus, quiet: quiet, views: make(map[string]*View)}
}

// Create registers an empty view.
func (s *ViewService) Create() *View {
	id := uuid.NewString()
	v := &View{ID: id, debounce: task.NewDebouncer(s.quiet)}
	v.store = selection.NewStore(selection.New(), func(st selection.State) {
		s.bus.Publish(Event{Resource: ResourceViews, Action: ViewChanged, ID: id, Data: st})
	})

	s.mu.Lock()
	s.views[id] = v
	s.mu.Unlock()
	return v
}

// Get returns the view of id.
func (s *ViewService) Get(id string) (*View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	return v, nil
}

// Delete closes and forgets the view of id.
func (s *ViewService) Delete(id string) error {
	s.mu.Lock()
	v, ok := s.views[id]
	delete(s.views, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	v.debounce.Stop()
	v.store.Close()
	return nil
}

// Dispatch applies actions to the view of id. A full selection list is
// also published as a warning event.
func (s *ViewService) Dispatch(id string, actions ...selection.Action) (selection.State, error) {
	v, err := s.Get(id)
	if err != nil {
		return selection.State{}, err
	}
	st, err := v.store.Dispatch(actions...)
	if errors.Is(err, selection.ErrSelectionFull) {
		s.bus.Publish(Event{Resource: ResourceViews, Action: ViewWarning, ID: id, Data: err.Error()})
	}
	return st, err
}

// SetFilters applies filter actions to the view of id. When they leave the
// view without a period, the latest listed period of its source and risk
// type is selected.
func (s *ViewService) SetFilters(ctx context.Context, id string, actions ...selection.Action) (selection.State, error) {
	st, err := s.Dispatch(id, actions...)
	if err != nil || st.Period != nil {
		return st, err
	}
	def, ok := s.DefaultPeriod(ctx, st)
	if !ok {
		return st, nil
	}
	return s.Dispatch(id, def)
}

// DefaultPeriod picks the most recent listed period matching the source and
// risk type of st.
func (s *ViewService) DefaultPeriod(ctx context.Context, st selection.State) (selection.SetPeriod, bool) {
	typ := st.RiskType
	if typ == "" {
		typ = risk.TypeAnnual
	}
	listed := s.risk.Periods(ctx, st.Source, string(typ))
	periods := make([]period.Period, len(listed))
	for i, d := range listed {
		periods[i] = d.Period()
	}
	latest, ok := period.Latest(periods, period.Type(typ))
	if !ok {
		return selection.SetPeriod{}, false
	}
	for i, p := range periods {
		if period.Match(p, latest) {
			return selection.SetPeriod{ID: listed[i].ID, Period: p}, true
		}
	}
	return selection.SetPeriod{}, false
}

// Search schedules a name search for the view of id. Calls within the quiet
// period replace each other, and a result is only published while no newer
// search has started.
func (s *ViewService) Search(id string, kind risk.Kind, query string) error {
	v, err := s.Get(id)
	if err != nil {
		return err
	}
	v.debounce.Do(func() {
		token := v.latest.Begin()
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()

		res := SearchResult{Kind: kind, Query: query, Results: []Entity{}}
		found, err := s.risk.Search(ctx, kind, query)
		if !v.latest.Current(token) {
			log.WithFields(log.Fields{"view": id, "query": query}).Debug("dropping superseded search")
			return
		}
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Results = found
		}
		s.bus.Publish(Event{Resource: ResourceViews, Action: ViewSearch, ID: id, Data: res})
	})
	return nil
}

// Risk fetches the risk rows of everything selected in the view of id for
// its selected period. A selection change while fetching yields
// selection.ErrStale.
func (s *ViewService) Risk(ctx context.Context, id string) (ViewRisk, error) {
	v, err := s.Get(id)
	if err != nil {
		return ViewRisk{}, err
	}
	return selection.Load(ctx, v.store, func(ctx context.Context, st selection.State) (ViewRisk, error) {
		queries := []TableQuery{
			{Kind: risk.KindFarm, IDs: st.Farms},
			{Kind: risk.KindAdm3, IDs: st.Adm3},
			{Kind: risk.KindEnterprise, IDs: st.EnterpriseIDs()},
		}
		results := make([][]risktable.Row, len(queries))
		g, gctx := errgroup.WithContext(ctx)
		for i, q := range queries {
			if len(q.IDs) == 0 {
				continue
			}
			q.Type, q.Labels = st.RiskType, st.Labels()
			g.Go(func() error {
				rows, err := s.risk.Rows(gctx, q)
				results[i] = rows
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return ViewRisk{}, err
		}
		out := ViewRisk{State: st, Rows: []risktable.Row{}}
		for _, rows := range results {
			out.Rows = append(out.Rows, rows...)
		}
		return out, nil
	})
}

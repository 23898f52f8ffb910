// Package selection holds the filter and entity selection of a map view.
// State values are immutable; every action returns a new State.
package selection

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ganabosques/ganabosques-geo/internal/ids"
	"github.com/ganabosques/ganabosques-geo/internal/period"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
)

// MaxEntries caps each selection list.
const MaxEntries = 5

var (
	// ErrSelectionFull is returned when adding a distinct entry to a list
	// that already holds MaxEntries.
	ErrSelectionFull = errors.New("selection full")
	ErrEmptyID       = errors.New("empty id")
)

// Enterprise is a selected enterprise with its display id.
type Enterprise struct {
	ID        string `json:"id" doc:"Enterprise id"`
	DisplayID string `json:"display_id,omitempty" doc:"Id shown to the user"`
	Name      string `json:"name,omitempty" doc:"Enterprise name"`
}

// State is the filter and selection of one view.
type State struct {
	RiskType    risk.Type      `json:"risk_type" doc:"Risk classification mode"`
	Source      string         `json:"source,omitempty" doc:"Deforestation source"`
	PeriodID    string         `json:"period_id,omitempty" doc:"Selected deforestation period id"`
	Period      *period.Period `json:"period,omitempty" doc:"Selected period"`
	Farms       []string       `json:"farms" doc:"Selected farm codes"`
	Adm3        []string       `json:"adm3" doc:"Selected administrative regions"`
	Enterprises []Enterprise   `json:"enterprises" doc:"Selected enterprises"`
}

// New returns an empty annual selection.
func New() State {
	return State{RiskType: risk.TypeAnnual, Farms: []string{}, Adm3: []string{}, Enterprises: []Enterprise{}}
}

// Years returns the start and end year of the selected period.
func (s State) Years() (start, end int, ok bool) {
	if s.Period == nil || !s.Period.Valid() {
		return 0, 0, false
	}
	start, end = s.Period.Years()
	return start, end, true
}

// DateRange is the movement query range covering the selected years.
func (s State) DateRange() (start, end string, ok bool) {
	ys, ye, ok := s.Years()
	if !ok {
		return "", "", false
	}
	from := time.Date(ys, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(ye, time.December, 31, 0, 0, 0, 0, time.UTC)
	return from.Format(time.DateOnly), to.Format(time.DateOnly), true
}

// Labels returns the "YYYY-YYYY" period label filter of the selection, or
// nil when no period is selected. Risk items are filtered on their raw end
// year, so a cumulative label ends on the boundary year.
func (s State) Labels() []string {
	ys, ye, ok := s.Years()
	if !ok {
		return nil
	}
	if s.Period.Type == period.TypeCumulative && s.Period.End != nil {
		ye = s.Period.End.Year()
	}
	return []string{fmt.Sprintf("%d-%d", ys, ye)}
}

// EnterpriseIDs returns the ids of the selected enterprises.
func (s State) EnterpriseIDs() []string {
	out := make([]string, len(s.Enterprises))
	for i, e := range s.Enterprises {
		out[i] = e.ID
	}
	return out
}

// Action transforms a State.
type Action interface {
	apply(State) (State, error)
}

// Reduce applies a. On error the input state is returned unchanged.
func Reduce(s State, a Action) (State, error) {
	next, err := a.apply(s)
	if err != nil {
		return s, err
	}
	return next, nil
}

// SetRiskType switches the risk mode and clears the period, which belongs
// to the previous mode's listing.
type SetRiskType struct{ Type risk.Type }

func (a SetRiskType) apply(s State) (State, error) {
	if a.Type == s.RiskType {
		return s, nil
	}
	s.RiskType = a.Type
	s.PeriodID, s.Period = "", nil
	return s, nil
}

// SetSource switches the deforestation source and clears the period.
type SetSource struct{ Source string }

func (a SetSource) apply(s State) (State, error) {
	if a.Source == s.Source {
		return s, nil
	}
	s.Source = a.Source
	s.PeriodID, s.Period = "", nil
	return s, nil
}

// SetPeriod selects a period from the listing.
type SetPeriod struct {
	ID     string
	Period period.Period
}

func (a SetPeriod) apply(s State) (State, error) {
	if !a.Period.Valid() {
		return s, fmt.Errorf("period %q has no boundaries", a.ID)
	}
	p := a.Period
	s.PeriodID, s.Period = a.ID, &p
	return s, nil
}

// AddFarm selects a farm code.
type AddFarm struct{ ID string }

func (a AddFarm) apply(s State) (State, error) {
	list, err := add(s.Farms, ids.Normalize(a.ID))
	s.Farms = list
	return s, err
}

// RemoveFarm deselects a farm code.
type RemoveFarm struct{ ID string }

func (a RemoveFarm) apply(s State) (State, error) {
	s.Farms = remove(s.Farms, ids.Normalize(a.ID))
	return s, nil
}

// AddAdm3 selects an administrative region.
type AddAdm3 struct{ ID string }

func (a AddAdm3) apply(s State) (State, error) {
	list, err := add(s.Adm3, ids.Normalize(a.ID))
	s.Adm3 = list
	return s, err
}

// RemoveAdm3 deselects an administrative region.
type RemoveAdm3 struct{ ID string }

func (a RemoveAdm3) apply(s State) (State, error) {
	s.Adm3 = remove(s.Adm3, ids.Normalize(a.ID))
	return s, nil
}

// AddEnterprise selects an enterprise.
type AddEnterprise struct{ Enterprise Enterprise }

func (a AddEnterprise) apply(s State) (State, error) {
	e := a.Enterprise
	e.ID = ids.Normalize(e.ID)
	if e.ID == "" {
		return s, ErrEmptyID
	}
	if slices.ContainsFunc(s.Enterprises, func(x Enterprise) bool { return x.ID == e.ID }) {
		return s, nil
	}
	if len(s.Enterprises) >= MaxEntries {
		return s, ErrSelectionFull
	}
	if e.DisplayID == "" {
		e.DisplayID = e.ID
	}
	s.Enterprises = append(slices.Clone(s.Enterprises), e)
	return s, nil
}

// RemoveEnterprise deselects an enterprise by id.
type RemoveEnterprise struct{ ID string }

func (a RemoveEnterprise) apply(s State) (State, error) {
	id := ids.Normalize(a.ID)
	s.Enterprises = slices.DeleteFunc(slices.Clone(s.Enterprises), func(x Enterprise) bool { return x.ID == id })
	return s, nil
}

// Clear empties every selection list, keeping the filters.
type Clear struct{}

func (Clear) apply(s State) (State, error) {
	s.Farms, s.Adm3, s.Enterprises = []string{}, []string{}, []Enterprise{}
	return s, nil
}

func add(list []string, id string) ([]string, error) {
	if id == "" {
		return list, ErrEmptyID
	}
	if slices.Contains(list, id) {
		return list, nil
	}
	if len(list) >= MaxEntries {
		return list, ErrSelectionFull
	}
	return append(slices.Clone(list), id), nil
}

func remove(list []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(list), func(x string) bool { return x == id })
}

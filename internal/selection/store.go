package selection

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/ganabosques/ganabosques-geo/internal/task"
)

// ErrStale is returned by Load when the filters changed while the fetch was
// in flight. The fetched result must be dropped.
var ErrStale = errors.New("selection changed during fetch")

// Store serialises actions on one view's State. Each change cancels the
// fetch started for the previous state.
type Store struct {
	mu       sync.Mutex
	state    State
	onChange func(State)
	scope    task.Scope
}

// NewStore returns a store holding initial. onChange, if set, is called with
// every new state after the lock is released.
func NewStore(initial State, onChange func(State)) *Store {
	return &Store{state: initial, onChange: onChange}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies actions in order. It stops at the first error, keeping
// the state reached so far.
func (s *Store) Dispatch(actions ...Action) (State, error) {
	s.mu.Lock()
	prev := s.state
	next := prev
	var err error
	for _, a := range actions {
		if next, err = Reduce(next, a); err != nil {
			break
		}
	}
	s.state = next
	s.mu.Unlock()

	if !sameState(prev, next) {
		s.scope.Close()
		if s.onChange != nil {
			s.onChange(next)
		}
	}
	return next, err
}

// Close cancels any in-flight fetch.
func (s *Store) Close() {
	s.scope.Close()
}

// Load runs fetch with the current state under a context that is cancelled
// when the state changes or another Load starts. If that happens before
// fetch returns, Load returns ErrStale and the zero value.
func Load[T any](ctx context.Context, s *Store, fetch func(ctx context.Context, st State) (T, error)) (T, error) {
	var zero T
	fctx, token := s.scope.Start(ctx)
	v, err := fetch(fctx, s.State())
	if !s.scope.Valid(token) {
		return zero, ErrStale
	}
	if err != nil {
		return zero, err
	}
	return v, nil
}

func sameState(a, b State) bool {
	return a.RiskType == b.RiskType &&
		a.Source == b.Source &&
		a.PeriodID == b.PeriodID &&
		a.Period == b.Period &&
		slices.Equal(a.Farms, b.Farms) &&
		slices.Equal(a.Adm3, b.Adm3) &&
		slices.Equal(a.Enterprises, b.Enterprises)
}

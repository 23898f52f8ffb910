// Package task holds the small concurrency helpers shared by the query
// paths: a restartable debouncer, a latest-query guard and a cancellable
// fetch scope.
package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQuiet is the search debounce quiet period.
const DefaultQuiet = 300 * time.Millisecond

// Debouncer runs only the last function submitted within a quiet period.
// Every Do restarts the timer.
type Debouncer struct {
	quiet time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer returns a debouncer; a non-positive quiet uses DefaultQuiet.
func NewDebouncer(quiet time.Duration) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Debouncer{quiet: quiet}
}

// Do schedules fn after the quiet period, replacing any pending function.
func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, fn)
}

// Stop drops a pending function.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Latest issues increasing generation tokens. Only the holder of the newest
// token may apply its result.
type Latest struct {
	gen atomic.Uint64
}

// Begin starts a new query and returns its token.
func (l *Latest) Begin() uint64 {
	return l.gen.Add(1)
}

// Current reports whether token is still the newest.
func (l *Latest) Current(token uint64) bool {
	return l.gen.Load() == token
}

// Scope owns the context of the in-flight fetch. Starting a new fetch
// cancels the previous one.
type Scope struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// Start cancels the previous fetch and derives a fresh context from parent.
// The returned token identifies this fetch for Valid.
func (s *Scope) Start(parent context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.gen++
	return ctx, s.gen
}

// Valid reports whether the fetch identified by token has not been
// superseded. A superseded fetch must drop its result.
func (s *Scope) Valid(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == token
}

// Close cancels the in-flight fetch.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

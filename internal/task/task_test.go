package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRunsLastOnly(t *testing.T) {
	d := NewDebouncer(40 * time.Millisecond)
	var calls atomic.Int32
	var last atomic.Value
	done := make(chan struct{}, 4)

	for _, q := range []string{"g", "ga", "gan"} {
		q := q
		d.Do(func() {
			calls.Add(1)
			last.Store(q)
			done <- struct{}{}
		})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced function never ran")
	}
	time.Sleep(80 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if last.Load() != "gan" {
		t.Fatalf("last = %v, want gan", last.Load())
	}
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	d.Do(func() { calls.Add(1) })
	d.Stop()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("calls = %d after Stop", calls.Load())
	}
}

func TestLatest(t *testing.T) {
	var l Latest
	a := l.Begin()
	b := l.Begin()
	if l.Current(a) {
		t.Fatal("stale token reported current")
	}
	if !l.Current(b) {
		t.Fatal("newest token not current")
	}
}

func TestScopeCancelsPrevious(t *testing.T) {
	var s Scope
	ctx1, tok1 := s.Start(context.Background())
	ctx2, tok2 := s.Start(context.Background())

	if ctx1.Err() == nil {
		t.Fatal("first context should be cancelled")
	}
	if ctx2.Err() != nil {
		t.Fatal("second context should be live")
	}
	if s.Valid(tok1) || !s.Valid(tok2) {
		t.Fatal("only the newest fetch is valid")
	}

	s.Close()
	if ctx2.Err() == nil || s.Valid(tok2) {
		t.Fatal("Close should cancel and invalidate")
	}
}

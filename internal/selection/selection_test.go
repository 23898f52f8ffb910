package selection

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ganabosques/ganabosques-geo/internal/period"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
)

func TestSelectionCapAndDuplicates(t *testing.T) {
	s := New()
	var err error
	for i := 0; i < MaxEntries; i++ {
		if s, err = Reduce(s, AddFarm{ID: fmt.Sprintf("F%d", i)}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	before := s
	s, err = Reduce(s, AddFarm{ID: "F9"})
	if !errors.Is(err, ErrSelectionFull) {
		t.Fatalf("err = %v, want ErrSelectionFull", err)
	}
	if len(s.Farms) != MaxEntries || !sameState(before, s) {
		t.Fatalf("state changed on full add: %v", s.Farms)
	}

	s, err = Reduce(s, AddFarm{ID: ` "F0" `})
	if err != nil || len(s.Farms) != MaxEntries {
		t.Fatalf("duplicate add should be ignored: %v %v", err, s.Farms)
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	a := New()
	b, _ := Reduce(a, AddAdm3{ID: `ObjectId("5f1e9b2c3d4a5b6c7d8e9f01")`})
	c, _ := Reduce(b, AddAdm3{ID: "x"})
	if len(a.Adm3) != 0 || len(b.Adm3) != 1 || len(c.Adm3) != 2 {
		t.Fatalf("lengths %d %d %d", len(a.Adm3), len(b.Adm3), len(c.Adm3))
	}
	if b.Adm3[0] != "5f1e9b2c3d4a5b6c7d8e9f01" {
		t.Fatalf("id not normalized: %q", b.Adm3[0])
	}
	d, _ := Reduce(c, RemoveAdm3{ID: "x"})
	if len(c.Adm3) != 2 || len(d.Adm3) != 1 {
		t.Fatal("remove mutated its input")
	}
}

func TestEnterprises(t *testing.T) {
	s := New()
	s, _ = Reduce(s, AddEnterprise{Enterprise: Enterprise{ID: "e1", Name: "Planta"}})
	s, _ = Reduce(s, AddEnterprise{Enterprise: Enterprise{ID: "e1", Name: "Otra"}})
	if len(s.Enterprises) != 1 || s.Enterprises[0].Name != "Planta" || s.Enterprises[0].DisplayID != "e1" {
		t.Fatalf("enterprises: %+v", s.Enterprises)
	}
	if _, err := Reduce(s, AddEnterprise{}); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("err = %v, want ErrEmptyID", err)
	}
	s, _ = Reduce(s, RemoveEnterprise{ID: "e1"})
	if len(s.Enterprises) != 0 {
		t.Fatalf("enterprises after remove: %+v", s.Enterprises)
	}
}

func TestRiskTypeClearsPeriod(t *testing.T) {
	p := period.Classify(period.TypeCumulative, "2020-01-01", "2024-01-01")
	s, err := Reduce(New(), SetPeriod{ID: "p1", Period: p})
	if err != nil {
		t.Fatal(err)
	}
	start, end, ok := s.Years()
	if !ok || start != 2020 || end != 2023 {
		t.Fatalf("years = %d %d %v", start, end, ok)
	}
	from, to, _ := s.DateRange()
	if from != "2020-01-01" || to != "2023-12-31" {
		t.Fatalf("range = %s %s", from, to)
	}
	if l := s.Labels(); len(l) != 1 || l[0] != "2020-2024" {
		t.Fatalf("labels = %v", l)
	}

	s, _ = Reduce(s, SetRiskType{Type: risk.TypeCumulative})
	if s.Period != nil || s.PeriodID != "" {
		t.Fatal("period should be cleared on risk type change")
	}
	if _, _, ok := s.Years(); ok {
		t.Fatal("no years without a period")
	}
	if s.Labels() != nil {
		t.Fatal("no labels without a period")
	}
	if _, err := Reduce(s, SetPeriod{ID: "bad"}); err == nil {
		t.Fatal("expected error for empty period")
	}
}

func TestStoreDispatchNotifiesAndCancels(t *testing.T) {
	var seen []State
	st := NewStore(New(), func(s State) { seen = append(seen, s) })

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Load(context.Background(), st, func(ctx context.Context, s State) (int, error) {
			close(started)
			<-ctx.Done()
			return 0, ctx.Err()
		})
		done <- err
	}()
	<-started

	if _, err := st.Dispatch(AddFarm{ID: "F1"}); err != nil {
		t.Fatal(err)
	}
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if len(seen) != 1 || seen[0].Farms[0] != "F1" {
		t.Fatalf("notifications: %+v", seen)
	}

	if _, err := st.Dispatch(AddFarm{ID: "F1"}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 {
		t.Fatal("no-op dispatch should not notify")
	}

	v, err := Load(context.Background(), st, func(ctx context.Context, s State) (int, error) {
		return len(s.Farms), nil
	})
	if err != nil || v != 1 {
		t.Fatalf("Load = %d, %v", v, err)
	}
}

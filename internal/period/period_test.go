package period

import (
	"testing"

	"github.com/ganabosques/ganabosques-geo/internal/risk"
)

func TestYearFromDateLike(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"2023-06-15T00:00:00Z", 2023, true},
		{"2023-06-15", 2023, true},
		{"2019-12-31 23:59:59", 2019, true},
		{"no date but 1998 here", 1998, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := YearFromDateLike(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("YearFromDateLike(%q) = %d,%v want %d,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestYearsFromLabels(t *testing.T) {
	labels := []string{"2023-2024", "2020 - 2021", "bad", "x-2022", "2019-y"}
	start := YearsFromLabels(labels, PickStart)
	if len(start) != 3 {
		t.Fatalf("start years=%v", start)
	}
	for _, y := range []int{2023, 2020, 2019} {
		if _, ok := start[y]; !ok {
			t.Errorf("missing start year %d", y)
		}
	}
	end := YearsFromLabels(labels, PickEnd)
	for _, y := range []int{2024, 2021, 2022} {
		if _, ok := end[y]; !ok {
			t.Errorf("missing end year %d", y)
		}
	}
	if len(end) != 3 {
		t.Fatalf("end years=%v", end)
	}
}

func groupsFixture() []risk.Group {
	return risk.DecodeGroups([]byte(`{
		"b": {"items": [
			{"period_start": "2023-01-01", "period_end": "2024-01-01"},
			{"period_start": "2022-01-01", "period_end": "2023-01-01"}
		]},
		"a": {"items": [
			{"period_start": "2023-01-01", "period_end": "2024-01-01"}
		]},
		"c": {"items": [
			{"period_start": "2019-01-01", "period_end": "2020-01-01"}
		]}
	}`))
}

func TestFilterByLabelsAnnual(t *testing.T) {
	out := FilterByLabels(groupsFixture(), []string{"2023-2024"}, risk.TypeAnnual)
	if len(out) != 2 {
		t.Fatalf("groups=%d, want 2 (group c dropped)", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("order=%s,%s, want a,b", out[0].ID, out[1].ID)
	}
	if len(out[1].Items) != 1 || out[1].Items[0].PeriodStart != "2023-01-01" {
		t.Fatalf("b items=%+v", out[1].Items)
	}
}

func TestFilterByLabelsCumulativeUsesEndYear(t *testing.T) {
	out := FilterByLabels(groupsFixture(), []string{"2000-2023"}, risk.TypeCumulative)
	if len(out) != 1 || out[0].ID != "b" {
		t.Fatalf("groups=%+v", out)
	}
	if len(out[0].Items) != 1 || out[0].Items[0].PeriodEnd != "2023-01-01" {
		t.Fatalf("kept=%+v", out[0].Items)
	}

	late := risk.DecodeGroups([]byte(`{"a": {"items": [{"period_start": "2000-01-01", "period_end": "2024-12-31"}]}}`))
	if out := FilterByLabels(late, []string{"2000-2024"}, risk.TypeCumulative); len(out) != 1 {
		t.Fatalf("groups=%d, want the item ending in 2024 kept", len(out))
	}
}

func TestFilterByLabelsDropsEmptyGroups(t *testing.T) {
	out := FilterByLabels(groupsFixture(), []string{"1990-1991"}, risk.TypeAnnual)
	if len(out) != 0 {
		t.Fatalf("groups=%d, want 0", len(out))
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		start, end, want string
	}{
		{"2024-01-05", "2024-03-20", "20241"},
		{"2024-07-01", "2024-09-30", "20243"},
		{"2023-01-01", "2024-12-31", "2023 - 2024"},
		{"2023-01-01", "2023-12-31", "2023 - 2023"},
		{"2023-01-01", "", "2023"},
		{"", "2021-05-01", "2021"},
		{"", "", "—"},
		{"garbage", "nope", "—"},
	}
	for _, tt := range tests {
		if got := Format(tt.start, tt.end); got != tt.want {
			t.Errorf("Format(%q,%q) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestPeriodKeyAndMatch(t *testing.T) {
	a := Classify(TypeAnnual, "2023-01-01", "2023-12-31")
	b := Classify(TypeAnnual, "2023-03-01T00:00:00Z", "2023-11-30")
	if !Match(a, b) {
		t.Fatalf("annual periods in same year should match: %s vs %s", a.Key(), b.Key())
	}

	c := Classify(TypeCumulative, "2000-01-01", "2024-01-01")
	if start, end := c.Years(); start != 2000 || end != 2023 {
		t.Fatalf("cumulative years=%d,%d", start, end)
	}

	atd1 := Classify(TypeATD, "2024-01-05", "2024-03-20")
	atd2 := Classify(TypeATD, "2024-01-20", "2024-03-01")
	atd3 := Classify(TypeATD, "2024-02-01", "2024-03-01")
	if !Match(atd1, atd2) || Match(atd1, atd3) {
		t.Fatalf("sub-annual keys: %s %s %s", atd1.Key(), atd2.Key(), atd3.Key())
	}

	if Match(Period{}, Period{}) {
		t.Fatal("empty periods must not match")
	}
}

func TestLatest(t *testing.T) {
	periods := []Period{
		Classify(TypeAnnual, "2021-01-01", "2021-12-31"),
		Classify(TypeAnnual, "2023-01-01", "2023-12-31"),
		Classify(TypeCumulative, "2000-01-01", "2025-01-01"),
		{Type: TypeAnnual},
	}
	p, ok := Latest(periods, TypeAnnual)
	if !ok || p.Label != "2023 - 2023" {
		t.Fatalf("latest=%+v ok=%v", p, ok)
	}
	if _, ok := Latest(periods, TypeNAD); ok {
		t.Fatal("expected no nad period")
	}
}

func TestDeforestationPeriod(t *testing.T) {
	d := Deforestation{Type: "ANNUAL", PeriodStart: "2022-01-01", PeriodEnd: "2022-12-31"}
	p := d.Period()
	if p.Type != TypeAnnual || !p.Valid() {
		t.Fatalf("period=%+v", p)
	}
}

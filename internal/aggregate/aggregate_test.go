package aggregate

import (
	"reflect"
	"testing"

	"github.com/tidwall/gjson"
)

func TestByCategoryNestedUsesSubcategoryLabel(t *testing.T) {
	got := ByCategory([]byte(`{"2023": {"Bovino": {"Macho": {"headcount": 10}, "Hembra": {"headcount": 5}}}}`))
	want := Result{Categories: []string{"Macho", "Hembra"}, Series: []float64{10, 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestByCategoryEntriesSum(t *testing.T) {
	got := ByCategory([]byte(`{"2023": [{"subcategory": "Macho", "headcount": 10}, {"subcategory": "Macho", "headcount": 3}]}`))
	want := Result{Categories: []string{"Macho"}, Series: []float64{13}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestByCategoryTopLevelArray(t *testing.T) {
	got := ByCategory([]byte(`[{"subcategory": "Macho", "headcount": 10}, {"subcategory": "Macho", "headcount": 3}]`))
	if len(got.Categories) != 1 || got.Series[0] != 13 {
		t.Fatalf("got %+v", got)
	}
}

func TestByCategoryFieldFallbacks(t *testing.T) {
	got := ByCategory([]byte(`{
		"2022": [
			{"name": "Ternero", "amount": 2},
			{"species_name": "Bufalo", "total": 4},
			{"category": "Toro"},
			{"id": "x1", "headcount": 1.5}
		]
	}`))
	want := Result{
		Categories: []string{"Ternero", "Bufalo", "Toro", "x1"},
		Series:     []float64{2, 4, 0, 1.5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestByCategorySumsAcrossGroupsAndYears(t *testing.T) {
	got := ByCategory([]byte(`{
		"2022": {"Bovino": {"Macho": {"headcount": 1}}, "Bufalino": {"Macho": {"amount": 2}, "Hembra": {"total": 7}}},
		"2023": {"Macho": 4, "Hembra": 1}
	}`))
	want := Result{Categories: []string{"Macho", "Hembra"}, Series: []float64{7, 8}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestByCategoryOneLevelLeaves(t *testing.T) {
	got := ByCategory([]byte(`{"2023": {"Macho": {"headcount": 3}, "Hembra": {"headcount": 2}}}`))
	want := Result{Categories: []string{"Macho", "Hembra"}, Series: []float64{3, 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestByCategoryUnrecognizedIsCounted(t *testing.T) {
	got := ByCategory([]byte(`{"2023": "n/a", "2024": [{"headcount": 3}], "2025": {"Macho": 2}}`))
	if got.Unrecognized != 2 {
		t.Fatalf("unrecognized=%d, want 2", got.Unrecognized)
	}
	if len(got.Categories) != 1 || got.Categories[0] != "Macho" || got.Series[0] != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestByCategoryEmpty(t *testing.T) {
	for _, in := range []string{"", "null", "{}", "[]"} {
		got := ByCategory([]byte(in))
		if len(got.Categories) != 0 || got.Unrecognized != 0 {
			t.Errorf("ByCategory(%q) = %+v", in, got)
		}
	}
}

func TestDetect(t *testing.T) {
	tests := map[string]Shape{
		`[]`:                         ShapeEntries,
		`{"a": 1}`:                   ShapeFlat,
		`{"a": {"b": {"total": 1}}}`: ShapeNested,
		`{"a": "x"}`:                 ShapeUnrecognized,
		`"x"`:                        ShapeUnrecognized,
	}
	for in, want := range tests {
		if got := Detect(gjson.Parse(in)); got != want {
			t.Errorf("Detect(%s) = %v, want %v", in, got, want)
		}
	}
}

func TestMovement(t *testing.T) {
	rec := gjson.Parse(`{
		"inputs": {"farms": [], "statistics": {"2023": {"Bovino": {"Macho": {"headcount": 4}}}}},
		"outputs": {"statistics": {"2023": [{"subcategory": "Hembra", "headcount": 6}]}}
	}`)
	m := Movement("f1", rec)
	if m.Inputs.Total() != 4 || m.Outputs.Total() != 6 {
		t.Fatalf("movement=%+v", m)
	}
	empty := Movement("f2", gjson.Parse(`{}`))
	if len(empty.Inputs.Categories) != 0 {
		t.Fatalf("empty=%+v", empty)
	}
}

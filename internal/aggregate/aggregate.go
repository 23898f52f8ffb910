// Package aggregate reduces nested per-entity statistics into flat
// category totals.
//
// The remote service does not fix the shape of species breakdowns, so every
// per-year value is classified into one of the known shapes first:
//
//	ShapeEntries  [{"subcategory": "Macho", "headcount": 10}, ...]
//	ShapeNested   {"Bovino": {"Macho": {"headcount": 10}}}
//	ShapeFlat     {"Macho": 10, "Hembra": 5}
//
// Anything else is ShapeUnrecognized: it contributes nothing, is logged and
// counted, and is reported back in Result.Unrecognized.
package aggregate

import (
	"github.com/apex/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/ganabosques/ganabosques-geo/internal/metrics"
)

// Shape is the detected shape of one species group.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeEntries
	ShapeNested
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeEntries:
		return "entries"
	case ShapeNested:
		return "nested"
	case ShapeFlat:
		return "flat"
	default:
		return "unrecognized"
	}
}

var (
	labelFields = []string{"subcategory", "name", "species_name", "category", "id", "_id"}
	valueFields = []string{"headcount", "amount", "total"}
)

// Result holds category totals in first-seen order.
type Result struct {
	Categories   []string  `json:"categories"`
	Series       []float64 `json:"series"`
	Unrecognized int       `json:"unrecognized,omitempty"`
}

// Total sums the series.
func (r Result) Total() float64 {
	sum := decimal.Zero
	for _, v := range r.Series {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	f, _ := sum.Float64()
	return f
}

// accumulator keeps ordered additive totals per label.
type accumulator struct {
	order  []string
	totals map[string]decimal.Decimal
	bad    int
}

func newAccumulator() *accumulator {
	return &accumulator{totals: make(map[string]decimal.Decimal)}
}

func (a *accumulator) add(label string, v decimal.Decimal) {
	if _, ok := a.totals[label]; !ok {
		a.order = append(a.order, label)
		a.totals[label] = decimal.Zero
	}
	a.totals[label] = a.totals[label].Add(v)
}

func (a *accumulator) skip(what string, v gjson.Result) {
	a.bad++
	metrics.UnrecognizedShapes.WithLabelValues("aggregate").Inc()
	log.WithFields(log.Fields{"value": truncate(v.Raw, 80), "at": what}).Debug("skipping unrecognized statistics value")
}

func (a *accumulator) result() Result {
	r := Result{
		Categories:   make([]string, 0, len(a.order)),
		Series:       make([]float64, 0, len(a.order)),
		Unrecognized: a.bad,
	}
	for _, label := range a.order {
		f, _ := a.totals[label].Float64()
		r.Categories = append(r.Categories, label)
		r.Series = append(r.Series, f)
	}
	return r
}

// Detect classifies a species group value.
func Detect(v gjson.Result) Shape {
	switch {
	case v.IsArray():
		return ShapeEntries
	case v.IsObject():
		nested := false
		flat := false
		v.ForEach(func(_, child gjson.Result) bool {
			switch {
			case child.IsObject():
				nested = true
			case child.Type == gjson.Number:
				flat = true
			}
			return true
		})
		switch {
		case nested:
			return ShapeNested
		case flat:
			return ShapeFlat
		}
	}
	return ShapeUnrecognized
}

// ByCategory aggregates a year-keyed map of species groups. A top-level
// array is treated as a single group.
func ByCategory(dataByYear []byte) Result {
	acc := newAccumulator()
	root := gjson.ParseBytes(dataByYear)
	switch {
	case root.IsArray():
		acc.group("", root)
	case root.IsObject():
		root.ForEach(func(year, group gjson.Result) bool {
			acc.group(year.String(), group)
			return true
		})
	default:
		if len(dataByYear) > 0 && root.Type != gjson.Null {
			acc.skip("root", root)
		}
	}
	return acc.result()
}

// ByCategoryResult aggregates an already parsed year-keyed value.
func ByCategoryResult(v gjson.Result) Result {
	if !v.Exists() {
		return Result{Categories: []string{}, Series: []float64{}}
	}
	return ByCategory([]byte(v.Raw))
}

func (a *accumulator) group(year string, v gjson.Result) {
	switch Detect(v) {
	case ShapeEntries:
		v.ForEach(func(_, entry gjson.Result) bool {
			label, ok := entryLabel(entry)
			if !ok {
				a.skip(year, entry)
				return true
			}
			a.add(label, entryValue(entry))
			return true
		})
	case ShapeNested, ShapeFlat:
		v.ForEach(func(groupKey, child gjson.Result) bool {
			switch {
			case child.Type == gjson.Number:
				a.add(groupKey.String(), decimal.NewFromFloat(child.Float()))
			case isLeaf(child):
				a.add(groupKey.String(), entryValue(child))
			case child.IsObject():
				child.ForEach(func(sub, leaf gjson.Result) bool {
					switch {
					case leaf.IsObject():
						a.add(sub.String(), entryValue(leaf))
					case leaf.Type == gjson.Number:
						a.add(sub.String(), decimal.NewFromFloat(leaf.Float()))
					default:
						a.skip(year+"."+groupKey.String(), leaf)
					}
					return true
				})
			default:
				a.skip(year, child)
			}
			return true
		})
	default:
		if v.Type != gjson.Null {
			a.skip(year, v)
		}
	}
}

// isLeaf reports whether an object already carries a numeric value field and
// has no nested objects, as in {"Macho": {"headcount": 3}}.
func isLeaf(v gjson.Result) bool {
	if !v.IsObject() {
		return false
	}
	hasValue := false
	for _, f := range valueFields {
		if v.Get(f).Type == gjson.Number {
			hasValue = true
			break
		}
	}
	if !hasValue {
		return false
	}
	leaf := true
	v.ForEach(func(_, child gjson.Result) bool {
		if child.IsObject() || child.IsArray() {
			leaf = false
			return false
		}
		return true
	})
	return leaf
}

func entryLabel(entry gjson.Result) (string, bool) {
	if !entry.IsObject() {
		return "", false
	}
	for _, f := range labelFields {
		if l := entry.Get(f); l.Exists() && l.String() != "" {
			return l.String(), true
		}
	}
	return "", false
}

func entryValue(entry gjson.Result) decimal.Decimal {
	for _, f := range valueFields {
		if v := entry.Get(f); v.Exists() && v.Type != gjson.Null {
			return decimal.NewFromFloat(v.Float())
		}
	}
	return decimal.Zero
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

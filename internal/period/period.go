package period

import (
	"fmt"
	"strings"
	"time"
)

// Type is the classification of a deforestation period.
type Type string

const (
	TypeAnnual     Type = "annual"
	TypeCumulative Type = "cumulative"
	TypeATD        Type = "atd"
	TypeNAD        Type = "nad"
)

// SubAnnual reports whether periods of this type compare by year-month.
func (t Type) SubAnnual() bool {
	return t == TypeATD || t == TypeNAD
}

// Period is a deforestation analysis period.
type Period struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Label string     `json:"label"`
	Type  Type       `json:"type"`
}

// Deforestation is one entry of the remote period listing.
type Deforestation struct {
	ID              string `json:"id"`
	Source          string `json:"deforestation_source"`
	Type            string `json:"deforestation_type"`
	PeriodStart     string `json:"deforestation_period_start"`
	PeriodEnd       string `json:"deforestation_period_end"`
	DeforestationID string `json:"deforestation_id"`
}

// Period converts the listing entry.
func (d Deforestation) Period() Period {
	return Classify(Type(strings.ToLower(d.Type)), d.PeriodStart, d.PeriodEnd)
}

// Classify builds a Period from raw boundaries.
func Classify(typ Type, start, end string) Period {
	p := Period{Type: typ}
	if t, ok := ParseDate(start); ok {
		p.Start = &t
	}
	if t, ok := ParseDate(end); ok {
		p.End = &t
	}
	p.Label = p.label()
	return p
}

func (p Period) label() string {
	var s, e string
	if p.Start != nil {
		s = p.Start.Format(time.DateOnly)
	}
	if p.End != nil {
		e = p.End.Format(time.DateOnly)
	}
	return Format(s, e)
}

// Valid reports whether at least one boundary is set.
func (p Period) Valid() bool {
	return p.Start != nil || p.End != nil
}

// Years returns the start and end year the period stands for. Cumulative
// periods end the year before their end boundary.
func (p Period) Years() (start, end int) {
	if p.Start != nil {
		start = p.Start.Year()
	}
	if p.End != nil {
		end = p.End.Year()
		if p.Type == TypeCumulative {
			end--
		}
	}
	if start == 0 {
		start = end
	}
	if end == 0 {
		end = start
	}
	return start, end
}

// Key is the comparison key at the granularity of the period type: calendar
// year for annual, end year minus one for cumulative, year-month span for
// sub-annual periods.
func (p Period) Key() string {
	if !p.Valid() {
		return ""
	}
	start, end := p.Years()
	switch {
	case p.Type == TypeCumulative:
		return fmt.Sprintf("cumulative:%04d", end)
	case p.Type.SubAnnual():
		return fmt.Sprintf("%s:%s/%s", p.Type, yearMonth(p.Start), yearMonth(p.End))
	default:
		return fmt.Sprintf("%s:%04d", p.typeOrAnnual(), start)
	}
}

func (p Period) typeOrAnnual() Type {
	if p.Type == "" {
		return TypeAnnual
	}
	return p.Type
}

func yearMonth(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01")
}

// Match reports whether two periods denote the same bucket.
func Match(a, b Period) bool {
	ka := a.Key()
	return ka != "" && ka == b.Key()
}

// Latest returns the valid period of the given type with the most recent
// boundary.
func Latest(periods []Period, typ Type) (Period, bool) {
	var best Period
	var bestAt time.Time
	found := false
	for _, p := range periods {
		if !p.Valid() || p.typeOrAnnual() != typ {
			continue
		}
		at := *firstNonNil(p.End, p.Start)
		if !found || at.After(bestAt) {
			best, bestAt, found = p, at, true
		}
	}
	return best, found
}

func firstNonNil(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}

// Package period classifies period-stamped records by calendar year and
// formats compact period labels.
package period

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ganabosques/ganabosques-geo/internal/risk"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"2006",
}

var fourDigits = regexp.MustCompile(`\d{4}`)

// ParseDate parses v in one of the accepted layouts as a UTC time.
func ParseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// YearFromDateLike returns the calendar year of a date string, falling back
// to the first run of four digits in free text.
func YearFromDateLike(v string) (int, bool) {
	if t, ok := ParseDate(v); ok {
		return t.Year(), true
	}
	if m := fourDigits.FindString(v); m != "" {
		y, err := strconv.Atoi(m)
		if err == nil {
			return y, true
		}
	}
	return 0, false
}

// Pick selects which side of a "YYYY-YYYY" label is used.
type Pick int

const (
	PickStart Pick = iota
	PickEnd
)

// YearsFromLabels collects the chosen year of every well-formed label.
func YearsFromLabels(labels []string, pick Pick) map[int]struct{} {
	years := make(map[int]struct{}, len(labels))
	for _, label := range labels {
		parts := strings.Split(label, "-")
		if len(parts) < 2 {
			continue
		}
		idx := 0
		if pick == PickEnd {
			idx = 1
		}
		y, err := strconv.Atoi(strings.TrimSpace(parts[idx]))
		if err != nil {
			continue
		}
		years[y] = struct{}{}
	}
	return years
}

// FilterByLabels keeps only the items whose reference year is selected by
// labels and drops groups left without items. Annual items are matched by
// start year against the label start; other items by end year against the
// label end. The result is sorted by entity id.
func FilterByLabels(groups []risk.Group, labels []string, typ risk.Type) []risk.Group {
	pick := PickStart
	if typ != risk.TypeAnnual {
		pick = PickEnd
	}
	years := YearsFromLabels(labels, pick)

	out := make([]risk.Group, 0, len(groups))
	for _, g := range groups {
		var kept []risk.Item
		for _, it := range g.Items {
			y, ok := referenceYear(it, typ)
			if !ok {
				continue
			}
			if _, hit := years[y]; hit {
				kept = append(kept, it)
			}
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, g.WithItems(kept))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func referenceYear(it risk.Item, typ risk.Type) (int, bool) {
	if typ == risk.TypeAnnual {
		return YearFromDateLike(it.PeriodStart)
	}
	return YearFromDateLike(it.PeriodEnd)
}

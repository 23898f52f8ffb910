package period

import (
	"fmt"
	"strconv"
)

// NoPeriod is rendered when neither boundary parses.
const NoPeriod = "—"

// Format renders a period label. Boundaries in the same year spanning at most
// four months become a compact quarter code (year followed by the quarter of
// the start month, e.g. "20241"); otherwise "start - end", a single year, or
// NoPeriod.
func Format(start, end string) string {
	s, sok := ParseDate(start)
	e, eok := ParseDate(end)
	switch {
	case sok && eok:
		if s.Year() == e.Year() && int(e.Month())-int(s.Month()) <= 4 {
			quarter := (int(s.Month())-1)/3 + 1
			return fmt.Sprintf("%d%d", s.Year(), quarter)
		}
		return fmt.Sprintf("%d - %d", s.Year(), e.Year())
	case sok:
		return strconv.Itoa(s.Year())
	case eok:
		return strconv.Itoa(e.Year())
	}
	return NoPeriod
}

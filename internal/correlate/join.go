// Package correlate joins independently fetched collections (polygons, risk
// groups, movement records, administrative details) by entity id.
package correlate

// NoMatch is displayed for a primary record without a secondary match.
const NoMatch = "—"

// Match decorates a primary record with every secondary record sharing its id.
type Match[P, S any] struct {
	Primary   P
	Secondary []S
	Matched   bool
}

// Join pairs each primary record with the secondary records whose key equals
// the primary key exactly. Output follows primary order; secondary matches
// keep their input order. Primary records with an empty key never match.
func Join[P, S any](primary []P, primaryKey func(P) string, secondary []S, secondaryKey func(S) string) []Match[P, S] {
	index := make(map[string][]S, len(secondary))
	for _, s := range secondary {
		k := secondaryKey(s)
		if k == "" {
			continue
		}
		index[k] = append(index[k], s)
	}

	out := make([]Match[P, S], 0, len(primary))
	for _, p := range primary {
		m := Match[P, S]{Primary: p}
		if k := primaryKey(p); k != "" {
			m.Secondary = index[k]
			m.Matched = len(m.Secondary) > 0
		}
		out = append(out, m)
	}
	return out
}

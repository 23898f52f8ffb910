// Package ids normalizes entity identifiers coming from uploaded files and
// external systems into canonical string ids.
package ids

import (
	"regexp"
	"strings"
)

// wrappedRef matches textual object references such as ObjectId("<24 hex>").
var wrappedRef = regexp.MustCompile(`^\s*\w+\(\s*["']?([0-9a-fA-F]{24})["']?\s*\)\s*$`)

// Normalize returns the canonical form of a raw identifier.
//
// Wrapped references yield the bare hex id. Anything else is trimmed of
// surrounding whitespace and one pair of enclosing double quotes. The rules
// are applied until the value stops changing, so Normalize(Normalize(x)) ==
// Normalize(x).
func Normalize(raw string) string {
	cur := raw
	for {
		next := normalizeOnce(cur)
		if next == cur {
			return cur
		}
		cur = next
	}
}

func normalizeOnce(raw string) string {
	if m := wrappedRef.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// Collect extracts column from every row, normalizes it and returns the
// unique non-empty ids in first-seen order.
func Collect(rows []map[string]string, column string) []string {
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		id := Normalize(row[column])
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Dedupe removes empty and repeated ids, keeping first-seen order.
func Dedupe(in []string) []string {
	rows := make([]map[string]string, len(in))
	for i, v := range in {
		rows[i] = map[string]string{"id": v}
	}
	return Collect(rows, "id")
}

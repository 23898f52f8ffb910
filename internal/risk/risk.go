// Package risk defines entity kinds and the ordered risk groups decoded from
// the remote data service.
package risk

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind is the entity kind a risk record belongs to.
type Kind string

const (
	KindAdm3       Kind = "adm3"
	KindFarm       Kind = "farm"
	KindEnterprise Kind = "enterprise"
)

// ParseKind accepts the canonical kind names, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAdm3:
		return KindAdm3, nil
	case KindFarm:
		return KindFarm, nil
	case KindEnterprise:
		return KindEnterprise, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// IDField is the request body field carrying ids of this kind.
func (k Kind) IDField() string {
	return string(k) + "_ids"
}

// Type is the risk classification mode.
type Type string

const (
	TypeAnnual     Type = "annual"
	TypeCumulative Type = "cumulative"
)

// ParseType defaults to annual for an empty string.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeAnnual:
		return TypeAnnual, nil
	case TypeCumulative:
		return TypeCumulative, nil
	}
	return "", fmt.Errorf("unknown risk type %q", s)
}

// Item is one period record of an entity.
type Item struct {
	PeriodStart string
	PeriodEnd   string
	Raw         json.RawMessage
}

// Get reads a gjson path from the raw item.
func (it Item) Get(path string) gjson.Result {
	return gjson.GetBytes(it.Raw, path)
}

// MarshalJSON returns the original item.
func (it Item) MarshalJSON() ([]byte, error) {
	if len(it.Raw) == 0 {
		return []byte("null"), nil
	}
	return it.Raw, nil
}

// Group is the risk history of one entity.
type Group struct {
	ID    string
	Items []Item
	Raw   json.RawMessage
}

// Get reads a gjson path from the group metadata.
func (g Group) Get(path string) gjson.Result {
	return gjson.GetBytes(g.Raw, path)
}

// WithItems returns a copy of g whose items (and raw "items" field) are
// replaced.
func (g Group) WithItems(items []Item) Group {
	out := Group{ID: g.ID, Items: items, Raw: g.Raw}
	if len(g.Raw) == 0 {
		return out
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return out
	}
	if raw, err := sjson.SetRawBytes(append([]byte(nil), g.Raw...), "items", encoded); err == nil {
		out.Raw = raw
	}
	return out
}

// MarshalJSON returns the group record including its id.
func (g Group) MarshalJSON() ([]byte, error) {
	if len(g.Raw) == 0 {
		return json.Marshal(map[string]any{"id": g.ID, "items": g.Items})
	}
	if gjson.GetBytes(g.Raw, "id").Exists() {
		return g.Raw, nil
	}
	return sjson.SetBytes(append([]byte(nil), g.Raw...), "id", g.ID)
}

// idPaths are the fields checked, in order, for an entity id.
var idPaths = []string{"id", "_id", "entity_id", "farm_id", "adm3_id", "enterprise_id"}

// EntityID returns the first non-empty id-like field of a record.
func EntityID(r gjson.Result) string {
	for _, p := range idPaths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// DecodeGroups turns a risk response into groups in document order. Object
// responses are keyed by entity id; array responses carry the id in each
// record. Values that are not objects are skipped, as are items without any
// period boundary.
func DecodeGroups(body []byte) []Group {
	root := gjson.ParseBytes(body)
	var groups []Group
	add := func(id string, v gjson.Result) {
		if !v.IsObject() {
			return
		}
		g := Group{ID: id, Raw: json.RawMessage(v.Raw)}
		v.Get("items").ForEach(func(_, item gjson.Result) bool {
			if it, ok := decodeItem(item); ok {
				g.Items = append(g.Items, it)
			}
			return true
		})
		groups = append(groups, g)
	}

	switch {
	case root.IsObject():
		root.ForEach(func(key, value gjson.Result) bool {
			add(key.String(), value)
			return true
		})
	case root.IsArray():
		root.ForEach(func(_, value gjson.Result) bool {
			add(EntityID(value), value)
			return true
		})
	}
	return groups
}

func decodeItem(r gjson.Result) (Item, bool) {
	if !r.IsObject() {
		return Item{}, false
	}
	start := firstString(r, "period_start", "deforestation_period_start", "period.start")
	end := firstString(r, "period_end", "deforestation_period_end", "period.end")
	if start == "" && end == "" {
		return Item{}, false
	}
	return Item{PeriodStart: start, PeriodEnd: end, Raw: json.RawMessage(r.Raw)}, true
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// Record is a flattened record with its resolved entity id.
type Record struct {
	ID    string
	Value gjson.Result
}

// Flatten returns every record of an id-keyed or array response as one flat
// list, the equivalent of concatenating all values. A record without an id
// field inherits the key it was stored under.
func Flatten(body []byte) []Record {
	var out []Record
	emit := func(key string, v gjson.Result) {
		id := EntityID(v)
		if id == "" {
			id = key
		}
		out = append(out, Record{ID: id, Value: v})
	}
	walk := func(key string, v gjson.Result) {
		switch {
		case v.IsArray():
			v.ForEach(func(_, e gjson.Result) bool {
				if e.IsObject() {
					emit(key, e)
				}
				return true
			})
		case v.IsObject():
			emit(key, v)
		}
	}
	root := gjson.ParseBytes(body)
	switch {
	case root.IsArray():
		walk("", root)
	case root.IsObject():
		root.ForEach(func(k, v gjson.Result) bool {
			walk(k.String(), v)
			return true
		})
	}
	return out
}

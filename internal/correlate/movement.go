package correlate

import (
	"github.com/tidwall/gjson"

	"github.com/ganabosques/ganabosques-geo/internal/risk"
)

// Direction of a movement counterpart relative to the queried entity.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
	DirectionMixed  Direction = "mixed"
)

// Counterpart is a farm or enterprise that traded animals with an entity.
type Counterpart struct {
	ID        string    `json:"id"`
	Kind      risk.Kind `json:"kind"`
	Direction Direction `json:"direction"`
}

// Counterparts lists the counterparts of one movement record in first-seen
// order: inputs, then outputs, then the explicit mixed lists. An entity found
// in both inputs and outputs, or listed under mixed, is reported once as
// mixed.
func Counterparts(record gjson.Result) []Counterpart {
	var out []Counterpart
	pos := map[string]int{}
	add := func(kind risk.Kind, dir Direction, v gjson.Result) {
		id := counterpartID(v)
		if id == "" {
			return
		}
		key := string(kind) + "/" + id
		if i, ok := pos[key]; ok {
			if out[i].Direction != dir {
				out[i].Direction = DirectionMixed
			}
			return
		}
		pos[key] = len(out)
		out = append(out, Counterpart{ID: id, Kind: kind, Direction: dir})
	}

	sections := []struct {
		path string
		dir  Direction
	}{
		{"inputs", DirectionInput},
		{"outputs", DirectionOutput},
		{"mixed", DirectionMixed},
	}
	for _, s := range sections {
		sec := record.Get(s.path)
		sec.Get("farms").ForEach(func(_, v gjson.Result) bool {
			add(risk.KindFarm, s.dir, v)
			return true
		})
		sec.Get("enterprises").ForEach(func(_, v gjson.Result) bool {
			add(risk.KindEnterprise, s.dir, v)
			return true
		})
	}
	return out
}

func counterpartID(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	for _, p := range []string{"destination.farm_id", "source.farm_id", "farm_id", "enterprise_id"} {
		if s := v.Get(p).String(); s != "" {
			return s
		}
	}
	return risk.EntityID(v)
}

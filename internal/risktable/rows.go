// Package risktable flattens nested per-entity risk histories into uniform
// table rows for sorting, pagination and export.
package risktable

import (
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ganabosques/ganabosques-geo/internal/period"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
)

// Row is one (entity × period) record.
type Row struct {
	Kind              risk.Kind `json:"kind"`
	EntityID          string    `json:"entity_id"`
	Name              string    `json:"name"`
	ExtCode           string    `json:"ext_code,omitempty"`
	Adm1Name          string    `json:"adm1_name"`
	Adm2Name          string    `json:"adm2_name"`
	Adm3Name          string    `json:"adm3_name"`
	Adm3ID            string    `json:"adm3_id,omitempty"`
	Period            string    `json:"period"`
	PeriodStart       string    `json:"period_start"`
	PeriodEnd         string    `json:"period_end"`
	RiskDirect        bool      `json:"risk_direct"`
	RiskInput         bool      `json:"risk_input"`
	RiskOutput        bool      `json:"risk_output"`
	RiskTotal         bool      `json:"risk_total"`
	DeforestationHa   float64   `json:"deforestation_ha"`
	DeforestationProp float64   `json:"deforestation_prop"`
	ProtectedAreaHa   float64   `json:"protected_area_ha"`
	FarmAmount        int64     `json:"farm_amount"`
	SITDirect         []string  `json:"sit_direct"`
	SITInput          []string  `json:"sit_input"`
	SITOutput         []string  `json:"sit_output"`
}

// metaFunc fills the entity-level columns of a row from its group.
type metaFunc func(g risk.Group, r *Row)

// ADM3Rows flattens administrative-region risk groups.
func ADM3Rows(groups []risk.Group) []Row {
	return flatten(risk.KindAdm3, groups, func(g risk.Group, r *Row) {
		admNames(g, r)
		r.Name = r.Adm3Name
		if r.Adm3ID == "" {
			r.Adm3ID = g.ID
		}
	})
}

// FarmRows flattens farm risk groups.
func FarmRows(groups []risk.Group) []Row {
	return flatten(risk.KindFarm, groups, func(g risk.Group, r *Row) {
		admNames(g, r)
		r.Name = first(g.Raw, "farm_name", "name", "farm.name")
		r.ExtCode = first(g.Raw, "ext_code", "sit_code", "ext_id.0.ext_code", "farm.ext_id.0.ext_code")
	})
}

// EnterpriseRows flattens enterprise risk groups.
func EnterpriseRows(groups []risk.Group) []Row {
	return flatten(risk.KindEnterprise, groups, func(g risk.Group, r *Row) {
		admNames(g, r)
		r.Name = first(g.Raw, "name", "enterprise_name", "enterprise.name")
		r.ExtCode = first(g.Raw, "type_enterprise", "type", "enterprise.type_enterprise")
	})
}

// Rows dispatches to the transformer for kind.
func Rows(kind risk.Kind, groups []risk.Group) []Row {
	switch kind {
	case risk.KindAdm3:
		return ADM3Rows(groups)
	case risk.KindEnterprise:
		return EnterpriseRows(groups)
	default:
		return FarmRows(groups)
	}
}

func flatten(kind risk.Kind, groups []risk.Group, meta metaFunc) []Row {
	var rows []Row
	for _, g := range groups {
		items := append([]risk.Item(nil), g.Items...)
		sort.SliceStable(items, func(i, j int) bool {
			return startTime(items[i]).After(startTime(items[j]))
		})
		for _, it := range items {
			r := Row{
				Kind:        kind,
				EntityID:    g.ID,
				Period:      period.Format(it.PeriodStart, it.PeriodEnd),
				PeriodStart: it.PeriodStart,
				PeriodEnd:   it.PeriodEnd,
			}
			meta(g, &r)
			fillItem(it.Raw, &r)
			rows = append(rows, r)
		}
	}
	return rows
}

func startTime(it risk.Item) time.Time {
	t, _ := period.ParseDate(it.PeriodStart)
	return t
}

func admNames(g risk.Group, r *Row) {
	r.Adm1Name = first(g.Raw, "adm1_name", "adm1.name", "department")
	r.Adm2Name = first(g.Raw, "adm2_name", "adm2.name", "municipality")
	r.Adm3Name = first(g.Raw, "adm3_name", "adm3.name", "vereda")
	r.Adm3ID = first(g.Raw, "adm3_id", "adm3.id", "adm3._id")
}

func fillItem(raw []byte, r *Row) {
	item := gjson.ParseBytes(raw)
	r.RiskDirect = flag(item, "risk_direct", "risk.direct", "direct_risk")
	r.RiskInput = flag(item, "risk_input", "risk.input", "input_risk")
	r.RiskOutput = flag(item, "risk_output", "risk.output", "output_risk")
	if v, ok := lookup(item, "risk_total", "risk.total", "total_risk"); ok {
		r.RiskTotal = v.Bool()
	} else {
		r.RiskTotal = r.RiskDirect || r.RiskInput || r.RiskOutput
	}
	r.DeforestationHa = number(item, "deforestation.ha", "def_ha", "deforestation_ha")
	r.DeforestationProp = number(item, "deforestation.prop", "def_prop", "deforestation_prop")
	r.ProtectedAreaHa = number(item, "protected.ha", "protected_areas_ha", "protected_ha")
	r.FarmAmount = int64(number(item, "farm_amount", "farms_amount", "farm_amount.total"))
	r.SITDirect = codes(item, "sit_codes.direct", "sit_direct")
	r.SITInput = codes(item, "sit_codes.input", "sit_input")
	r.SITOutput = codes(item, "sit_codes.output", "sit_output")
}

func lookup(v gjson.Result, paths ...string) (gjson.Result, bool) {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() && r.Type != gjson.Null {
			return r, true
		}
	}
	return gjson.Result{}, false
}

func first(raw []byte, paths ...string) string {
	v, ok := lookup(gjson.ParseBytes(raw), paths...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.String())
}

func flag(v gjson.Result, paths ...string) bool {
	r, ok := lookup(v, paths...)
	return ok && r.Bool()
}

func number(v gjson.Result, paths ...string) float64 {
	r, ok := lookup(v, paths...)
	if !ok {
		return 0
	}
	return r.Float()
}

func codes(v gjson.Result, paths ...string) []string {
	r, ok := lookup(v, paths...)
	out := []string{}
	if !ok {
		return out
	}
	if !r.IsArray() {
		if s := strings.TrimSpace(r.String()); s != "" {
			out = append(out, s)
		}
		return out
	}
	r.ForEach(func(_, c gjson.Result) bool {
		if s := strings.TrimSpace(c.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

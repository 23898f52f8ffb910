package risktable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ganabosques/ganabosques-geo/internal/humastar"
)

// ErrUnknownSortField is returned by Sort for a field it cannot order by.
var ErrUnknownSortField = errors.New("unknown sort field")

type compareFunc func(a, b Row) int

var sorters = map[string]compareFunc{
	"entity_id":          func(a, b Row) int { return strings.Compare(a.EntityID, b.EntityID) },
	"name":               func(a, b Row) int { return strings.Compare(a.Name, b.Name) },
	"adm1_name":          func(a, b Row) int { return strings.Compare(a.Adm1Name, b.Adm1Name) },
	"adm2_name":          func(a, b Row) int { return strings.Compare(a.Adm2Name, b.Adm2Name) },
	"adm3_name":          func(a, b Row) int { return strings.Compare(a.Adm3Name, b.Adm3Name) },
	"period":             func(a, b Row) int { return strings.Compare(a.PeriodStart, b.PeriodStart) },
	"period_start":       func(a, b Row) int { return strings.Compare(a.PeriodStart, b.PeriodStart) },
	"deforestation_ha":   func(a, b Row) int { return cmpFloat(a.DeforestationHa, b.DeforestationHa) },
	"deforestation_prop": func(a, b Row) int { return cmpFloat(a.DeforestationProp, b.DeforestationProp) },
	"farm_amount":        func(a, b Row) int { return cmpFloat(float64(a.FarmAmount), float64(b.FarmAmount)) },
	"risk_total":         func(a, b Row) int { return cmpBool(a.RiskTotal, b.RiskTotal) },
}

// SortFields lists the accepted Sort field names.
func SortFields() []string {
	out := make([]string, 0, len(sorters))
	for k := range sorters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SortField is a row field name accepted by Sort. Its schema enumerates
// SortFields so request validation rejects unknown names.
type SortField string

func (SortField) Schema(r huma.Registry) *huma.Schema {
	fields := SortFields()
	enum := make([]any, len(fields))
	for i, f := range fields {
		enum[i] = f
	}
	return &huma.Schema{Type: huma.TypeString, Enum: enum}
}

// Sort orders rows in place by field. The sort is stable, so rows that
// compare equal keep their transformer order. An empty field is a no-op.
func Sort(rows []Row, field string, desc bool) error {
	if field == "" {
		return nil
	}
	cmp, ok := sorters[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSortField, field)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := cmp(rows[i], rows[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
	return nil
}

// Paginate slices rows into a page envelope. A non-positive limit means 50.
func Paginate(rows []Row, offset, limit int) humastar.PageBody[Row] {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	page := humastar.PageBody[Row]{Total: len(rows), Offset: offset, Limit: limit, Data: []Row{}}
	if offset >= len(rows) {
		return page
	}
	end := min(offset+limit, len(rows))
	page.Data = rows[offset:end]
	return page
}

// Columns is the header shared by CSV export and the SQL workspace.
func Columns() []string {
	return []string{
		"kind", "entity_id", "name", "ext_code",
		"adm1_name", "adm2_name", "adm3_name",
		"period", "period_start", "period_end",
		"risk_direct", "risk_input", "risk_output", "risk_total",
		"deforestation_ha", "deforestation_prop", "protected_area_ha", "farm_amount",
		"sit_direct", "sit_input", "sit_output",
	}
}

// Values returns the row in Columns order.
func (r Row) Values() []any {
	return []any{
		string(r.Kind), r.EntityID, r.Name, r.ExtCode,
		r.Adm1Name, r.Adm2Name, r.Adm3Name,
		r.Period, r.PeriodStart, r.PeriodEnd,
		r.RiskDirect, r.RiskInput, r.RiskOutput, r.RiskTotal,
		r.DeforestationHa, r.DeforestationProp, r.ProtectedAreaHa, r.FarmAmount,
		strings.Join(r.SITDirect, ";"), strings.Join(r.SITInput, ";"), strings.Join(r.SITOutput, ";"),
	}
}

// WriteCSV writes a header line followed by one line per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns()); err != nil {
		return err
	}
	for _, r := range rows {
		vals := r.Values()
		rec := make([]string, len(vals))
		for i, v := range vals {
			rec[i] = cell(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return fmt.Sprint(v)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

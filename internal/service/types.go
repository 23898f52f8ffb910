// Package service holds the stateful registries behind the HTTP API: the
// risk data facade, report engines and selection views.
package service

import (
	"github.com/ganabosques/ganabosques-geo/internal/db"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
)

// Event resources.
const (
	ResourceReports = "reports"
	ResourceViews   = "views"
)

// View event actions.
const (
	ViewChanged = "changed"
	ViewSearch  = "search"
	ViewWarning = "warning"
)

// rowColumnTypes maps risktable columns to DuckDB types.
var rowColumnTypes = map[string]string{
	"risk_direct":        "BOOLEAN",
	"risk_input":         "BOOLEAN",
	"risk_output":        "BOOLEAN",
	"risk_total":         "BOOLEAN",
	"deforestation_ha":   "DOUBLE",
	"deforestation_prop": "DOUBLE",
	"protected_area_ha":  "DOUBLE",
	"farm_amount":        "BIGINT",
}

// RowTable describes the workspace table holding report rows.
func RowTable(name string) db.Table {
	cols := risktable.Columns()
	t := db.Table{Name: name, Columns: make([]db.Column, len(cols))}
	for i, c := range cols {
		typ, ok := rowColumnTypes[c]
		if !ok {
			typ = "VARCHAR"
		}
		t.Columns[i] = db.Column{Name: c, Type: typ}
	}
	return t
}

// RowValues returns rows in RowTable column order.
func RowValues(rows []risktable.Row) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return out
}

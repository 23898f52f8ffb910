package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ganabosques/ganabosques-geo/internal/db"
	"github.com/ganabosques/ganabosques-geo/internal/session"
)

// maxQueryRows caps the rows returned by a workspace query.
const maxQueryRows = 1000

// RoleWorkspace is the credential role allowed to run workspace queries.
const RoleWorkspace = "admin"

// DBHandler serves the DuckDB workspace holding report rows.
type DBHandler struct {
	db      *sql.DB
	session *session.Session
}

// NewDBHandler creates a new database handler. Queries need a session
// credential carrying RoleWorkspace.
func NewDBHandler(conn *sql.DB, sess *session.Session) *DBHandler {
	return &DBHandler{db: conn, session: sess}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("workspace"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("workspace"))
}

type TableInfo struct {
	Name string `json:"name" doc:"Table name" example:"report_3f2504e0_4f89_11d3_9a0c_0305e82c3301"`
	Rows int64  `json:"rows" doc:"Row count"`
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []TableInfo `json:"tables" doc:"Workspace tables"`
	}
}

// ListTables returns all DuckDB tables with their row counts.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, "SELECT table_name, estimated_size FROM duckdb_tables() ORDER BY table_name")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	out := &TablesOutput{}
	out.Body.Tables = []TableInfo{}
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name, &t.Rows); err == nil {
			out.Body.Tables = append(out.Body.Tables, t)
		}
	}
	return out, rows.Err()
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" minLength:"1" doc:"Read-only SQL query" example:"SELECT entity_id, count(*) FROM report_x WHERE risk_total GROUP BY 1"`
	}
}

// QueryOutput is the response for SQL queries.
type QueryOutput struct {
	Body struct {
		Columns   []string         `json:"columns" doc:"Column names"`
		Rows      []map[string]any `json:"rows" doc:"Query results"`
		Count     int              `json:"count" doc:"Number of rows returned"`
		Truncated bool             `json:"truncated,omitempty" doc:"More rows were available than returned"`
	}
}

// Query executes a single read-only SQL statement against the workspace.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	if h.session == nil || !h.session.HasRole(RoleWorkspace) {
		return nil, huma.Error403Forbidden("workspace queries need the " + RoleWorkspace + " role")
	}
	if err := db.CheckReadOnly(input.Body.Query); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	rows, err := db.Query(ctx, h.db, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	out := &QueryOutput{}
	out.Body.Columns = columns
	out.Body.Rows = []map[string]any{}
	for rows.Next() {
		if len(out.Body.Rows) == maxQueryRows {
			out.Body.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			continue
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out.Body.Rows = append(out.Body.Rows, row)
	}
	out.Body.Count = len(out.Body.Rows)
	return out, nil
}

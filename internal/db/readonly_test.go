package db

import (
	"context"
	"errors"
	"testing"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		query string
		want  error
	}{
		{"SELECT * FROM report_x", nil},
		{"select entity_id from report_x where name = 'drop; table';", nil},
		{"WITH t AS (SELECT 1) SELECT * FROM t -- trailing comment", nil},
		{`SELECT "delete" FROM report_x`, nil},
		{"SELECT 1; DROP TABLE report_x", ErrMultipleStatements},
		{"SELECT 1; /* c */ SELECT 2", ErrMultipleStatements},
		{"SELECT * FROM read_text('/etc/passwd')", ErrNotReadOnly},
		{"SELECT * FROM '/etc/passwd.csv'", ErrNotReadOnly},
		{`FROM "data/rows.parquet"`, ErrNotReadOnly},
		{"WITH d AS (DELETE FROM report_x RETURNING *) SELECT * FROM d", ErrNotReadOnly},
		{"DROP TABLE report_x", ErrNotReadOnly},
		{"ATTACH 'x.db'", ErrNotReadOnly},
		{"SELECT 'open", ErrNotReadOnly},
		{"", ErrNotReadOnly},
	}
	for _, tt := range tests {
		err := CheckReadOnly(tt.query)
		if tt.want == nil && err != nil {
			t.Errorf("CheckReadOnly(%q) = %v, want nil", tt.query, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("CheckReadOnly(%q) = %v, want %v", tt.query, err, tt.want)
		}
	}
}

func TestQueryKeepsTablesAndFiles(t *testing.T) {
	conn, err := Open(Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	ctx := context.Background()

	tbl := Table{Name: "report_x", Columns: []Column{{"entity_id", "VARCHAR"}}}
	if err := Load(ctx, conn, tbl, [][]any{{"a"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := Query(ctx, conn, "SELECT 1; DROP TABLE report_x"); !errors.Is(err, ErrMultipleStatements) {
		t.Fatalf("err = %v", err)
	}
	var n int
	if err := conn.QueryRowContext(ctx, "SELECT count(*) FROM report_x").Scan(&n); err != nil || n != 1 {
		t.Fatalf("report_x after rejected query: n=%d err=%v", n, err)
	}

	// Even past the statement check the connection cannot reach the file system.
	if _, err := conn.QueryContext(ctx, "SELECT * FROM read_text('/etc/hostname')"); err == nil {
		t.Fatal("external file access should be disabled")
	}
}

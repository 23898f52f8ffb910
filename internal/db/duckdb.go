// Package db holds the DuckDB workspace that report rows are loaded into for
// ad-hoc SQL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration. An empty DataDir keeps the database
// in memory.
type Config struct {
	DataDir string
	DBName  string
}

func (c Config) dsn() (string, error) {
	if c.DataDir == "" {
		return "", nil
	}
	dir := filepath.Join(c.DataDir, "duckdb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create duckdb directory: %w", err)
	}
	name := c.DBName
	if name == "" {
		name = "ganabosques"
	}
	return filepath.Join(dir, name+".duckdb"), nil
}

// Open opens a DuckDB database with access to files and the network
// outside the database itself disabled.
func Open(cfg Config) (*sql.DB, error) {
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open("duckdb", dsn+"?enable_external_access=false")
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Get returns the singleton DuckDB connection.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		instance, initErr = Open(cfg)
	})
	return instance, initErr
}

// Close closes the database connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}

// Column is a typed table column.
type Column struct {
	Name string
	Type string
}

// Table describes a table to (re)create.
type Table struct {
	Name    string
	Columns []Column
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableName turns an arbitrary id into a safe identifier with prefix.
func TableName(prefix, id string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Load replaces table t with rows inside one transaction.
func Load(ctx context.Context, db *sql.DB, t Table, rows [][]any) error {
	if !identRe.MatchString(t.Name) {
		return fmt.Errorf("invalid table name %q", t.Name)
	}
	defs := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if !identRe.MatchString(c.Name) {
			return fmt.Errorf("invalid column name %q", c.Name)
		}
		defs[i] = c.Name + " " + c.Type
		marks[i] = "?"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.Name); err != nil {
		return fmt.Errorf("drop %s: %w", t.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+t.Name+" ("+strings.Join(defs, ", ")+")"); err != nil {
		return fmt.Errorf("create %s: %w", t.Name, err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+t.Name+" VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", t.Name, err)
	}
	defer stmt.Close()
	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", t.Name, i, err)
		}
	}
	return tx.Commit()
}

// Drop removes a table if it exists.
func Drop(ctx context.Context, db *sql.DB, name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+name)
	return err
}

// Query runs a single read-only statement.
func Query(ctx context.Context, db *sql.DB, query string) (*sql.Rows, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query)
}

// Package ddl builds the SQLite statements of the database step.
//
// Identifiers are double-quoted and every statement is idempotent
// (IF NOT EXISTS) so a partially built database can be rebuilt.
package ddl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// CreateTable returns a CREATE TABLE statement for name and cols:
//
//	CREATE TABLE IF NOT EXISTS "table" (
//	  "col1" INTEGER,
//	  "col2" TEXT
//	);
func CreateTable(name string, cols []config.Column) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("sqlite ddl: table name must not be empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("sqlite ddl: table %s has no columns", name)
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		col := strings.TrimSpace(c.Name)
		if col == "" {
			return "", fmt.Errorf("sqlite ddl: column with empty name in table %s", name)
		}
		typ := config.NormalizeType(c.Type)
		if typ == "" {
			return "", fmt.Errorf("sqlite ddl: column %s missing type", col)
		}
		defs = append(defs, quoteIdent(col)+" "+typ)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteIdent(name), strings.Join(defs, ",\n  ")), nil
}

// IndexName returns idx_<table>_<col1>_<col2>...
func IndexName(table string, cols []string) string {
	return "idx_" + table + "_" + strings.Join(cols, "_")
}

// CreateIndexes returns one CREATE INDEX statement per column group.
func CreateIndexes(table string, groups [][]string) ([]string, error) {
	stmts := make([]string, 0, len(groups))
	for _, group := range groups {
		if len(group) == 0 {
			return nil, fmt.Errorf("sqlite ddl: empty index on table %s", table)
		}
		quoted := make([]string, len(group))
		for i, col := range group {
			quoted[i] = quoteIdent(col)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s);",
			quoteIdent(IndexName(table, group)), quoteIdent(table), strings.Join(quoted, ", ")))
	}
	return stmts, nil
}

// Check executes stmts in order against an empty in-memory database and
// returns the first failure.
func Check(ctx context.Context, stmts []string) error {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open in-memory database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("invalid statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

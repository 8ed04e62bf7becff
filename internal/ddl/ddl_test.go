package ddl

import (
	"context"
	"testing"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple", in: "patid", want: `"patid"`},
		{name: "empty", in: "", want: `""`},
		{name: "with double quote", in: `weird"name`, want: `"weird""name"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := quoteIdent(tt.in); got != tt.want {
				t.Fatalf("quoteIdent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCreateTable(t *testing.T) {
	stmt, err := CreateTable("patient", []config.Column{
		{Name: "patid", Type: "INTEGER"},
		{Name: "crd", Type: "text"},
		{Name: "score", Type: "REAL"},
	})
	require.NoError(t, err)

	want := "CREATE TABLE IF NOT EXISTS \"patient\" (\n  \"patid\" INTEGER,\n  \"crd\" TEXT,\n  \"score\" REAL\n);"
	assert.Equal(t, want, stmt)
}

func TestCreateTable_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		table string
		cols  []config.Column
	}{
		{name: "empty table name", table: " ", cols: []config.Column{{Name: "a", Type: "TEXT"}}},
		{name: "no columns", table: "t"},
		{name: "empty column name", table: "t", cols: []config.Column{{Name: "", Type: "TEXT"}}},
		{name: "missing type", table: "t", cols: []config.Column{{Name: "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := CreateTable(tt.table, tt.cols); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCreateIndexes(t *testing.T) {
	stmts, err := CreateIndexes("clinical", [][]string{{"patid"}, {"patid", "eventdate"}})
	require.NoError(t, err)

	assert.Equal(t, []string{
		`CREATE INDEX IF NOT EXISTS "idx_clinical_patid" ON "clinical" ("patid");`,
		`CREATE INDEX IF NOT EXISTS "idx_clinical_patid_eventdate" ON "clinical" ("patid", "eventdate");`,
	}, stmts)

	_, err = CreateIndexes("clinical", [][]string{{}})
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	table, err := CreateTable("clinical", []config.Column{
		{Name: "patid", Type: "INTEGER"},
		{Name: "eventdate", Type: "TEXT"},
	})
	require.NoError(t, err)
	indexes, err := CreateIndexes("clinical", [][]string{{"patid", "eventdate"}})
	require.NoError(t, err)

	assert.NoError(t, Check(ctx, append([]string{table}, indexes...)))

	bad, err := CreateIndexes("clinical", [][]string{{"medcode"}})
	require.NoError(t, err)
	err = Check(ctx, append([]string{table}, bad...))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idx_clinical_medcode")
}

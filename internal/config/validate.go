package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// identPattern restricts table and column names to values that are safe
// as file name components, shell words and SQL identifiers.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var validTypes = map[string]bool{
	"INTEGER": true,
	"TEXT":    true,
	"REAL":    true,
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.RawData.RootFolder == "" {
		add("raw_data.root_folder is required")
	}
	if c.ProcessedDataFolder == "" {
		add("processed_data_folder is required")
	}
	if c.Database == "" {
		add("database is required")
	}
	if len(c.Tables) == 0 {
		add("at least one table must be configured")
	}
	if len(c.Codelists) > 0 && c.CodelistsFolder == "" {
		add("codelists_folder is required when codelists are configured")
	}

	problems = append(problems, c.GridEngine.Validate()...)

	for _, id := range sortedKeys(c.Codelists) {
		cl := c.Codelists[id]
		if cl.Kind() == 0 {
			add("codelist %q: at least one of original or user must be set", id)
		}
	}

	usesLookups := false
	for _, name := range c.TableNames() {
		t := c.Tables[name]
		if len(t.LookupColumns) > 0 {
			usesLookups = true
		}
		problems = append(problems, c.validateTable(t)...)
	}
	if usesLookups && c.LookupsFolder == "" {
		add("lookups_folder is required when lookup columns are configured")
	}

	return problems
}

func (c *Config) validateTable(t *TableConfig) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf("table %q: ", t.Name)+fmt.Sprintf(format, args...))
	}

	if !identPattern.MatchString(t.Name) {
		add("name must match %s", identPattern)
	}
	if t.FilePattern == "" && t.FilePath == "" {
		add("file_pattern or file_path is required")
	}
	if len(t.Columns) == 0 {
		add("no columns defined")
	}
	for _, col := range t.Columns {
		if !identPattern.MatchString(col.Name) {
			add("column %q: name must match %s", col.Name, identPattern)
		}
		if !validTypes[col.Type] {
			add("column %q: unknown type %q (want INTEGER, TEXT or REAL)", col.Name, col.Type)
		}
	}

	seenDate := make(map[string]bool)
	for _, col := range t.DateColumns {
		if !t.HasColumn(col) {
			add("date column %q is not a declared column", col)
		}
		if seenDate[col] {
			add("date column %q listed twice", col)
		}
		seenDate[col] = true
	}

	for _, col := range sortedKeys(t.LookupColumns) {
		file := t.LookupColumns[col]
		if !t.HasColumn(col) {
			add("lookup column %q is not a declared column", col)
		}
		if !strings.HasSuffix(file, ".txt") {
			add("lookup column %q: lookup file %q must be a .txt file", col, file)
		}
	}

	for _, col := range sortedKeys(t.CodelistAnnotations) {
		ids := t.CodelistAnnotations[col]
		if !t.HasColumn(col) {
			add("codelist annotation column %q is not a declared column", col)
		}
		if len(ids) == 0 {
			add("codelist annotation column %q names no codelist", col)
		}
		for _, id := range ids {
			if _, ok := c.Codelists[id]; !ok {
				add("column %q references undefined codelist %q", col, id)
			}
		}
	}

	for i, idx := range t.Indexes {
		if len(idx) == 0 {
			add("index %d has no columns", i+1)
		}
		for _, col := range idx {
			if !t.HasColumn(col) {
				add("index %d references undeclared column %q", i+1, col)
			}
		}
	}
	return problems
}

// Validate checks the grid engine resource requests.
func (g GridEngine) Validate() []string {
	var problems []string
	if g.CPUs < 1 {
		problems = append(problems, fmt.Sprintf("grid_engine.cpus must be at least 1, got %d", g.CPUs))
	}
	if !validMemory(g.Memory) {
		problems = append(problems, fmt.Sprintf("grid_engine.memory %q must be a number followed by G or M", g.Memory))
	}
	if !validRuntime(g.Runtime) {
		problems = append(problems, fmt.Sprintf("grid_engine.runtime %q must have the form H:M:S", g.Runtime))
	}
	return problems
}

func validMemory(m string) bool {
	if len(m) < 2 {
		return false
	}
	unit := m[len(m)-1]
	if unit != 'G' && unit != 'M' {
		return false
	}
	n, err := strconv.Atoi(m[:len(m)-1])
	return err == nil && n > 0
}

func validRuntime(r string) bool {
	parts := strings.Split(r, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err != nil || n < 0 {
			return false
		}
	}
	return true
}

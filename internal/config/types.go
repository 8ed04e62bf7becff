// Package config provides the pipeline configuration model.
// A Config is loaded fresh for every generator invocation and passed
// explicitly to the components that need it.
package config

import (
	"path/filepath"
	"strings"
)

// Config holds the declarative pipeline configuration.
type Config struct {
	GridEngine          GridEngine              `koanf:"grid_engine"`
	RawData             RawData                 `koanf:"raw_data"`
	ProcessedDataFolder string                  `koanf:"processed_data_folder"`
	CodelistsFolder     string                  `koanf:"codelists_folder"`
	LookupsFolder       string                  `koanf:"lookups_folder"`
	Database            string                  `koanf:"database"`
	Codelists           map[string]*Codelist    `koanf:"codelists"`
	Tables              map[string]*TableConfig `koanf:"tables"`

	// tableOrder is the declaration order of Tables in the source document.
	tableOrder []string
	// source is the path the configuration was loaded from.
	source string
}

// GridEngine holds batch scheduler resource requests.
type GridEngine struct {
	CPUs    int    `koanf:"cpus"`
	Memory  string `koanf:"memory"`
	Runtime string `koanf:"runtime"`
}

// RawData describes where raw extract files live.
type RawData struct {
	RootFolder string `koanf:"root_folder"`
	// Pattern selects part folders below RootFolder (e.g. Part[0-9]*).
	Pattern string `koanf:"pattern"`
}

// Column is a declared table column.
type Column struct {
	Name string
	Type string
}

// TableConfig describes one source table.
type TableConfig struct {
	Name                string              `koanf:"-"`
	FilePattern         string              `koanf:"file_pattern"`
	FilePath            string              `koanf:"file_path"`
	SubfolderPattern    string              `koanf:"subfolder_pattern"`
	ColumnTypes         map[string]string   `koanf:"columns"`
	DateColumns         []string            `koanf:"date_columns"`
	LookupColumns       map[string]string   `koanf:"lookup_columns"`
	CodelistAnnotations map[string][]string `koanf:"codelist_annotations"`
	Indexes             [][]string          `koanf:"indexes"`

	// Columns is ColumnTypes in declaration order.
	Columns []Column `koanf:"-"`
}

// HasColumn reports whether name is a declared column.
func (t *TableConfig) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the declared column names in order.
func (t *TableConfig) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// LookupColumnNames returns the lookup columns in declaration order.
func (t *TableConfig) LookupColumnNames() []string {
	return t.orderedKeys(func(name string) bool {
		_, ok := t.LookupColumns[name]
		return ok
	})
}

// AnnotatedColumnNames returns the codelist-annotated columns in declaration order.
func (t *TableConfig) AnnotatedColumnNames() []string {
	return t.orderedKeys(func(name string) bool {
		_, ok := t.CodelistAnnotations[name]
		return ok
	})
}

func (t *TableConfig) orderedKeys(keep func(string) bool) []string {
	var out []string
	for _, c := range t.Columns {
		if keep(c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

// CodelistKind is the merge case that applies to a codelist.
type CodelistKind int

// Codelist kinds.
const (
	KindOriginalOnly CodelistKind = iota + 1
	KindUserOnly
	KindCombined
)

func (k CodelistKind) String() string {
	switch k {
	case KindOriginalOnly:
		return "original_only"
	case KindUserOnly:
		return "user_only"
	case KindCombined:
		return "combined"
	default:
		return "unknown"
	}
}

// Codelist references the original and user source files for one codelist.
type Codelist struct {
	ID       string `koanf:"-"`
	Original string `koanf:"original"`
	User     string `koanf:"user"`

	kind CodelistKind
}

// NewCodelist creates a codelist and derives its kind.
func NewCodelist(id, original, user string) *Codelist {
	c := &Codelist{ID: id, Original: original, User: user}
	c.kind = deriveKind(original, user)
	return c
}

// Kind returns the merge case derived when the codelist was loaded.
// It is zero when neither source is configured.
func (c *Codelist) Kind() CodelistKind {
	return c.kind
}

func deriveKind(original, user string) CodelistKind {
	switch {
	case original != "" && user != "":
		return KindCombined
	case original != "":
		return KindOriginalOnly
	case user != "":
		return KindUserOnly
	default:
		return 0
	}
}

// CodelistPath resolves a codelist source file against the codelists folder.
func (c *Config) CodelistPath(name string) string {
	return resolveIn(c.CodelistsFolder, name)
}

// LookupPath returns the path of a lookup file.
func (c *Config) LookupPath(name string) string {
	return resolveIn(c.LookupsFolder, name)
}

// TableNames returns table names in declaration order.
func (c *Config) TableNames() []string {
	return c.tableOrder
}

// OrderedTables returns the tables in declaration order.
func (c *Config) OrderedTables() []*TableConfig {
	out := make([]*TableConfig, 0, len(c.tableOrder))
	for _, name := range c.tableOrder {
		out = append(out, c.Tables[name])
	}
	return out
}

// CodelistIDs returns the configured codelist identifiers sorted by name.
func (c *Config) CodelistIDs() []string {
	return sortedKeys(c.Codelists)
}

// Source returns the path the configuration was loaded from.
func (c *Config) Source() string {
	return c.source
}

// AddTable registers a table, keeping declaration order. It is used when a
// Config is assembled in code rather than loaded from a document.
func (c *Config) AddTable(t *TableConfig) {
	if c.Tables == nil {
		c.Tables = make(map[string]*TableConfig)
	}
	if _, exists := c.Tables[t.Name]; !exists {
		c.tableOrder = append(c.tableOrder, t.Name)
	}
	if len(t.Columns) == 0 && len(t.ColumnTypes) > 0 {
		t.Columns = orderColumns(t.ColumnTypes, nil)
	}
	c.Tables[t.Name] = t
}

// AddCodelist registers a codelist.
func (c *Config) AddCodelist(cl *Codelist) {
	if c.Codelists == nil {
		c.Codelists = make(map[string]*Codelist)
	}
	if cl.kind == 0 {
		cl.kind = deriveKind(cl.Original, cl.User)
	}
	c.Codelists[cl.ID] = cl
}

func resolveIn(dir, name string) string {
	if name == "" || filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// NormalizeType upper-cases a declared column type.
func NormalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

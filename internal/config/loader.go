package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override
// configuration values. A double underscore separates nesting levels:
// CPRDGEN_GRID_ENGINE__CPUS=4 sets grid_engine.cpus.
const EnvPrefix = "CPRDGEN_"

// Default configuration values.
const (
	DefaultCPUs        = 1
	DefaultMemory      = "4G"
	DefaultRuntime     = "1:0:0"
	DefaultPartPattern = "Part[0-9]*"
)

// envVarPattern matches ${VAR} and $VAR references.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// Load reads the configuration document at path, applies environment
// overrides, expands environment variable references in path values and
// validates the result. Every problem found is reported in a single
// *ConfigError.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"grid_engine.cpus":    DefaultCPUs,
		"grid_engine.memory":  DefaultMemory,
		"grid_engine.runtime": DefaultRuntime,
		"raw_data.pattern":    DefaultPartPattern,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Document
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Problems: []string{fmt.Sprintf("cannot read configuration: %v", err)}}
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, &ConfigError{Path: path, Problems: []string{fmt.Sprintf("cannot parse configuration: %v", err)}}
	}

	// 3. Environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			TagName:          "koanf",
			Result:           &cfg,
		},
	}); err != nil {
		return nil, &ConfigError{Path: path, Problems: []string{fmt.Sprintf("unable to decode configuration: %v", err)}}
	}
	cfg.source = path

	order, err := documentOrder(data)
	if err != nil {
		return nil, &ConfigError{Path: path, Problems: []string{fmt.Sprintf("cannot parse configuration: %v", err)}}
	}

	problems := cfg.finalize(order)
	problems = append(problems, cfg.expandPaths()...)
	problems = append(problems, cfg.Validate()...)
	if len(problems) > 0 {
		return nil, &ConfigError{Path: path, Problems: problems}
	}
	return &cfg, nil
}

// envKey maps CPRDGEN_GRID_ENGINE__CPUS to grid_engine.cpus.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// docOrder records key order that koanf's maps lose.
type docOrder struct {
	tables  []string
	columns map[string][]string
}

// documentOrder walks the YAML node tree to recover the declaration order
// of tables and of each table's columns.
func documentOrder(data []byte) (*docOrder, error) {
	order := &docOrder{columns: make(map[string][]string)}

	var root yamlv3.Node
	if err := yamlv3.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yamlv3.DocumentNode || len(root.Content) == 0 {
		return order, nil
	}

	tables := mappingValue(root.Content[0], "tables")
	if tables == nil || tables.Kind != yamlv3.MappingNode {
		return order, nil
	}
	for i := 0; i+1 < len(tables.Content); i += 2 {
		name := tables.Content[i].Value
		order.tables = append(order.tables, name)

		cols := mappingValue(tables.Content[i+1], "columns")
		if cols == nil || cols.Kind != yamlv3.MappingNode {
			continue
		}
		for j := 0; j+1 < len(cols.Content); j += 2 {
			order.columns[name] = append(order.columns[name], cols.Content[j].Value)
		}
	}
	return order, nil
}

func mappingValue(n *yamlv3.Node, key string) *yamlv3.Node {
	if n == nil || n.Kind != yamlv3.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// finalize fills names, ordered columns and derived codelist kinds.
func (c *Config) finalize(order *docOrder) []string {
	var problems []string

	c.tableOrder = nil
	seen := make(map[string]bool)
	for _, name := range order.tables {
		if _, ok := c.Tables[name]; ok && !seen[name] {
			c.tableOrder = append(c.tableOrder, name)
			seen[name] = true
		}
	}
	// Tables introduced only through environment overrides go last.
	for _, name := range sortedKeys(c.Tables) {
		if !seen[name] {
			c.tableOrder = append(c.tableOrder, name)
		}
	}

	for _, name := range c.tableOrder {
		t := c.Tables[name]
		if t == nil {
			problems = append(problems, fmt.Sprintf("table %q: empty definition", name))
			c.Tables[name] = &TableConfig{Name: name}
			continue
		}
		t.Name = name
		t.Columns = orderColumns(t.ColumnTypes, order.columns[name])
	}

	for id, cl := range c.Codelists {
		if cl == nil {
			cl = &Codelist{}
			c.Codelists[id] = cl
		}
		cl.ID = id
	}
	return problems
}

// orderColumns returns columns following order, then any remaining
// columns sorted by name.
func orderColumns(types map[string]string, order []string) []Column {
	cols := make([]Column, 0, len(types))
	used := make(map[string]bool, len(types))
	for _, name := range order {
		if typ, ok := types[name]; ok && !used[name] {
			cols = append(cols, Column{Name: name, Type: NormalizeType(typ)})
			used[name] = true
		}
	}
	for _, name := range sortedKeys(types) {
		if !used[name] {
			cols = append(cols, Column{Name: name, Type: NormalizeType(types[name])})
		}
	}
	return cols
}

// expandPaths expands environment references in path values and derives
// codelist kinds from the expanded sources.
func (c *Config) expandPaths() []string {
	var problems []string
	expand := func(field, value string) string {
		out, missing := ExpandEnv(value)
		for _, name := range missing {
			problems = append(problems, fmt.Sprintf("%s: environment variable %s is not set", field, name))
		}
		return out
	}

	c.RawData.RootFolder = expand("raw_data.root_folder", c.RawData.RootFolder)
	c.ProcessedDataFolder = expand("processed_data_folder", c.ProcessedDataFolder)
	c.CodelistsFolder = expand("codelists_folder", c.CodelistsFolder)
	c.LookupsFolder = expand("lookups_folder", c.LookupsFolder)
	c.Database = expand("database", c.Database)

	for _, id := range sortedKeys(c.Codelists) {
		cl := c.Codelists[id]
		cl.Original = expand("codelists."+id+".original", cl.Original)
		cl.User = expand("codelists."+id+".user", cl.User)
		cl.kind = deriveKind(cl.Original, cl.User)
	}
	return problems
}

// ExpandEnv expands ${VAR} and $VAR references in s. Unset variables are
// left in place and returned by name.
func ExpandEnv(s string) (string, []string) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})
	return out, missing
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package schema resolves configured column names against the observed
// header of a tab-delimited stage file.
package schema

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Delimiter separates fields in every pipeline file.
const Delimiter = "\t"

// Header is the first line of a tab-delimited file.
type Header struct {
	Path    string
	Columns []string

	positions map[string]int
}

// ReadHeader reads exactly the first line of path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, &SchemaMismatchError{Path: path, Reason: "file has no header"}
	}
	return NewHeader(path, strings.Split(line, Delimiter))
}

// NewHeader builds a header from already split column names.
func NewHeader(path string, columns []string) (*Header, error) {
	h := &Header{
		Path:      path,
		Columns:   columns,
		positions: make(map[string]int, len(columns)),
	}
	var dups []string
	for i, col := range columns {
		if col == "" {
			return nil, &SchemaMismatchError{Path: path, Observed: columns, Reason: fmt.Sprintf("column %d has an empty name", i+1)}
		}
		if _, exists := h.positions[col]; exists {
			dups = append(dups, col)
			continue
		}
		h.positions[col] = i + 1
	}
	if len(dups) > 0 {
		return nil, &SchemaMismatchError{Path: path, Observed: columns, Reason: "duplicate columns " + strings.Join(dups, ", ")}
	}
	return h, nil
}

// ColumnCount returns the number of observed columns.
func (h *Header) ColumnCount() int {
	return len(h.Columns)
}

// Position returns the 1-based position of a column.
func (h *Header) Position(name string) (int, bool) {
	pos, ok := h.positions[name]
	return pos, ok
}

// Has reports whether the header contains name.
func (h *Header) Has(name string) bool {
	_, ok := h.positions[name]
	return ok
}

// Signature identifies the column layout.
func (h *Header) Signature() string {
	return strings.Join(h.Columns, Delimiter)
}

// Resolve maps each required column to its position. Every absent column
// is reported in one *SchemaMismatchError.
func (h *Header) Resolve(table string, required []string) (*Binding, error) {
	b := &Binding{
		Table:     table,
		Path:      h.Path,
		Columns:   h.Columns,
		Positions: make(map[string]int, len(required)),
	}
	var missing []string
	for _, col := range required {
		pos, ok := h.positions[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		b.Positions[col] = pos
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{
			Table:    table,
			Path:     h.Path,
			Missing:  missing,
			Expected: required,
			Observed: h.Columns,
		}
	}
	return b, nil
}

// Binding maps the columns a step references to 1-based positions in the
// step's input file.
type Binding struct {
	Table     string
	Path      string
	Columns   []string
	Positions map[string]int
}

// Pos returns the position of a bound column.
func (b *Binding) Pos(name string) (int, bool) {
	pos, ok := b.Positions[name]
	return pos, ok
}

// ColumnCount returns the number of columns in the bound file.
func (b *Binding) ColumnCount() int {
	return len(b.Columns)
}

// CheckColumns verifies that observed matches declared exactly in count and
// order. A tab-delimited import binds fields by position, so any difference
// would load values into the wrong columns.
func CheckColumns(table, path string, declared, observed []string) error {
	if len(declared) != len(observed) {
		return &SchemaMismatchError{
			Table:    table,
			Path:     path,
			Expected: declared,
			Observed: observed,
			Reason:   fmt.Sprintf("column count mismatch: declared %d, observed %d", len(declared), len(observed)),
		}
	}
	for i := range declared {
		if declared[i] != observed[i] {
			return &SchemaMismatchError{
				Table:    table,
				Path:     path,
				Expected: declared,
				Observed: observed,
				Reason:   fmt.Sprintf("column %d is %q, declared %q", i+1, observed[i], declared[i]),
			}
		}
	}
	return nil
}

package codelist

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/schema"
)

// TermFileName returns the file name of a codelist's term file.
func TermFileName(id string) string {
	return id + "_terms.txt"
}

// WriteTermFile atomically replaces dir/<id>_terms.txt with r.
func WriteTermFile(dir string, r *Result) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create term directory: %w", err)
	}

	path := filepath.Join(dir, TermFileName(r.ID))
	tmp, err := os.CreateTemp(dir, "."+TermFileName(r.ID)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create term file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	writeRow(w, r.Header)
	for _, row := range r.Rows {
		writeRow(w, row)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write term file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write term file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("failed to set term file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to publish term file: %w", err)
	}
	return path, nil
}

func writeRow(w *bufio.Writer, fields []string) {
	_, _ = w.WriteString(strings.Join(fields, "\t"))
	_ = w.WriteByte('\n')
}

// TermLayout describes the columns of a prepared term file.
type TermLayout struct {
	ID      string
	Path    string
	Header  []string
	HasFlag bool
}

// DescriptionPosition is the 1-based position of the description column.
func (l *TermLayout) DescriptionPosition() int {
	return 2
}

// FlagPosition is the 1-based position of the flag column, or 0.
func (l *TermLayout) FlagPosition() int {
	if !l.HasFlag {
		return 0
	}
	return len(l.Header)
}

// ReadTermLayout validates the header of a prepared term file: two to four
// columns, a description prefixed with the codelist identifier and, with
// four columns, a trailing flag.
func ReadTermLayout(id, path string) (*TermLayout, error) {
	h, err := schema.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	cols := h.Columns
	if len(cols) < 2 || len(cols) > 4 {
		return nil, &FormatError{Codelist: id, Path: path,
			Msg: fmt.Sprintf("term file has %d columns, expected 2-4", len(cols))}
	}
	if !strings.HasPrefix(cols[1], id+"_") {
		return nil, &FormatError{Codelist: id, Path: path,
			Msg: fmt.Sprintf("description column %q is not prefixed with %s_", cols[1], id)}
	}
	hasFlag := cols[len(cols)-1] == FlagColumn
	if len(cols) == 4 && !hasFlag {
		return nil, &FormatError{Codelist: id, Path: path, Msg: "four-column term file must end with a flag column"}
	}
	return &TermLayout{ID: id, Path: path, Header: cols, HasFlag: hasFlag}, nil
}

// Package codelist merges original and user codelist sources into the
// term files used to annotate clinical tables.
package codelist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// Role names which side of a codelist a source file provides.
type Role string

// Source roles.
const (
	RoleOriginal Role = "original"
	RoleUser     Role = "user"
)

// Entry is one code of a source file.
type Entry struct {
	Code        string
	Description string
	Count       string
}

// Source is a parsed codelist source file: a header of code, description
// and an optional count column, followed by one row per code.
type Source struct {
	Codelist string
	Role     Role
	Path     string
	Header   []string
	Entries  []Entry

	index map[string]int
}

// HasCount reports whether the source carries a count column.
func (s *Source) HasCount() bool {
	return len(s.Header) == 3
}

// Lookup returns the entry for code.
func (s *Source) Lookup(code string) (Entry, bool) {
	i, ok := s.index[code]
	if !ok {
		return Entry{}, false
	}
	return s.Entries[i], true
}

// ReadSource parses a source file. Repeated rows are collapsed; a repeated
// code with a different description is a *DuplicateCodeError.
func ReadSource(id string, role Role, path string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingSourceError{Codelist: id, Role: role, Path: path}
		}
		return nil, fmt.Errorf("failed to open codelist %s: %w", id, err)
	}
	defer f.Close()

	src := &Source{Codelist: id, Role: role, Path: path, index: make(map[string]int)}
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read codelist %s: %w", id, err)
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			if perr := src.add(lineNo, strings.Split(line, "\t"), logger); perr != nil {
				return nil, perr
			}
		}
		if eof {
			break
		}
	}

	if src.Header == nil {
		return nil, &FormatError{Codelist: id, Path: path, Msg: "file is empty"}
	}
	return src, nil
}

func (s *Source) add(lineNo int, fields []string, logger *slog.Logger) error {
	if s.Header == nil {
		if len(fields) < 2 || len(fields) > 3 {
			return &FormatError{Codelist: s.Codelist, Path: s.Path, Line: lineNo,
				Msg: fmt.Sprintf("found %d columns, expected 2-3 (code, description[, count])", len(fields))}
		}
		s.Header = fields
		return nil
	}

	if len(fields) != len(s.Header) {
		return &FormatError{Codelist: s.Codelist, Path: s.Path, Line: lineNo,
			Msg: fmt.Sprintf("found %d columns, header has %d", len(fields), len(s.Header))}
	}
	e := Entry{Code: fields[0], Description: fields[1]}
	if e.Code == "" {
		return &FormatError{Codelist: s.Codelist, Path: s.Path, Line: lineNo, Msg: "empty code"}
	}
	if s.HasCount() {
		e.Count = fields[2]
	}

	if i, exists := s.index[e.Code]; exists {
		prev := s.Entries[i]
		switch {
		case prev.Description != e.Description:
			return &DuplicateCodeError{
				Codelist: s.Codelist,
				Path:     s.Path,
				Code:     e.Code,
				Line:     lineNo,
				First:    prev.Description,
				Second:   e.Description,
			}
		case prev.Count != e.Count:
			logger.Warn("duplicate code with different counts, keeping first",
				slog.String("codelist", s.Codelist),
				slog.String("source", string(s.Role)),
				slog.String("code", e.Code),
				slog.String("kept", prev.Count),
				slog.String("dropped", e.Count))
		}
		return nil
	}

	s.index[e.Code] = len(s.Entries)
	s.Entries = append(s.Entries, e)
	return nil
}

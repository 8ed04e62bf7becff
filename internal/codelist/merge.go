package codelist

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
)

// FlagColumn is the header of the user-membership column.
const FlagColumn = "flag"

// Flag values.
const (
	FlagUser     = "1"
	FlagOriginal = "0"
)

// Result is the merged term table of one codelist.
type Result struct {
	ID     string
	Kind   config.CodelistKind
	Header []string
	Rows   [][]string
}

// HasFlag reports whether the result carries a flag column.
func (r *Result) HasFlag() bool {
	return len(r.Header) > 0 && r.Header[len(r.Header)-1] == FlagColumn
}

// Width returns the number of columns of every row.
func (r *Result) Width() int {
	return len(r.Header)
}

// Validate checks that every row has the header's width.
func (r *Result) Validate() error {
	for i, row := range r.Rows {
		if len(row) != len(r.Header) {
			return fmt.Errorf("codelist %s: row %d has %d columns, header has %d", r.ID, i+1, len(row), len(r.Header))
		}
	}
	return nil
}

// Merger builds term tables from codelist sources.
type Merger struct {
	logger *slog.Logger
}

// NewMerger creates a Merger. A nil logger discards output.
func NewMerger(logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Merger{logger: logger}
}

// Build reads the configured sources of cl and merges them.
func (m *Merger) Build(cfg *config.Config, cl *config.Codelist) (*Result, error) {
	var original, user *Source
	var err error
	if cl.Original != "" {
		original, err = ReadSource(cl.ID, RoleOriginal, cfg.CodelistPath(cl.Original), m.logger)
		if err != nil {
			return nil, err
		}
	}
	if cl.User != "" {
		user, err = ReadSource(cl.ID, RoleUser, cfg.CodelistPath(cl.User), m.logger)
		if err != nil {
			return nil, err
		}
	}
	return m.Merge(cl, original, user)
}

// Merge combines parsed sources according to the codelist's kind.
func (m *Merger) Merge(cl *config.Codelist, original, user *Source) (*Result, error) {
	var (
		result *Result
		err    error
	)
	switch cl.Kind() {
	case config.KindOriginalOnly:
		result, err = mergeOriginalOnly(cl.ID, original)
	case config.KindUserOnly:
		result, err = mergeUserOnly(cl.ID, user)
	case config.KindCombined:
		result, err = m.mergeCombined(cl.ID, original, user)
	default:
		return nil, fmt.Errorf("codelist %s: no source configured", cl.ID)
	}
	if err != nil {
		return nil, err
	}
	result.Kind = cl.Kind()
	if err := result.Validate(); err != nil {
		return nil, err
	}

	m.logger.Debug("merged codelist",
		slog.String("codelist", cl.ID),
		slog.String("kind", cl.Kind().String()),
		slog.Int("rows", len(result.Rows)),
		slog.Int("columns", result.Width()))
	return result, nil
}

func prefixed(id, name string) string {
	return id + "_" + name
}

// mergeOriginalOnly passes the original through in source order.
func mergeOriginalOnly(id string, original *Source) (*Result, error) {
	if original == nil {
		return nil, fmt.Errorf("codelist %s: original source not loaded", id)
	}
	header := append([]string(nil), original.Header...)
	header[1] = prefixed(id, header[1])

	rows := make([][]string, 0, len(original.Entries))
	for _, e := range original.Entries {
		row := []string{e.Code, e.Description}
		if original.HasCount() {
			row = append(row, e.Count)
		}
		rows = append(rows, row)
	}
	return &Result{ID: id, Header: header, Rows: rows}, nil
}

// mergeUserOnly passes the user source through in source order with every
// row flagged.
func mergeUserOnly(id string, user *Source) (*Result, error) {
	if user == nil {
		return nil, fmt.Errorf("codelist %s: user source not loaded", id)
	}
	header := []string{user.Header[0], prefixed(id, user.Header[1])}
	if user.HasCount() {
		header = append(header, prefixed(id, user.Header[2]))
	}
	header = append(header, FlagColumn)

	rows := make([][]string, 0, len(user.Entries))
	for _, e := range user.Entries {
		row := []string{e.Code, e.Description}
		if user.HasCount() {
			row = append(row, e.Count)
		}
		rows = append(rows, append(row, FlagUser))
	}
	return &Result{ID: id, Header: header, Rows: rows}, nil
}

// mergeCombined emits every user code flagged 1 and every original-only
// code flagged 0 with a zero count, sorted by code. User fields win all
// conflicts.
func (m *Merger) mergeCombined(id string, original, user *Source) (*Result, error) {
	if original == nil || user == nil {
		return nil, fmt.Errorf("codelist %s: both sources are required for a combined merge", id)
	}
	hasCount := original.HasCount() || user.HasCount()

	header := []string{user.Header[0], prefixed(id, user.Header[1])}
	if hasCount {
		countName := original.Header[len(original.Header)-1]
		if user.HasCount() {
			countName = user.Header[2]
		}
		header = append(header, prefixed(id, countName))
	}
	header = append(header, FlagColumn)

	rows := make([][]string, 0, len(user.Entries)+len(original.Entries))
	for _, e := range user.Entries {
		row := []string{e.Code, e.Description}
		orig, inOriginal := original.Lookup(e.Code)
		if inOriginal {
			m.logConflicts(id, e, orig, user.HasCount() && original.HasCount())
		}
		if hasCount {
			count := e.Count
			if !user.HasCount() {
				count = "0"
				if inOriginal {
					count = orig.Count
				}
			}
			row = append(row, count)
		}
		rows = append(rows, append(row, FlagUser))
	}

	for _, e := range original.Entries {
		if _, inUser := user.Lookup(e.Code); inUser {
			continue
		}
		row := []string{e.Code, e.Description}
		if hasCount {
			row = append(row, "0")
		}
		rows = append(rows, append(row, FlagOriginal))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return CompareCodes(rows[i][0], rows[j][0]) < 0
	})
	return &Result{ID: id, Header: header, Rows: rows}, nil
}

func (m *Merger) logConflicts(id string, user, original Entry, compareCounts bool) {
	if user.Description != original.Description {
		m.logger.Warn("codelist sources disagree on description, using user value",
			slog.String("codelist", id),
			slog.String("code", user.Code),
			slog.String("user", user.Description),
			slog.String("original", original.Description))
	}
	if compareCounts && user.Count != original.Count {
		m.logger.Warn("codelist sources disagree on count, using user value",
			slog.String("codelist", id),
			slog.String("code", user.Code),
			slog.String("user", user.Count),
			slog.String("original", original.Count))
	}
}

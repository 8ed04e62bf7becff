package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/render"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/schema"
)

// Derived date of birth: when a table declares dob but its extract only
// carries the year of birth, dob is computed as <yob>-01-01.
const (
	dobColumn = "dob"
	yobColumn = "yob"
)

func (g *Generator) concatenate(ctx context.Context, report *Report) (any, error) {
	found, err := g.finder.FindAll(g.cfg.OrderedTables())
	if err != nil {
		return nil, err
	}
	for _, te := range found.Errors {
		report.skip(te.Table, te.Err.Error())
	}
	g.logger.Debug(found.Summary())

	data := render.ConcatenateData{Common: g.common(pipeline.Concatenate)}
	for _, t := range g.cfg.OrderedTables() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, ok := found.Files[t.Name]
		if !ok {
			continue
		}
		if err := checkPartHeaders(t.Name, files); err != nil {
			return nil, err
		}
		data.Tables = append(data.Tables, render.ConcatTable{
			Stage: g.stage(t.Name, "", pipeline.Concatenate),
			Files: files,
		})
		report.include(t.Name)
	}
	if len(data.Tables) == 0 {
		return nil, fmt.Errorf("%w: no raw files found for any table under %s", ErrNoTables, g.cfg.RawData.RootFolder)
	}
	return data, nil
}

// checkPartHeaders requires every part file of a table to carry the header
// of the first.
func checkPartHeaders(table string, files []string) error {
	first, err := schema.ReadHeader(files[0])
	if err != nil {
		return tableError(err, table)
	}
	for _, path := range files[1:] {
		h, err := schema.ReadHeader(path)
		if err != nil {
			return tableError(err, table)
		}
		if h.Signature() != first.Signature() {
			return &schema.SchemaMismatchError{
				Table:    table,
				Path:     path,
				Expected: first.Columns,
				Observed: h.Columns,
				Reason:   "header differs from " + files[0],
			}
		}
	}
	return nil
}

func (g *Generator) convertDates(ctx context.Context, report *Report) (any, error) {
	data := render.DatesData{Common: g.common(pipeline.ConvertDates)}
	tables := g.participating(pipeline.ConvertDates)
	if len(tables) == 0 {
		g.logger.Warn("no tables with date columns, script will not convert anything")
	}

	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, _, err := g.machine.Check(t, pipeline.ConvertDates, nil)
		if err != nil {
			return nil, err
		}

		derive := t.HasColumn(dobColumn) && !header.Has(dobColumn)
		var dates []string
		for _, col := range t.DateColumns {
			if derive && col == dobColumn {
				continue
			}
			dates = append(dates, col)
		}
		required := dates
		if derive {
			required = append(slices.Clone(dates), yobColumn)
		}
		binding, err := header.Resolve(t.Name, required)
		if err != nil {
			return nil, err
		}

		dt := render.DateTable{
			Stage:  g.stage(t.Name, header.Path, pipeline.ConvertDates),
			Header: header.Columns,
		}
		for _, col := range dates {
			pos, _ := binding.Pos(col)
			dt.DatePositions = append(dt.DatePositions, pos)
		}
		if derive {
			dt.DeriveDOB = true
			dt.YOBPosition, _ = binding.Pos(yobColumn)
			dt.Header = insertColumn(header.Columns, t.ColumnNames(), dobColumn)
			g.logger.Info("deriving dob from yob", slog.String("table", t.Name))
		}
		data.Tables = append(data.Tables, dt)
		report.include(t.Name)
	}
	return data, nil
}

// insertColumn places name into observed after the last observed column
// that precedes it in declared.
func insertColumn(observed, declared []string, name string) []string {
	idx := slices.Index(declared, name)
	at := 0
	for i, col := range observed {
		if j := slices.Index(declared, col); j >= 0 && j < idx {
			at = i + 1
		}
	}
	return slices.Insert(slices.Clone(observed), at, name)
}

func (g *Generator) applyLookups(ctx context.Context, report *Report) (any, error) {
	data := render.LookupsData{Common: g.common(pipeline.ApplyLookups)}
	tables := g.participating(pipeline.ApplyLookups)
	if len(tables) == 0 {
		g.logger.Warn("no tables with lookup columns, script will not convert anything")
	}
	if err := g.checkLookupFiles(tables); err != nil {
		return nil, err
	}

	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols := t.LookupColumnNames()
		header, binding, err := g.machine.Check(t, pipeline.ApplyLookups, cols)
		if err != nil {
			return nil, err
		}
		lt := render.LookupTable{Stage: g.stage(t.Name, header.Path, pipeline.ApplyLookups)}
		for _, col := range cols {
			pos, _ := binding.Pos(col)
			lt.Lookups = append(lt.Lookups, render.LookupColumn{
				Column:   col,
				Position: pos,
				File:     g.cfg.LookupPath(t.LookupColumns[col]),
			})
		}
		data.Tables = append(data.Tables, lt)
		report.include(t.Name)
	}
	return data, nil
}

// checkLookupFiles requires every referenced lookup file to exist with a
// two-column header.
func (g *Generator) checkLookupFiles(tables []*config.TableConfig) error {
	var problems []string
	checked := make(map[string]bool)
	for _, t := range tables {
		for _, col := range t.LookupColumnNames() {
			path := g.cfg.LookupPath(t.LookupColumns[col])
			if checked[path] {
				continue
			}
			checked[path] = true

			if _, err := os.Stat(path); err != nil {
				problems = append(problems, fmt.Sprintf("%s (for %s.%s) not found", path, t.Name, col))
				continue
			}
			h, err := schema.ReadHeader(path)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			if h.ColumnCount() != 2 {
				problems = append(problems, fmt.Sprintf("%s has %d columns, expected 2 (code, description)", path, h.ColumnCount()))
			}
		}
	}
	if len(problems) > 0 {
		return &LookupFileError{Problems: problems}
	}
	return nil
}

func tableError(err error, table string) error {
	var sm *schema.SchemaMismatchError
	if errors.As(err, &sm) && sm.Table == "" {
		sm.Table = table
	}
	return err
}

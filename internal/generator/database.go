package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/ddl"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/render"
)

func (g *Generator) createDatabase(ctx context.Context, report *Report) (any, error) {
	if g.cfg.Database == "" {
		return nil, fmt.Errorf("no database path configured")
	}

	data := render.DatabaseData{
		Common:   g.common(pipeline.CreateDatabase),
		Database: g.cfg.Database,
	}
	var schema, indexes []string
	for _, t := range g.cfg.OrderedTables() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols := pipeline.FinalColumns(t, g.cfg.Codelists)
		header, err := g.machine.CheckFinal(t, pipeline.ColumnNames(cols))
		if err != nil {
			return nil, err
		}

		stmt, err := ddl.CreateTable(t.Name, cols)
		if err != nil {
			return nil, err
		}
		idx, err := ddl.CreateIndexes(t.Name, t.Indexes)
		if err != nil {
			return nil, err
		}
		schema = append(schema, stmt)
		indexes = append(indexes, idx...)

		data.Tables = append(data.Tables, render.DatabaseTable{Table: t.Name, Input: header.Path})
		report.include(t.Name)
		g.logger.Debug("bound table for loading",
			slog.String("table", t.Name),
			slog.String("input", header.Path),
			slog.Int("columns", len(cols)),
			slog.Int("indexes", len(idx)))
	}
	if len(data.Tables) == 0 {
		return nil, fmt.Errorf("%w: no tables configured", ErrNoTables)
	}

	if err := ddl.Check(ctx, append(append([]string(nil), schema...), indexes...)); err != nil {
		return nil, err
	}
	data.Schema = strings.Join(schema, "\n")
	data.Indexes = strings.Join(indexes, "\n")
	return data, nil
}

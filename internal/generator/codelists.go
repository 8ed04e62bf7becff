package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/codelist"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/render"
)

// ListsDirName is the folder below the output directory that receives
// merged term files before the codelist script publishes them.
const ListsDirName = "lists"

// FileListName is the annotation array job's table list.
const FileListName = "s05_annotation_filelist.txt"

func (g *Generator) prepareCodelists(ctx context.Context, report *Report) (any, error) {
	ids := g.cfg.CodelistIDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no codelists configured", ErrNoTables)
	}

	listsDir := filepath.Join(g.opts.OutputDir, ListsDirName)
	publishDir := pipeline.CodelistDir(g.cfg.ProcessedDataFolder)
	data := render.CodelistsData{
		Common:     g.common(pipeline.PrepareCodelists),
		ListsDir:   listsDir,
		PublishDir: publishDir,
		StatusFile: pipeline.CodelistStatusFile(g.cfg.ProcessedDataFolder),
	}

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cl := g.cfg.Codelists[id]
		result, err := g.merger.Build(g.cfg, cl)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		source, err := codelist.WriteTermFile(listsDir, result)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data.Codelists = append(data.Codelists, render.CodelistFile{
			ID:     id,
			Kind:   cl.Kind().String(),
			Source: source,
			Target: filepath.Join(publishDir, codelist.TermFileName(id)),
			Width:  result.Width(),
			Rows:   len(result.Rows),
		})
		report.Codelists = append(report.Codelists, id)
		g.logger.Info("prepared codelist",
			slog.String("codelist", id),
			slog.String("kind", cl.Kind().String()),
			slog.Int("terms", len(result.Rows)))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return data, nil
}

func (g *Generator) annotateTables(ctx context.Context, report *Report) (any, error) {
	tables := g.participating(pipeline.AnnotateTables)
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no table has codelist annotations", ErrNoTables)
	}

	var ids []string
	for _, t := range tables {
		for _, refs := range t.CodelistAnnotations {
			ids = append(ids, refs...)
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	layouts, err := g.machine.CheckCodelists(ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		cl, ok := g.cfg.Codelists[id]
		if !ok {
			return nil, fmt.Errorf("codelist %s is referenced by an annotation but not configured", id)
		}
		if err := checkLayoutKind(cl, layouts[id]); err != nil {
			return nil, err
		}
	}

	data := render.AnnotateData{
		Common:   g.common(pipeline.AnnotateTables),
		FileList: filepath.Join(g.opts.OutputDir, FileListName),
	}
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols := t.AnnotatedColumnNames()
		header, binding, err := g.machine.Check(t, pipeline.AnnotateTables, cols)
		if err != nil {
			return nil, err
		}

		at := render.AnnotateTable{Stage: g.stage(t.Name, header.Path, pipeline.AnnotateTables)}
		for _, col := range cols {
			pos, _ := binding.Pos(col)
			for _, id := range t.CodelistAnnotations[col] {
				layout := layouts[id]
				a := render.Annotation{
					Column:      col,
					Codelist:    id,
					Position:    pos,
					TermFile:    layout.Path,
					FlagColumn:  layout.FlagPosition(),
					Description: col + "_" + id + "_description",
				}
				if layout.HasFlag {
					a.Flag = col + "_" + id + "_flag"
				}
				at.Annotations = append(at.Annotations, a)
			}
		}

		appended := pipeline.ColumnNames(pipeline.AnnotationColumns(t, g.cfg.Codelists))
		for _, name := range appended {
			if header.Has(name) {
				return nil, fmt.Errorf("table %s: annotation column %s already exists in %s", t.Name, name, header.Path)
			}
		}
		at.Header = append(slices.Clone(header.Columns), appended...)

		data.Tables = append(data.Tables, at)
		report.include(t.Name)
	}
	report.Codelists = ids
	data.Tasks = len(data.Tables)

	if err := writeFileList(data.FileList, report.Tables); err != nil {
		return nil, err
	}
	return data, nil
}

// checkLayoutKind requires a published term file to carry a flag column
// exactly when its codelist has a user source.
func checkLayoutKind(cl *config.Codelist, layout *codelist.TermLayout) error {
	wantFlag := cl.Kind() != config.KindOriginalOnly
	if layout.HasFlag == wantFlag {
		return nil
	}
	msg := "term file has a flag column but codelist has no user source"
	if wantFlag {
		msg = "term file has no flag column but codelist has a user source"
	}
	return &codelist.FormatError{Codelist: cl.ID, Path: layout.Path, Msg: msg + ", rerun " + pipeline.PrepareCodelists.ScriptName()}
}

func writeFileList(path string, tables []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	content := strings.Join(tables, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write annotation file list: %w", err)
	}
	return nil
}

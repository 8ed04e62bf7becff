// Package generator resolves the bindings of a pipeline step against the
// current state of the processed data folder and writes the step script.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/codelist"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/discovery"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/render"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/state"
)

// Options configures a Generator.
type Options struct {
	// OutputDir receives generated scripts and intermediate files.
	OutputDir string
	// Force skips the in-flight check of prerequisite steps.
	Force bool
	// Store records generations and validated artifacts. Optional.
	Store state.Store
}

// Generator writes step scripts for one loaded configuration.
type Generator struct {
	cfg     *config.Config
	opts    Options
	machine *pipeline.Machine
	finder  *discovery.Finder
	merger  *codelist.Merger
	logger  *slog.Logger
}

// New creates a Generator. A nil logger discards output.
func New(cfg *config.Config, opts Options, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	machineOpts := []pipeline.MachineOption{pipeline.WithForce(opts.Force)}
	if opts.Store != nil {
		machineOpts = append(machineOpts, pipeline.WithStore(opts.Store))
	}
	return &Generator{
		cfg:     cfg,
		opts:    opts,
		machine: pipeline.NewMachine(cfg.ProcessedDataFolder, logger, machineOpts...),
		finder:  discovery.NewFinder(discovery.OptionsFor(cfg), logger),
		merger:  codelist.NewMerger(logger),
		logger:  logger,
	}
}

// Report describes one generated script.
type Report struct {
	Step         pipeline.Step
	Script       string
	Tables       []string
	Skipped      []Skipped
	Codelists    []string
	Changed      bool // An earlier script with different content was replaced
	GenerationID string
	Duration     time.Duration
}

// Skipped is a table left out of a script.
type Skipped struct {
	Table  string
	Reason string
}

func (r *Report) include(table string) {
	r.Tables = append(r.Tables, table)
}

func (r *Report) skip(table, reason string) {
	r.Skipped = append(r.Skipped, Skipped{Table: table, Reason: reason})
}

// Summary returns a one-line description of the report.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", r.Step, r.Script)
	if len(r.Tables) > 0 {
		fmt.Fprintf(&b, " | Tables: %d", len(r.Tables))
	}
	if len(r.Codelists) > 0 {
		fmt.Fprintf(&b, " | Codelists: %d", len(r.Codelists))
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, " | Skipped: %d", len(r.Skipped))
	}
	fmt.Fprintf(&b, " | Duration: %s", r.Duration.Round(time.Millisecond))
	return b.String()
}

type resolver func(ctx context.Context, report *Report) (any, error)

func (g *Generator) resolver(step pipeline.Step) (resolver, bool) {
	switch step {
	case pipeline.Concatenate:
		return g.concatenate, true
	case pipeline.ConvertDates:
		return g.convertDates, true
	case pipeline.ApplyLookups:
		return g.applyLookups, true
	case pipeline.PrepareCodelists:
		return g.prepareCodelists, true
	case pipeline.AnnotateTables:
		return g.annotateTables, true
	case pipeline.CreateDatabase:
		return g.createDatabase, true
	default:
		return nil, false
	}
}

// Generate validates the prerequisites of step, resolves its bindings and
// writes its script. Nothing is written when validation fails.
func (g *Generator) Generate(ctx context.Context, step pipeline.Step) (*Report, error) {
	start := time.Now()
	resolve, ok := g.resolver(step)
	if !ok {
		return nil, &pipeline.UnknownStepError{Name: string(step)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.logger.Info("generating step",
		slog.String("step", string(step)),
		slog.Int("number", step.Number()))

	report := &Report{Step: step}
	data, err := resolve(ctx, report)
	if err != nil {
		return nil, err
	}

	content, err := render.Render(step, data)
	if err != nil {
		return nil, err
	}

	if render.Drifted(render.ScriptPath(g.opts.OutputDir, step), content) {
		report.Changed = true
		g.logger.Info("replacing script with changed content",
			slog.String("path", render.ScriptPath(g.opts.OutputDir, step)))
	}
	path, err := render.WriteScript(g.opts.OutputDir, step, content)
	if err != nil {
		return nil, err
	}
	report.Script = path

	if g.opts.Store != nil {
		gen, err := g.opts.Store.RecordGeneration(string(step), path, report.Tables)
		if err != nil {
			return nil, fmt.Errorf("script written but not recorded: %w", err)
		}
		report.GenerationID = gen.ID
	}

	report.Duration = time.Since(start)
	for _, s := range report.Skipped {
		g.logger.Warn("table skipped", slog.String("table", s.Table), slog.String("reason", s.Reason))
	}
	g.logger.Info("generated script",
		slog.String("path", path),
		slog.Int("tables", len(report.Tables)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (g *Generator) common(step pipeline.Step) render.Common {
	return render.Common{
		Step:       string(step),
		Number:     step.Number(),
		ConfigPath: g.cfg.Source(),
		Processed:  g.cfg.ProcessedDataFolder,
		OutputDir:  g.opts.OutputDir,
		Grid:       g.cfg.GridEngine,
	}
}

// stage returns the stage files a table writes in step.
func (g *Generator) stage(table, input string, step pipeline.Step) render.Stage {
	return render.Stage{
		Table:  table,
		Input:  input,
		Output: pipeline.StageFile(g.cfg.ProcessedDataFolder, table, step),
		Status: pipeline.StatusFile(g.cfg.ProcessedDataFolder, table, step),
	}
}

// participating returns the tables that take part in step, in
// declaration order.
func (g *Generator) participating(step pipeline.Step) []*config.TableConfig {
	var out []*config.TableConfig
	for _, t := range g.cfg.OrderedTables() {
		if pipeline.Participates(t, step) {
			out = append(out, t)
		}
	}
	return out
}

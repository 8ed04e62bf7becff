package commands

import (
	"fmt"
	"strings"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/output"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/generator"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/spf13/cobra"
)

// GenerateOptions holds options for the generate command.
type GenerateOptions struct {
	Step      string
	ListSteps bool
	Force     bool
}

// GenerateOutput is the JSON output of the generate command.
type GenerateOutput struct {
	Step         string          `json:"step"`
	Number       int             `json:"number"`
	Script       string          `json:"script"`
	Tables       []string        `json:"tables"`
	Skipped      []SkippedOutput `json:"skipped,omitempty"`
	Codelists    []string        `json:"codelists,omitempty"`
	Changed      bool            `json:"changed"`
	GenerationID string          `json:"generation_id,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
}

// SkippedOutput is a table left out of a script.
type SkippedOutput struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	opts := &GenerateOptions{}
	cmd := &cobra.Command{
		Use:   "generate [step]",
		Short: "Generate the script of one pipeline step",
		Long: `Generate the batch script of a single pipeline step.

The step's prerequisites are checked against the processed data folder
first: the previous step's stage files must exist, must have finished
successfully and must contain every column the step refers to. Nothing is
written when a check fails.

The step can be given by name or number, as an argument or with --step.`,
		Example: `  # Generate the date conversion script
  cprdgen generate --config pipeline.yaml --step convert_dates

  # Same, by number, into another directory
  cprdgen generate 2 -c pipeline.yaml -o scripts/

  # List the steps
  cprdgen generate --list-steps`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Step, "step", "s", "", "Step to generate (name or number)")
	cmd.Flags().BoolVar(&opts.ListSteps, "list-steps", false, "List available pipeline steps and exit")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Generate even if a prerequisite script is still running")

	_ = cmd.RegisterFlagCompletionFunc("step", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return stepNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string, opts *GenerateOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	if opts.ListSteps {
		return renderSteps(r)
	}

	name, err := selectStep(opts.Step, args)
	if err != nil {
		return err
	}
	step, err := pipeline.ParseStep(name)
	if err != nil {
		return err
	}

	cfg, err := cmdCtx.LoadPipeline()
	if err != nil {
		return err
	}
	store, cleanup, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	gen := generator.New(cfg, generator.Options{
		OutputDir: cmdCtx.Settings.OutputDir,
		Force:     opts.Force || cmdCtx.Settings.Force,
		Store:     store,
	}, cmdCtx.Logger)

	report, err := gen.Generate(cmd.Context(), step)
	if err != nil {
		return err
	}
	return renderReport(r, report)
}

// selectStep reconciles the positional step with --step.
func selectStep(flag string, args []string) (string, error) {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	switch {
	case flag == "" && arg == "":
		return "", fmt.Errorf("no step given\nHint: choose one of %s", strings.Join(stepNames(), ", "))
	case flag != "" && arg != "" && flag != arg:
		return "", fmt.Errorf("step given twice: --step %s and argument %s", flag, arg)
	case flag != "":
		return flag, nil
	default:
		return arg, nil
	}
}

func renderReport(r *output.Renderer, report *generator.Report) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := GenerateOutput{
			Step:         string(report.Step),
			Number:       report.Step.Number(),
			Script:       report.Script,
			Tables:       report.Tables,
			Codelists:    report.Codelists,
			Changed:      report.Changed,
			GenerationID: report.GenerationID,
			DurationMS:   report.Duration.Milliseconds(),
		}
		if out.Tables == nil {
			out.Tables = []string{}
		}
		for _, s := range report.Skipped {
			out.Skipped = append(out.Skipped, SkippedOutput{Table: s.Table, Reason: s.Reason})
		}
		return r.JSON(out)
	}

	r.Success(fmt.Sprintf("Generated %s", report.Script))
	if len(report.Tables) > 0 {
		r.Println(output.FormatKeyValue("Tables", strings.Join(report.Tables, ", ")))
	}
	if len(report.Codelists) > 0 {
		r.Println(output.FormatKeyValue("Codelists", strings.Join(report.Codelists, ", ")))
	}
	if report.Changed {
		r.Println(output.FormatKeyValue("Changed", "replaced a script with different content"))
	}
	for _, s := range report.Skipped {
		r.Warning(fmt.Sprintf("skipped %s: %s", s.Table, s.Reason))
	}
	return nil
}

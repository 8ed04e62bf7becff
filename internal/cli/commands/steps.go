package commands

import (
	"strconv"
	"strings"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/output"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StepOutput is the JSON representation of a pipeline step.
type StepOutput struct {
	Number      int      `json:"number"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Script      string   `json:"script"`
	DependsOn   []string `json:"depends_on"`
	Description string   `json:"description"`
}

// NewStepsCommand creates the steps command.
func NewStepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the pipeline steps",
		Long: `List the pipeline steps in execution order with the script each one
generates and the steps it depends on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return renderSteps(NewCommandContext(cmd).Renderer)
		},
	}
}

// stepTitle turns convert_dates into "Convert Dates".
func stepTitle(s pipeline.Step) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}

func stepNames() []string {
	all := pipeline.AllSteps()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = string(s)
	}
	return names
}

func collectSteps() []StepOutput {
	var out []StepOutput
	for _, s := range pipeline.AllSteps() {
		deps := []string{}
		for _, d := range s.Dependencies() {
			deps = append(deps, string(d))
		}
		out = append(out, StepOutput{
			Number:      s.Number(),
			Name:        string(s),
			Title:       stepTitle(s),
			Script:      s.ScriptName(),
			DependsOn:   deps,
			Description: s.Description(),
		})
	}
	return out
}

func renderSteps(r *output.Renderer) error {
	steps := collectSteps()
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(steps)
	}

	r.Header(1, "Pipeline Steps")
	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		deps := "-"
		if len(s.DependsOn) > 0 {
			deps = strings.Join(s.DependsOn, ", ")
		}
		rows = append(rows, []string{strconv.Itoa(s.Number), s.Title, s.Script, deps, s.Description})
	}
	r.Table([]string{"#", "Step", "Script", "Depends On", "Description"}, rows)
	return nil
}

package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/output"
	pipecfg "github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/spf13/cobra"
)

// ValidateOutput is the JSON output of the validate command.
type ValidateOutput struct {
	Config    string        `json:"config"`
	Valid     bool          `json:"valid"`
	Problems  []string      `json:"problems,omitempty"`
	Tables    []TableOutput `json:"tables,omitempty"`
	Codelists []string      `json:"codelists,omitempty"`
}

// TableOutput summarizes a configured table.
type TableOutput struct {
	Name    string   `json:"name"`
	Columns int      `json:"columns"`
	Steps   []string `json:"steps"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline configuration",
		Long: `Load the pipeline configuration and report every problem found in it.
On success the configured tables are listed with the steps they take
part in.`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	out := ValidateOutput{Config: cmdCtx.Settings.PipelineConfig}
	cfg, err := cmdCtx.LoadPipeline()
	if err != nil {
		var cfgErr *pipecfg.ConfigError
		if !errors.As(err, &cfgErr) {
			return err
		}
		out.Problems = cfgErr.Problems
		if r.EffectiveMode() == output.ModeJSON {
			if jsonErr := r.JSON(out); jsonErr != nil {
				return jsonErr
			}
		} else {
			for _, p := range cfgErr.Problems {
				r.StatusLine(p, "error", "")
			}
		}
		return fmt.Errorf("configuration %s has %d problem(s)", out.Config, len(cfgErr.Problems))
	}

	out.Valid = true
	out.Codelists = cfg.CodelistIDs()
	for _, t := range cfg.OrderedTables() {
		tbl := TableOutput{Name: t.Name, Columns: len(t.Columns)}
		for _, s := range pipeline.AllSteps() {
			if pipeline.Participates(t, s) {
				tbl.Steps = append(tbl.Steps, string(s))
			}
		}
		out.Tables = append(out.Tables, tbl)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Success(fmt.Sprintf("%s is valid", out.Config))
	rows := make([][]string, 0, len(out.Tables))
	for _, t := range out.Tables {
		rows = append(rows, []string{t.Name, fmt.Sprint(t.Columns), strings.Join(t.Steps, ", ")})
	}
	r.Table([]string{"Table", "Columns", "Steps"}, rows)
	if len(out.Codelists) > 0 {
		r.Println(output.FormatKeyValue("Codelists", strings.Join(out.Codelists, ", ")))
	}
	return nil
}

package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/output"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/state"
	"github.com/spf13/cobra"
)

// Stage status labels.
const (
	statusComplete = "complete"
	statusFailed   = "failed"
	statusRunning  = "running"
	statusMissing  = "missing"
)

// StatusOutput is the JSON output of the status command.
type StatusOutput struct {
	Stages      []StageOutput      `json:"stages"`
	Codelists   string             `json:"codelists"`
	Generations []GenerationOutput `json:"generations,omitempty"`
}

// StageOutput is one stage file of one table.
type StageOutput struct {
	Table  string `json:"table"`
	Step   string `json:"step"`
	Path   string `json:"path"`
	Status string `json:"status"`
	Exit   string `json:"exit,omitempty"`
}

// GenerationOutput is the latest generated script of a step.
type GenerationOutput struct {
	Step      string    `json:"step"`
	Script    string    `json:"script"`
	Tables    []string  `json:"tables"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the progress of every table through the pipeline",
		Long: `Show, for every configured table, which stage files exist in the processed
data folder and how the script that wrote them exited. When a state
database exists, the latest generated script of each step is listed too.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	cfg, err := cmdCtx.LoadPipeline()
	if err != nil {
		return err
	}

	var out StatusOutput
	for _, t := range cfg.OrderedTables() {
		stages, err := pipeline.Inspect(cfg.ProcessedDataFolder, t)
		if err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		for _, st := range stages {
			out.Stages = append(out.Stages, StageOutput{
				Table:  st.Table,
				Step:   string(st.Step),
				Path:   st.Path,
				Status: stageStatus(st.Exists, st.Status),
				Exit:   st.Status,
			})
		}
	}

	if out.Codelists, err = codelistStatus(cfg.ProcessedDataFolder); err != nil {
		return err
	}

	gens, err := latestGenerations(cmdCtx)
	if err != nil {
		return err
	}
	out.Generations = gens

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}
	renderStatus(r, &out)
	return nil
}

// stageStatus classifies a stage from its file and status marker.
func stageStatus(exists bool, exit string) string {
	switch {
	case exit == "0" && exists:
		return statusComplete
	case exit != "":
		return statusFailed
	case exists:
		return statusRunning
	default:
		return statusMissing
	}
}

// statusMarker maps a stage status to a renderer status.
func statusMarker(status string) string {
	switch status {
	case statusComplete:
		return "success"
	case statusFailed:
		return "error"
	case statusRunning:
		return "warning"
	default:
		return "pending"
	}
}

func codelistStatus(processed string) (string, error) {
	data, err := os.ReadFile(pipeline.CodelistStatusFile(processed))
	if errors.Is(err, fs.ErrNotExist) {
		if _, statErr := os.Stat(pipeline.CodelistDir(processed)); statErr == nil {
			return statusRunning, nil
		}
		return statusMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read codelist status: %w", err)
	}
	if strings.TrimSpace(string(data)) == "0" {
		return statusComplete, nil
	}
	return statusFailed, nil
}

// latestGenerations reads the state database without creating it.
func latestGenerations(c *CommandContext) ([]GenerationOutput, error) {
	if c.Settings.NoState {
		return nil, nil
	}
	path := c.Settings.StateFile()
	if _, err := os.Stat(path); err != nil {
		c.Logger.Debug("no state database", "path", path)
		return nil, nil
	}
	store, err := state.OpenStore(path, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database %s: %w", path, err)
	}
	defer func() { _ = store.Close() }()

	var out []GenerationOutput
	for _, s := range pipeline.AllSteps() {
		gen, err := store.LatestGeneration(string(s))
		if err != nil {
			return nil, err
		}
		if gen == nil {
			continue
		}
		out = append(out, GenerationOutput{
			Step:      gen.Step,
			Script:    gen.ScriptPath,
			Tables:    gen.Tables,
			CreatedAt: gen.CreatedAt,
		})
	}
	return out, nil
}

func renderStatus(r *output.Renderer, out *StatusOutput) {
	r.Header(1, "Pipeline Status")

	if len(out.Stages) == 0 {
		r.Println("No tables configured.")
	} else {
		rows := make([][]string, 0, len(out.Stages))
		for _, st := range out.Stages {
			rows = append(rows, []string{st.Table, st.Step, st.Status, st.Path})
		}
		r.Table([]string{"Table", "Step", "Status", "Stage File"}, rows)
	}
	r.Println("")
	r.StatusLine("codelists", statusMarker(out.Codelists), out.Codelists)

	if len(out.Generations) == 0 {
		return
	}
	r.Println("")
	r.Header(2, "Generated Scripts")
	rows := make([][]string, 0, len(out.Generations))
	for _, g := range out.Generations {
		rows = append(rows, []string{
			g.Step,
			g.Script,
			strings.Join(g.Tables, ", "),
			g.CreatedAt.Local().Format(time.DateTime),
		})
	}
	r.Table([]string{"Step", "Script", "Tables", "Generated"}, rows)
}

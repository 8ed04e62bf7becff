package pipeline

import (
	"os"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
)

// StageState describes one stage file of a table as found on disk.
type StageState struct {
	Table  string
	Step   Step
	Path   string
	Exists bool
	Status string // Content of the status marker; "" when absent
}

// Complete reports whether the stage exists and its script exited with 0.
func (s StageState) Complete() bool {
	return s.Exists && s.Status == "0"
}

// Inspect lists the stage files a table participates in, in step order.
func Inspect(processed string, t *config.TableConfig) ([]StageState, error) {
	var out []StageState
	for _, step := range AllSteps() {
		if !step.HasStage() || !Participates(t, step) {
			continue
		}
		st := StageState{
			Table: t.Name,
			Step:  step,
			Path:  StageFile(processed, t.Name, step),
		}
		if _, err := os.Stat(st.Path); err == nil {
			st.Exists = true
		}
		status, found, err := readStatus(StatusFile(processed, t.Name, step))
		if err != nil {
			return nil, err
		}
		if found {
			st.Status = status
		}
		out = append(out, st)
	}
	return out, nil
}

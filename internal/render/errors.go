package render

import (
	"fmt"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
)

// RenderError represents a failure to execute a step template.
type RenderError struct {
	Step  pipeline.Step
	Cause error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render %s: %v", e.Step.ScriptName(), e.Cause)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

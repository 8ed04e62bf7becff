package pipeline

import (
	"fmt"
	"time"
)

// MissingArtifactError indicates that a prerequisite step's output for a
// table does not exist.
type MissingArtifactError struct {
	Table    string
	Step     Step
	Requires Step
	Path     string
}

func (e *MissingArtifactError) Error() string {
	subject := "table " + e.Table
	if e.Table == "" {
		subject = "codelists"
	}
	return fmt.Sprintf("cannot generate %s for %s: output of %s not found at %s (run %s first)",
		e.Step, subject, e.Requires, e.Path, e.Requires.ScriptName())
}

// FailedStepError indicates that a prerequisite script recorded a non-zero
// exit status.
type FailedStepError struct {
	Table  string
	Step   Step
	Path   string
	Status string
}

func (e *FailedStepError) Error() string {
	subject := "table " + e.Table
	if e.Table == "" {
		subject = "codelists"
	}
	return fmt.Sprintf("%s failed for %s with exit status %s (see %s)", e.Step, subject, e.Status, e.Path)
}

// InFlightError indicates that a prerequisite script was generated but has
// not finished writing its output yet.
type InFlightError struct {
	Table       string
	Step        Step
	GeneratedAt time.Time
}

func (e *InFlightError) Error() string {
	subject := "table " + e.Table
	if e.Table == "" {
		subject = "codelists"
	}
	return fmt.Sprintf("%s for %s is still in flight (generated %s, no status marker yet); wait for it to finish or use --force",
		e.Step, subject, e.GeneratedAt.Format(time.RFC3339))
}

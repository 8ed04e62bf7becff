// Package pipeline defines the ordered processing steps and validates that
// a step's prerequisites completed before its script is generated.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Step identifies one pipeline step.
type Step string

// Pipeline steps in execution order.
const (
	Concatenate      Step = "concatenate"
	ConvertDates     Step = "convert_dates"
	ApplyLookups     Step = "apply_lookups"
	PrepareCodelists Step = "prepare_codelists"
	AnnotateTables   Step = "annotate_tables"
	CreateDatabase   Step = "create_database"
)

type stepInfo struct {
	number      int
	stage       string
	description string
	deps        []Step
}

var steps = map[Step]stepInfo{
	Concatenate:      {1, "s01", "Concatenate raw part files per table", nil},
	ConvertDates:     {2, "s02", "Convert DD/MM/YYYY dates to ISO format", []Step{Concatenate}},
	ApplyLookups:     {3, "s03", "Replace coded values using lookup files", []Step{ConvertDates}},
	PrepareCodelists: {4, "", "Merge original and user codelists into term files", nil},
	AnnotateTables:   {5, "s04", "Annotate coded columns with codelist terms", []Step{ApplyLookups, PrepareCodelists}},
	CreateDatabase:   {6, "", "Load processed tables into SQLite and build indexes", []Step{AnnotateTables}},
}

var stepGraph = buildGraph()

func buildGraph() *Graph {
	g := NewGraph()
	for s := range steps {
		g.AddNode(s)
	}
	for s, info := range steps {
		for _, dep := range info.deps {
			if err := g.AddEdge(dep, s); err != nil {
				panic(err)
			}
		}
	}
	if cyclic, path := g.HasCycle(); cyclic {
		panic(fmt.Sprintf("pipeline step graph has a cycle: %v", path))
	}
	return g
}

// StepGraph returns the step dependency graph.
func StepGraph() *Graph {
	return stepGraph
}

// AllSteps returns every step in execution order.
func AllSteps() []Step {
	return []Step{Concatenate, ConvertDates, ApplyLookups, PrepareCodelists, AnnotateTables, CreateDatabase}
}

// ParseStep resolves a step by name or by number.
func ParseStep(s string) (Step, error) {
	name := strings.TrimSpace(s)
	if _, ok := steps[Step(name)]; ok {
		return Step(name), nil
	}
	if n, err := strconv.Atoi(name); err == nil {
		for _, step := range AllSteps() {
			if step.Number() == n {
				return step, nil
			}
		}
	}
	return "", &UnknownStepError{Name: s}
}

// Number returns the 1-based position of the step.
func (s Step) Number() int {
	return steps[s].number
}

// StagePrefix returns the prefix of the per-table stage file the step
// writes, or "" for steps without table output.
func (s Step) StagePrefix() string {
	return steps[s].stage
}

// HasStage reports whether the step writes a per-table stage file.
func (s Step) HasStage() bool {
	return s.StagePrefix() != ""
}

// ScriptName returns the generated script file name.
func (s Step) ScriptName() string {
	return fmt.Sprintf("s%02d_%s.sh", s.Number(), s)
}

// Description returns a one-line summary of the step.
func (s Step) Description() string {
	return steps[s].description
}

// Dependencies returns the steps that must complete first.
func (s Step) Dependencies() []Step {
	return stepGraph.Parents(s)
}

func (s Step) String() string {
	return string(s)
}

// UnknownStepError reports an invalid step identifier.
type UnknownStepError struct {
	Name string
}

func (e *UnknownStepError) Error() string {
	names := make([]string, 0, len(steps))
	for _, s := range AllSteps() {
		names = append(names, string(s))
	}
	return fmt.Sprintf("invalid step %q (valid steps: %s)", e.Name, strings.Join(names, ", "))
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/commands"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/testutil"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{"version", "generate", "steps", "status", "validate", "init", "completion"}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	for _, flag := range []string{"settings", "config", "output-dir", "state", "no-state", "verbose", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestGenerate_Concatenate(t *testing.T) {
	p := testutil.SetupTestProject(t)

	out, _, err := execute(t, "generate", "concatenate",
		"-c", p.Config, "-o", p.Scripts, "--no-state", "--output", "json")
	require.NoError(t, err)

	var got commands.GenerateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "concatenate", got.Step)
	assert.Equal(t, 1, got.Number)
	assert.Equal(t, filepath.Join(p.Scripts, "s01_concatenate.sh"), got.Script)
	assert.Equal(t, []string{"patient"}, got.Tables)
	assert.Empty(t, got.GenerationID)

	_, err = os.Stat(got.Script)
	assert.NoError(t, err)
}

func TestGenerate_ByNumberWithState(t *testing.T) {
	p := testutil.SetupTestProject(t)
	statePath := filepath.Join(p.Dir, "state.db")

	out, _, err := execute(t, "generate", "--step", "1",
		"-c", p.Config, "-o", p.Scripts, "--state", statePath)
	require.NoError(t, err)
	assert.Contains(t, out, "s01_concatenate.sh")
	testutil.AssertNoANSI(t, out)

	out, _, err = execute(t, "status", "-c", p.Config, "-o", p.Scripts, "--state", statePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated Scripts")
	assert.Contains(t, out, "| concatenate |")
	assert.Contains(t, out, "| patient | convert_dates | missing |")
	testutil.AssertValidMarkdown(t, out)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "unknown step",
			args:    []string{"generate", "sort_tables"},
			wantErr: `invalid step "sort_tables"`,
		},
		{
			name:    "no step",
			args:    []string{"generate"},
			wantErr: "no step given",
		},
		{
			name:    "step given twice",
			args:    []string{"generate", "concatenate", "--step", "convert_dates"},
			wantErr: "step given twice",
		},
		{
			name:    "prerequisite missing",
			args:    []string{"generate", "convert_dates"},
			wantErr: "patient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.SetupTestProject(t)
			args := append(tt.args, "-c", p.Config, "-o", p.Scripts, "--no-state")

			_, _, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			entries, _ := os.ReadDir(p.Scripts)
			assert.Empty(t, entries, "nothing is written when generation fails")
		})
	}
}

func TestGenerate_ConvertDatesAfterConcatenate(t *testing.T) {
	p := testutil.SetupTestProject(t)
	stage := pipeline.StageFile(p.Processed, "patient", pipeline.Concatenate)
	require.NoError(t, os.MkdirAll(filepath.Dir(stage), 0o755))
	require.NoError(t, os.WriteFile(stage, []byte("patid\tyob\tcrd\n1\t1970\t01/02/2001\n"), 0o644))
	require.NoError(t, os.WriteFile(pipeline.StatusFile(p.Processed, "patient", pipeline.Concatenate), []byte("0\n"), 0o644))

	out, _, err := execute(t, "generate", "convert_dates", "-c", p.Config, "-o", p.Scripts, "--no-state")
	require.NoError(t, err)
	assert.Contains(t, out, "s02_convert_dates.sh")
	assert.Contains(t, out, "patient")
}

func TestSteps(t *testing.T) {
	out, _, err := execute(t, "steps", "--output", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Pipeline Steps")
	assert.Contains(t, out, "| 2 | Convert Dates | s02_convert_dates.sh | concatenate |")
	assert.Contains(t, out, "apply_lookups, prepare_codelists")

	out, _, err = execute(t, "steps", "--output", "json")
	require.NoError(t, err)
	var steps []commands.StepOutput
	require.NoError(t, json.Unmarshal([]byte(out), &steps))
	require.Len(t, steps, 6)
	assert.Equal(t, "create_database", steps[5].Name)
	assert.Equal(t, []string{"annotate_tables"}, steps[5].DependsOn)
}

func TestValidate(t *testing.T) {
	p := testutil.SetupTestProject(t)

	out, _, err := execute(t, "validate", "-c", p.Config)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "concatenate, convert_dates, create_database")

	bad := filepath.Join(p.Dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tables:\n  patient:\n    columns:\n      patid: INTEGER\n"), 0o644))
	out, _, err = execute(t, "validate", "-c", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "problem(s)")
	assert.Contains(t, out, "processed_data_folder is required")
}

func TestValidate_NoConfig(t *testing.T) {
	_, _, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pipeline configuration given")
}

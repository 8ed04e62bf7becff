// Package main provides tests for the cprdgen CLI.
package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli"
)

func TestVersionCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	if err != nil {
		t.Errorf("version command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "cprdgen") {
		t.Errorf("version output should contain 'cprdgen', got: %s", output)
	}
}

func TestHelpListsSteps(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"generate", "steps", "status", "validate", "annotate_tables"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output should contain %q, got: %s", want, output)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"sort"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected an error for an unknown command")
	}
}

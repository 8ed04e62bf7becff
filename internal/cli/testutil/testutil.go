// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/output"
)

// Project is a temporary pipeline layout for command tests.
type Project struct {
	Dir       string
	Config    string
	Raw       string
	Processed string
	Scripts   string
}

// SetupTestProject creates a temporary project with a pipeline
// configuration for one patient table and two raw part files.
func SetupTestProject(t *testing.T) *Project {
	t.Helper()

	dir := t.TempDir()
	p := &Project{
		Dir:       dir,
		Config:    filepath.Join(dir, "pipeline.yaml"),
		Raw:       filepath.Join(dir, "raw"),
		Processed: filepath.Join(dir, "processed"),
		Scripts:   filepath.Join(dir, "scripts"),
	}

	for _, d := range []string{filepath.Join(p.Raw, "Part1"), filepath.Join(p.Raw, "Part2"), p.Processed} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("failed to create directory %s: %v", d, err)
		}
	}

	pipeline := fmt.Sprintf(`raw_data:
  root_folder: %s
processed_data_folder: %s
database: %s
tables:
  patient:
    file_pattern: "patient_*.txt"
    date_columns: [crd]
    columns:
      patid: INTEGER
      yob: INTEGER
      crd: TEXT
    indexes:
      - [patid]
`, p.Raw, p.Processed, filepath.Join(dir, "cprd.db"))
	if err := os.WriteFile(p.Config, []byte(pipeline), 0644); err != nil {
		t.Fatalf("failed to create pipeline.yaml: %v", err)
	}

	parts := map[string]string{
		"Part1/patient_001.txt": "patid\tyob\tcrd\n1\t1970\t01/02/2001\n",
		"Part2/patient_002.txt": "patid\tyob\tcrd\n2\t1980\t03/04/2002\n",
	}
	for rel, content := range parts {
		if err := os.WriteFile(filepath.Join(p.Raw, rel), []byte(content), 0644); err != nil {
			t.Fatalf("failed to create %s: %v", rel, err)
		}
	}

	return p
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape codes.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}

// Package render produces pipeline step scripts from embedded templates.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/pipeline"
)

//go:embed templates/*.sh.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("scripts").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"sq":   ShellQuote,
			"dq":   dotQuote,
			"pos":  position,
			"join": strings.Join,
			"add":  func(a, b int) int { return a + b },
		}).
		ParseFS(templateFS, "templates/*.sh.tmpl"),
)

// TemplateName returns the name of the template that renders step.
func TemplateName(step pipeline.Step) string {
	return string(step) + ".sh.tmpl"
}

// Render executes the template of step with data.
func Render(step pipeline.Step, data any) (string, error) {
	tmpl := templates.Lookup(TemplateName(step))
	if tmpl == nil {
		return "", &RenderError{Step: step, Cause: fmt.Errorf("no template named %s", TemplateName(step))}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &RenderError{Step: step, Cause: err}
	}
	return buf.String(), nil
}

// ScriptPath returns where the script of step is written in dir.
func ScriptPath(dir string, step pipeline.Step) string {
	return filepath.Join(dir, step.ScriptName())
}

// WriteScript atomically replaces the script of step in dir with content.
func WriteScript(dir string, step pipeline.Step, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := ScriptPath(dir, step)

	tmp, err := os.CreateTemp(dir, "."+step.ScriptName()+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary script: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return "", fmt.Errorf("failed to set script permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Drifted reports whether an existing script at path differs from content.
// A missing script has not drifted.
func Drifted(path, content string) bool {
	existing, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return string(existing) != content
}

// ShellQuote quotes s for POSIX shells.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// dotQuote quotes s as an argument of a sqlite3 dot-command.
func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// position returns the 1-based position of name in columns.
func position(columns []string, name string) (int, error) {
	i := slices.Index(columns, name)
	if i < 0 {
		return 0, fmt.Errorf("column %q not in [%s]", name, strings.Join(columns, ", "))
	}
	return i + 1, nil
}

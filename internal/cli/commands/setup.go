// Package commands implements the cprdgen subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/config"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/output"
	pipecfg "github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Settings *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext collects the settings, logger and renderer stored in
// the command's context.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	settings := config.GetSettings(cmd.Context())
	return &CommandContext{
		Settings: settings,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(settings.OutputFormat)),
	}
}

// LoadPipeline loads the pipeline configuration named by the settings.
func (c *CommandContext) LoadPipeline() (*pipecfg.Config, error) {
	path := c.Settings.PipelineConfig
	if path == "" {
		return nil, fmt.Errorf("no pipeline configuration given\nHint: pass --config <file> or set config in cprdgen.yaml")
	}
	cfg, err := pipecfg.Load(path)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("loaded pipeline configuration",
		slog.String("path", path),
		slog.Int("tables", len(cfg.Tables)),
		slog.Int("codelists", len(cfg.Codelists)))
	return cfg, nil
}

// OpenStore opens the state database unless disabled. The returned
// cleanup function must be called; it is a no-op without a store.
func (c *CommandContext) OpenStore() (state.Store, func(), error) {
	if c.Settings.NoState {
		return nil, func() {}, nil
	}
	path := c.Settings.StateFile()
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	store, err := state.OpenStore(path, c.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state database %s: %w", path, err)
	}
	return store, func() { _ = store.Close() }, nil
}

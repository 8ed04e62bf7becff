package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "CPRDGEN_"

// loggerKey and settingsKey store values in the command context.
type (
	loggerKey   struct{}
	settingsKey struct{}
)

// findSettingsFile returns the settings file to use.
// Priority: explicit path > cprdgen.yaml > cprdgen.yml
func findSettingsFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range SettingsFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load loads settings from defaults, the settings file, environment
// variables and flags. It returns the settings file used, if any.
// Precedence (highest to lowest): flags > env vars > settings file > defaults
func Load(settingsFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")
	d := Defaults()

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"output_dir": d.OutputDir,
		"output":     d.OutputFormat,
		"verbose":    false,
		"no_state":   false,
		"force":      false,
	}, "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Settings file
	used := findSettingsFile(settingsFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading settings file %s: %w", used, err)
		}
	}

	// 3. Environment variables: CPRDGEN_OUTPUT_DIR -> output_dir
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			// --state is short for state_path
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode settings: %w", err)
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	return &cfg, used, nil
}

// NewLogger returns the CLI logger: text records on w at info level, or
// debug level when verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// WithSettings stores cfg in ctx.
func WithSettings(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, settingsKey{}, cfg)
}

// GetSettings retrieves the settings from the command context, falling
// back to defaults.
func GetSettings(ctx context.Context) *Config {
	if ctx != nil {
		if c, ok := ctx.Value(settingsKey{}).(*Config); ok {
			return c
		}
	}
	return Defaults()
}

// Package config manages the settings of the cprdgen command line.
//
// Settings are not the pipeline configuration: they say where the pipeline
// configuration lives, where scripts go and how output looks. They come
// from defaults, an optional cprdgen.yaml settings file, CPRDGEN_
// environment variables and command-line flags, in increasing precedence.
package config

import "path/filepath"

// Config holds all CLI settings.
type Config struct {
	PipelineConfig string `koanf:"config"`
	OutputDir      string `koanf:"output_dir"`
	StatePath      string `koanf:"state_path"`
	NoState        bool   `koanf:"no_state"`
	Force          bool   `koanf:"force"`
	Verbose        bool   `koanf:"verbose"`
	OutputFormat   string `koanf:"output"`
}

// Default settings.
const (
	DefaultOutputDir = "generated_scripts"
	DefaultStateDir  = ".cprdgen"
	DefaultStateFile = "state.db"
	DefaultOutput    = "auto" // TTY=text, non-TTY=markdown
)

// SettingsFiles are looked up in the working directory when no settings
// file is given.
var SettingsFiles = []string{"cprdgen.yaml", "cprdgen.yml"}

// StateFile returns the state database path: StatePath when set, else a
// file below the output directory.
func (c *Config) StateFile() string {
	if c.StatePath != "" {
		return c.StatePath
	}
	return filepath.Join(c.OutputDir, DefaultStateDir, DefaultStateFile)
}

// Defaults returns the settings used when nothing is configured.
func Defaults() *Config {
	return &Config{
		OutputDir:    DefaultOutputDir,
		OutputFormat: DefaultOutput,
	}
}

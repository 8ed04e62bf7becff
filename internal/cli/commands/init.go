package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Force     bool
	RawRoot   string
	Processed string
	Codelists string
	Lookups   string
	Database  string
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a starter pipeline configuration",
		Long: `Create a starter pipeline configuration and a cprdgen.yaml settings file.

This creates:
  - pipeline.yaml with example patient and clinical tables
  - cprdgen.yaml pointing the command line at pipeline.yaml

Folder flags replace the example paths in pipeline.yaml.`,
		Example: `  # Initialize in the current directory
  cprdgen init

  # Initialize with real folders
  cprdgen init --raw-root /data/raw --processed /data/processed

  # Overwrite an existing configuration
  cprdgen init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite existing configuration")
	cmd.Flags().StringVar(&opts.RawRoot, "raw-root", "", "Folder holding the raw Part folders")
	cmd.Flags().StringVar(&opts.Processed, "processed", "", "Folder receiving processed stage files")
	cmd.Flags().StringVar(&opts.Codelists, "codelists", "", "Folder holding codelist source files")
	cmd.Flags().StringVar(&opts.Lookups, "lookups", "", "Folder holding lookup files")
	cmd.Flags().StringVar(&opts.Database, "database", "", "Path of the SQLite database to create")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, opts *InitOptions) error {
	r := NewCommandContext(cmd).Renderer

	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, pipelineTemplate)
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", pipelineTemplate)
	}

	files, err := listTemplateFiles()
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}
	for _, name := range files {
		content, err := readTemplate(name)
		if err != nil {
			return err
		}
		if name == pipelineTemplate {
			content, err = setScalars(content, map[string]string{
				"raw_data.root_folder":  opts.RawRoot,
				"processed_data_folder": opts.Processed,
				"codelists_folder":      opts.Codelists,
				"lookups_folder":        opts.Lookups,
				"database":              opts.Database,
			})
			if err != nil {
				return err
			}
		}

		target := filepath.Join(dir, name)
		if name != pipelineTemplate && !opts.Force {
			if _, err := os.Stat(target); err == nil {
				r.StatusLine(name, "pending", "exists, kept")
				continue
			}
		}
		if err := os.WriteFile(target, content, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		r.StatusLine(name, "success", "")
	}

	r.Println("")
	r.Success("Pipeline configuration created!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Describe your tables and codelists in pipeline.yaml")
	r.Println("  2. Run 'cprdgen validate' to check the configuration")
	r.Println("  3. Run 'cprdgen generate concatenate' and submit the script")
	return nil
}

// Package cli provides the command-line interface for cprdgen.
package cli

import (
	"fmt"
	"os"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/commands"
	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli/config"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var settingsFile string

	rootCmd := &cobra.Command{
		Use:   "cprdgen",
		Short: "cprdgen - CPRD pipeline script generator",
		Long: `cprdgen generates Sun Grid Engine batch scripts that turn a raw CPRD
extract into a SQLite database.

Each step is generated on its own after the previous one has run:
concatenate, convert_dates, apply_lookups, prepare_codelists,
annotate_tables and create_database. Before a script is written its
inputs are checked against the processed data folder, so a step is never
generated against missing or malformed files.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip settings for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			settings, used, err := config.Load(settingsFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), settings.Verbose)
			if used != "" {
				logger.Debug("using settings file", "path", used)
			}

			ctx := config.WithSettings(cmd.Context(), settings)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
CPRD pipeline script generator for Sun Grid Engine
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file (default: ./cprdgen.yaml)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the pipeline configuration")
	rootCmd.PersistentFlags().StringP("output-dir", "o", "", "Directory for generated scripts (default: generated_scripts)")
	rootCmd.PersistentFlags().String("state", "", "Path to state database (default: <output-dir>/.cprdgen/state.db)")
	rootCmd.PersistentFlags().Bool("no-state", false, "Do not record generations in a state database")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("output", "", "Output format (auto|text|markdown|json)")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewGenerateCommand())
	rootCmd.AddCommand(commands.NewStepsCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for cprdgen.

To load completions:

Bash:
  $ source <(cprdgen completion bash)

  # To load completions for each session, execute once:
  $ cprdgen completion bash > /etc/bash_completion.d/cprdgen

Zsh:
  # If shell completion is not already enabled in your environment,
  # enable it once with:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ cprdgen completion zsh > "${fpath[1]}/_cprdgen"

Fish:
  $ cprdgen completion fish | source

  # To load completions for each session, execute once:
  $ cprdgen completion fish > ~/.config/fish/completions/cprdgen.fish

PowerShell:
  PS> cprdgen completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}

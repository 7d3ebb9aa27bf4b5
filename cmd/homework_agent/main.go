// Package main provides the entry point for the homework checker CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// rootOptions holds the persistent flags and the logger shared by subcommands
type rootOptions struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "homework_agent",
		Short: "AI-assisted homework archive checker",
		Long: `homework_agent unpacks a homework archive (.zip, .tar, .rar, .7z), collects the
student's source files and asks an AI model to review them. It can also answer a
reviewer comment.

Configuration is read from --config (JSON, YAML or TOML), then HOMEWORK_* environment
variables. Command-line flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.logger != nil {
				return nil
			}
			config := zap.NewProductionConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if opts.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (values can be overridden by other flags)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print debug logs and run summaries")

	cmd.AddCommand(newGradeCmd(opts), newCommentCmd(opts), newRunCmd(opts))
	return cmd
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

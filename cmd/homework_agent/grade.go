package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/homework-checker/internal/observability"
)

func newGradeCmd(root *rootOptions) *cobra.Command {
	var (
		flags       aiFlags
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "grade [archive...]",
		Short: "Review the source files in one or more homework archives",
		Long: `Unpacks each archive into a temporary directory, collects the files with the
configured extension and prints the AI review as a report.

Without arguments the archive path is read from standard input. With several
archives they are graded concurrently (see --concurrency).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, &flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = concurrency
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			if len(args) == 0 {
				path, err := readArchivePath(cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
				args = []string{path}
			}

			ctx := context.Background()
			printer := observability.NewPrinter(cmd.OutOrStdout(), cfg.Pretty)
			proc, err := newProcessor(ctx, cfg, printer, root.logger)
			if err != nil {
				return err
			}
			defer func() { _ = proc.Close() }()

			if len(args) == 1 {
				state, err := proc.GradeSubmission(ctx, args[0])
				if cfg.Verbose {
					printer.PrintRunSummary(state)
				}
				return err
			}

			results := proc.GradeBatch(ctx, args, cfg.Concurrency)
			printer.PrintBatchSummary(results)

			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d archives failed", failed, len(results))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 1, "Number of archives graded at once")
	return cmd
}

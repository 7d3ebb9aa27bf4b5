package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonathan/homework-checker/internal/observability"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var flags aiFlags

	cmd := &cobra.Command{
		Use:   "run [archive]",
		Short: "Grade an archive, then answer the configured comment",
		Long: `Runs both workflows in sequence: grade_submission on the archive and
answer_comment on the comment from the configuration. A grading failure stops the
run before the comment is answered.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, &flags)
			if err != nil {
				return err
			}

			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				path, err = readArchivePath(cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}

			ctx := context.Background()
			printer := observability.NewPrinter(cmd.OutOrStdout(), cfg.Pretty)
			proc, err := newProcessor(ctx, cfg, printer, root.logger)
			if err != nil {
				return err
			}
			defer func() { _ = proc.Close() }()

			graded, err := proc.GradeSubmission(ctx, path)
			if cfg.Verbose {
				printer.PrintRunSummary(graded)
			}
			if err != nil {
				return err
			}

			answered, err := proc.AnswerComment(ctx, cfg.Comment)
			if cfg.Verbose {
				printer.PrintRunSummary(answered)
			}
			return err
		},
	}

	flags.register(cmd)
	return cmd
}

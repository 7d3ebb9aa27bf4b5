package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/homework-checker/internal/observability"
)

func newCommentCmd(root *rootOptions) *cobra.Command {
	var flags aiFlags

	cmd := &cobra.Command{
		Use:   "comment [text]",
		Short: "Answer a reviewer comment",
		Long:  "Sends the comment to the AI model and prints its reply. Without arguments the comment from the configuration is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, &flags)
			if err != nil {
				return err
			}

			comment := cfg.Comment
			if len(args) > 0 {
				comment = strings.Join(args, " ")
			}

			ctx := context.Background()
			printer := observability.NewPrinter(cmd.OutOrStdout(), cfg.Pretty)
			proc, err := newProcessor(ctx, cfg, printer, root.logger)
			if err != nil {
				return err
			}
			defer func() { _ = proc.Close() }()

			state, err := proc.AnswerComment(ctx, comment)
			if cfg.Verbose {
				printer.PrintRunSummary(state)
			}
			return err
		},
	}

	flags.register(cmd)
	return cmd
}

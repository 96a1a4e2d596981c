package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"dockd/internal/session"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded dock sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := session.Open(cfg)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer store.Close()

			sessions, err := store.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded yet")
				return nil
			}

			colorize := isTerminal(out)
			headers := []string{"SESSION", "STATUS", "FILES", "RECORDS", "UPDATED", "ERROR"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
			rows := make([][]string, 0, len(sessions))
			for _, sess := range sessions {
				rows = append(rows, []string{
					sess.Key,
					renderStatus(sess.Status, colorize),
					strconv.Itoa(sess.FilesProcessed),
					strconv.Itoa(sess.RecordsPublished),
					sess.UpdatedAt.Local().Format(time.DateTime),
					truncate(sess.ErrorMessage, 60),
				})
			}

			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to show (0 for all)")
	return cmd
}

func renderStatus(status session.Status, colorize bool) string {
	if !colorize {
		return string(status)
	}
	switch status {
	case session.StatusArchived:
		return text.FgGreen.Sprint(string(status))
	case session.StatusAborted:
		return text.FgRed.Sprint(string(status))
	default:
		return text.FgYellow.Sprint(string(status))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

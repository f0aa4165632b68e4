package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"genflow/internal/ledger"
	"genflow/internal/output"
)

func newHistoryCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the local ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openLedger(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), c.viper.GetInt("limit"))
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(c.env.stdout, "No runs recorded yet")
				return nil
			}
			c.printer().Markdown(historyTable(runs))
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Number of runs to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openLedger(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("no run with id %s", args[0])
			}
			if err != nil {
				return err
			}
			c.printer().Markdown(runDetail(rec))
			return nil
		},
	})
	return cmd
}

func (c *cli) openLedger(cmd *cobra.Command) (*ledger.Store, error) {
	cfg, _, err := c.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !cfg.LedgerEnabled || cfg.DataDir == "" {
		return nil, errors.New("run ledger is disabled")
	}
	return ledger.Open(cfg.DataDir)
}

func historyTable(runs []ledger.RunRecord) string {
	var b strings.Builder
	b.WriteString("| Run | Created | Type | Status | Polls | Time |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range runs {
		status := r.Status
		if r.TimedOut {
			status += " (budget exceeded)"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %.1fs |\n",
			r.RunID, r.CreatedAt.Local().Format(time.DateTime), cell(r.TaskType), status, r.PollCount, r.ElapsedSeconds)
	}
	return b.String()
}

func runDetail(r ledger.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- **Created:** %s\n", r.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "- **Type:** %s\n", cell(r.TaskType))
	fmt.Fprintf(&b, "- **Status:** %s\n", r.Status)
	if r.RemoteTaskID != "" {
		fmt.Fprintf(&b, "- **Task ID:** %s\n", r.RemoteTaskID)
	}
	fmt.Fprintf(&b, "- **Polls:** %d\n", r.PollCount)
	fmt.Fprintf(&b, "- **Execution Time:** %.1fs\n", r.ElapsedSeconds)
	fmt.Fprintf(&b, "- **Archived:** %t\n", r.Archived)
	if r.TimedOut {
		b.WriteString("- **Budget exceeded:** true\n")
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", r.Error)
	}
	fmt.Fprintf(&b, "\n## Description\n\n%s\n", output.Preview(r.Description, output.PreviewLimit))
	return b.String()
}

// cell keeps table rows intact.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}

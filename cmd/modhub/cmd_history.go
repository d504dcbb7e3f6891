package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modhub/internal/config"
	"modhub/internal/history"
)

var (
	historyLimit int
	historyTrim  int
)

// historyCmd lists recorded diagnostic runs.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded diagnostic runs",
	Long: `Shows summary rows from past runs, newest first. Runs are recorded
when history is enabled in settings, or one-off with "check --history".
History is informational only; it never feeds back into validation.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum rows to show (0 for all)")
	historyCmd.Flags().IntVar(&historyTrim, "trim", 0, "Delete all but the newest N rows first")
}

func runHistory(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings(workspace)
	if err != nil {
		return err
	}

	store, err := history.Open(config.ResolvePath(workspace, settings.History.Path))
	if err != nil {
		return err
	}
	defer store.Close()

	if historyTrim > 0 {
		if err := store.Trim(historyTrim); err != nil {
			return err
		}
	}

	rows, err := store.List(historyLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No runs recorded yet. Enable history in settings or use \"check --history\".")
		return nil
	}

	for _, row := range rows {
		fmt.Printf("%s  %-6s  %d active / %d blocked  %d/%d/%d findings  %dms  %s\n",
			row.StartedAt.Local().Format("2006-01-02 15:04:05"),
			row.Overall, row.Active, row.Blocked,
			row.Severe, row.Medium, row.Light,
			row.DurationMs, row.RunID)
	}
	return nil
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent cycle runs",
	Args:  cobra.NoArgs,
	RunE:  showHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 10, "number of runs to show")
}

func showHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	application, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	repo, err := application.Runs()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if repo == nil {
		fmt.Fprintln(out, "Run history is disabled (storage.path is empty).")
		return nil
	}

	runs, err := repo.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-10s %-10s %8s %8s %8s %8s\n", "RUN", "DAY", "STATUS", "PREV", "GEN", "NEW", "WARN")
	fmt.Fprintln(out, strings.Repeat("-", 96))
	for _, run := range runs {
		fmt.Fprintf(out, "%-36s %-10s %-10s %8d %8d %8d %8d\n",
			run.ID, run.Day.Format("2006-01-02"), run.Status, run.Previous, run.Generated, run.New, run.Warnings)
	}
	return nil
}

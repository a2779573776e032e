package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ResourceCurator/internal/usecase"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one weekly resource cycle",
	Long: `Fetch the published resources, generate this week's list, reconcile
weeks_on_list, validate and publish the result with a dated archive copy.

With --dry-run nothing is published and no digest is sent.`,
	Args: cobra.NoArgs,
	RunE: runCycle,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the weekly cycle on the configured interval",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

func init() {
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runCycle(cmd *cobra.Command, _ []string) error {
	application, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.RunCycle(cmd.Context(), usecase.CycleOptions{DryRun: viper.GetBool("dry-run")})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %s\n\n", report.RunID, report.Status)
	fmt.Fprint(out, report.Summary.Markdown())
	if len(report.LinkWarnings) > 0 {
		fmt.Fprintf(out, "\nLink warnings (%d):\n", len(report.LinkWarnings))
		for _, warning := range report.LinkWarnings {
			fmt.Fprintf(out, "  - %s\n", warning)
		}
	}
	return nil
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	application, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Schedule(cmd.Context(), usecase.CycleOptions{DryRun: viper.GetBool("dry-run")})
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ResourceCurator/internal/usecase"
)

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Recompute issue lanes from priority labels",
	Long: `Rank approved issues by score, independence, size and age, fill the
three active lanes (three issues each) and bench everything else.

Lanes are written to the project board status when a project is configured,
otherwise to lane labels.

Examples:
  curator rebalance --list-only   # print the priority ordering only
  curator rebalance --dry-run     # log intended moves`,
	Args: cobra.NoArgs,
	RunE: runRebalance,
}

var intakeCmd = &cobra.Command{
	Use:   "intake [issue-number]",
	Short: "Bench a newly opened issue and post the review checklist",
	Long: `Initialize a new issue: bench it, add needs-approval unless it is
already implementation ready, and post the intake checklist.

Without an argument the issue number is read from the event payload at
--event (default GITHUB_EVENT_PATH).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIntake,
}

var reviewCmd = &cobra.Command{
	Use:   "review [issue-number]",
	Short: "Post a model review on an issue and apply its label decisions",
	Long: `Ask the review provider to assess an issue, post the report as a
comment and apply the labels it adds or removes (priority:NN, size:*,
independence:*). Large issues are split into sub-issues and the parent is
labeled needs-review.

Without an argument the issue number is read from the event payload at
--event (default GITHUB_EVENT_PATH).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReview,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the GitHub webhook endpoint",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(rebalanceCmd)
	rootCmd.AddCommand(intakeCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(serveCmd)

	rebalanceCmd.Flags().Bool("list-only", false, "print the priority ordering without changing anything")
	_ = viper.BindPFlag("list-only", rebalanceCmd.Flags().Lookup("list-only"))
	_ = viper.BindEnv("list-only", "CURATOR_LIST_ONLY", "LIST_ONLY")

	intakeCmd.Flags().String("event", "", "path to the GitHub event payload")
	_ = viper.BindPFlag("event", intakeCmd.Flags().Lookup("event"))
	_ = viper.BindEnv("event", "GITHUB_EVENT_PATH")

	reviewCmd.Flags().String("event", "", "path to the GitHub event payload")
}

func runRebalance(cmd *cobra.Command, _ []string) error {
	application, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	rebalancer, err := application.Rebalancer()
	if err != nil {
		return err
	}

	_, err = rebalancer.Run(cmd.Context(), usecase.RebalanceOptions{
		ListOnly: viper.GetBool("list-only"),
		DryRun:   viper.GetBool("dry-run"),
	})
	return err
}

func runIntake(cmd *cobra.Command, args []string) error {
	number, err := intakeNumber(args, viper.GetString("event"))
	if err != nil {
		return err
	}

	application, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	intake, err := application.Intake()
	if err != nil {
		return err
	}
	if err := intake.Run(cmd.Context(), number); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "#%d initialized with lane 'on the bench' and review checklist.\n", number)
	return nil
}

func runReview(cmd *cobra.Command, args []string) error {
	eventPath, _ := cmd.Flags().GetString("event")
	if eventPath == "" {
		eventPath = viper.GetString("event")
	}
	number, err := intakeNumber(args, eventPath)
	if err != nil {
		return err
	}

	application, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	review, err := application.Review()
	if err != nil {
		return err
	}
	report, err := review.Run(cmd.Context(), number)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if report.Skipped {
		fmt.Fprintf(out, "#%d review skipped (no provider configured).\n", number)
		return nil
	}
	fmt.Fprintf(out, "#%d reviewed: labels %v", number, report.Labels)
	if len(report.SubIssues) > 0 {
		fmt.Fprintf(out, ", split into %d sub-issues", len(report.SubIssues))
	}
	fmt.Fprintln(out, ".")
	return nil
}

func intakeNumber(args []string, eventPath string) (int, error) {
	if len(args) == 1 {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, fmt.Errorf("invalid issue number %q", args[0])
		}
		return number, nil
	}
	if eventPath == "" {
		return 0, fmt.Errorf("issue number required: pass it as an argument or set --event")
	}

	raw, err := os.ReadFile(eventPath)
	if err != nil {
		return 0, fmt.Errorf("read event: %w", err)
	}
	var event struct {
		Issue struct {
			Number int `json:"number"`
		} `json:"issue"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return 0, fmt.Errorf("parse event: %w", err)
	}
	if event.Issue.Number == 0 {
		return 0, fmt.Errorf("issue number not found in event payload")
	}
	return event.Issue.Number, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	application, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Serve(cmd.Context(), usecase.RebalanceOptions{DryRun: viper.GetBool("dry-run")})
}

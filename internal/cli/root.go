package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ResourceCurator/internal/app"
	"ResourceCurator/internal/config"
	"ResourceCurator/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "Curator - weekly AI practitioner resources and issue lanes",
	Long: `Curator maintains the published list of AI practitioner resources and the
work lanes of the repository's issues.

The weekly cycle generates a fresh resource list with an LLM, carries forward
how many weeks each resource has been listed, validates the result and
publishes it to a Gist. Issue lanes (at bat, on deck, in the hole, on the
bench) are recomputed from priority labels whenever an issue closes.

Example:
  curator cycle --dry-run
  curator rebalance --list-only`,
	SilenceUsage: true,
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default from CURATOR_CONFIG)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("dry-run", false, "compute and log changes without writing them")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("dry-run", rootCmd.PersistentFlags().Lookup("dry-run"))
	_ = viper.BindEnv("dry-run", "CURATOR_DRY_RUN", "DRY_RUN")
}

func initConfig() {
	viper.SetEnvPrefix("CURATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadApp reads configuration and builds the application for a command.
func loadApp(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}

	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	return app.New(cfg, logger, cmd.OutOrStdout()), nil
}

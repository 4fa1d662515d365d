package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lang_gateway/internal/config"
	"lang_gateway/internal/httpapi"
	"lang_gateway/internal/utils"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "keyadmin",
	Short: "Administer API keys and metered billing of the language gateway",
	Long: `keyadmin provisions and inspects API keys and runs billing reconciliation.

Examples:
  keyadmin trial --email=user@example.com
  keyadmin increase-limit --email=user@example.com --limit=100000
  keyadmin show <key>
  keyadmin reconcile --all`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogging(utils.ParseLogLevel(logLevel), "text")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "optional .env or yaml config file; environment variables win")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

// openDependencies connects to the stores the gateway uses
func openDependencies(ctx context.Context) (*httpapi.Dependencies, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return httpapi.NewDependencies(ctx, cfg)
}

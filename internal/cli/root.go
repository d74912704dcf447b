// Package cli implements the tzctl CLI commands.
package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Import state backends to register them via init()
	_ "github.com/terrazzo-io/tzctl/pkg/state/backend/azurerm"
	_ "github.com/terrazzo-io/tzctl/pkg/state/backend/gcs"
	_ "github.com/terrazzo-io/tzctl/pkg/state/backend/local"
	_ "github.com/terrazzo-io/tzctl/pkg/state/backend/s3"

	// Import provisioning adapters to register them via init()
	_ "github.com/terrazzo-io/tzctl/pkg/provisioner/dockerlocal"
	_ "github.com/terrazzo-io/tzctl/pkg/provisioner/opentofu"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tzctl",
	Short: "Deploy projects through declarative deploy templates",
	Long: `tzctl plans, applies and destroys project environments described by a
deploy template. Environments are serialized through per-environment locks,
prod deploys are gated on fresh plans, and every action leaves a run record
in the project's state backend.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tzctl/config.yaml)")
	rootCmd.PersistentFlags().String("project", ".", "Project directory")
	rootCmd.PersistentFlags().String("backend", "", "State backend type (local, s3, gcs, azurerm)")
	rootCmd.PersistentFlags().StringArray("backend-config", nil, "Backend configuration (key=value)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")

	// Bind to viper
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	viper.SetEnvPrefix("TZCTL")
	viper.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newDestroyCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newForceUnlockCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newTemplateCmd())
	rootCmd.AddCommand(newWorkspaceCmd())
	rootCmd.AddCommand(newReleaseCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.tzctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}

// newLogger builds the CLI logger honoring --log-level.
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

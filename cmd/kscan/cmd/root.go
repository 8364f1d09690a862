// Package cmd implements the kscan CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kscanio/kscan/internal/config"
	"github.com/kscanio/kscan/internal/observability"
	"github.com/kscanio/kscan/internal/version"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd is the base command when kscan is called without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:     "kscan",
	Short:   "Concurrent static-analysis pipeline over configurable software",
	Version: version.Short(),
	Long: `kscan extracts variability, build, and code models from a
source tree through a composable, concurrent stage pipeline, and
writes the terminal stage's results to a single output artifact.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")

	mustBindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/kscan")
	}

	viper.SetEnvPrefix("KSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

func initLogging() error {
	logger := observability.NewLogger(config.LoggingConfig{
		Level:     strings.ToLower(viper.GetString("logging.level")),
		Format:    viper.GetString("logging.format"),
		AddSource: viper.GetBool("logging.add_source"),
	})
	slog.SetDefault(logger)
	return nil
}

// mustBindPFlag binds a viper key to a cobra flag; a bind can only
// fail when the flag itself is nil, which would be a programming
// error at startup, not a runtime condition to recover from.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}

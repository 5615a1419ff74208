// Package cmd implements the commercestackd CLI commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/commercestack/internal/config"
	"github.com/jmylchreest/commercestack/internal/observability"
	"github.com/jmylchreest/commercestack/internal/version"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:     "commercestackd",
	Short:   "Video-to-commerce processing pipeline daemon",
	Version: version.Short(),
	Long: `commercestackd runs the video-to-commerce processing pipeline: it
admits jobs that each transform a source video into a set of
commerce-ready product images, runs them through a configurable stack
of processors, and serves an admission/status HTTP API.`,
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

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/commercestack, $HOME/.commercestack)")
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
		viper.AddConfigPath("/etc/commercestack")
		viper.AddConfigPath("$HOME/.commercestack")
	}

	viper.SetEnvPrefix("COMMERCESTACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// initLogging builds the process-default logger from logging.* config
// via observability.NewLogger, which adds what a hand-rolled
// slog.New(slog.NewJSONHandler(...)) wouldn't: password/secret/token/
// apikey field redaction and sensitive-query-parameter scrubbing in
// string values (a provider error wrapping a failed request URL, for
// instance), plus a GlobalLogLevel that can be changed at runtime
// without restarting the daemon.
func initLogging() error {
	var cfg config.LoggingConfig
	if err := viper.UnmarshalKey("logging", &cfg); err != nil {
		return fmt.Errorf("unmarshaling logging config: %w", err)
	}
	cfg.Level = strings.ToLower(cfg.Level)
	cfg.Format = strings.ToLower(cfg.Format)

	observability.SetDefault(observability.NewLoggerWithWriter(cfg, os.Stderr))
	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics on failure.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}

// Package cmd implements the commercestackctl CLI commands.
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

// Exit codes for the host-integration CLI surface.
const (
	ExitSuccess           = 0
	ExitValidationFailure = 1
	ExitProcessorFailure  = 2
	ExitCancellation      = 3
	ExitInternalError     = 4
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// exitCode is set by a subcommand's RunE before returning nil, letting
// it report a specific Exit* outcome without cobra printing usage
// text for what is not a flag-parsing error.
var exitCode = ExitSuccess

var rootCmd = &cobra.Command{
	Use:     "commercestackctl",
	Short:   "One-shot host integration for the video-to-commerce pipeline",
	Version: version.Short(),
	Long: `commercestackctl admits a single job against a running
commercestackd database, runs it to completion in this process, and
exits with a code describing the outcome so a calling host does not
need to poll the admin API for a one-off run.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initLogging()
	},
}

// Run executes the root command and returns the process exit code.
// Errors from a subcommand's RunE are printed to stderr here and
// reported as ExitInternalError; otherwise the subcommand translates a
// job's terminal outcome into one of the Exit* codes by setting
// exitCode before returning, and that value is returned.
func Run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitInternalError
	}
	return exitCode
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/commercestack, $HOME/.commercestack)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")

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

	_ = viper.ReadInConfig()
}

// initLogging builds the process-default logger from logging.* config
// via observability.NewLogger, the same construction commercestackd
// uses, so a job run through commercestackctl gets the same
// credential/secret field redaction in its logs that the daemon does.
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

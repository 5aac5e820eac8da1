// Package cmd wires the CLI: serve runs the HTTP API, process runs emails
// from the command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Harshalzarikar/Beaver-agent/internal/otel"
)

// tracer is the package-level tracer for CLI commands.
var tracer = otel.Tracer("github.com/Harshalzarikar/Beaver-agent/internal/cmd")

var (
	// otelShutdown is set in PersistentPreRunE and called from Execute.
	otelShutdown func(context.Context) error

	// Version info injected via ldflags at build time.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool
)

// resolvedVersion returns Version unless it is "dev" and Go build info
// carries a real module version (e.g. from go install ...@vX.Y.Z).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

var rootCmd = &cobra.Command{
	Use:   "beaver",
	Short: "Privacy-first email triage agent",
	Long: `Beaver processes inbound email through a staged pipeline:
PII is vaulted behind reversible placeholders before any model sees the text,
intent is classified with a cheap local tier first, leads are researched and
drafted with a bounded verify/redraft loop, and the original data is restored
only in the final delivered reply.`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		otelEnabled := otelFlag || verbose || os.Getenv("BEAVER_OTEL_ENABLED") == "true"
		shutdown, err := otel.Setup("beaver-agent", resolvedVersion(), otelEnabled)
		if err != nil {
			return fmt.Errorf("initializing OpenTelemetry: %w", err)
		}
		otelShutdown = shutdown
		return nil
	},
}

func setupLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Logs go to stderr so stdout stays clean for piping.
	if logFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Logger()
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./beaver.config.yaml or ~/.beaver/beaver.config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&otelFlag, "otel", false, "enable OpenTelemetry (traces and metrics to stdout)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("otel", rootCmd.PersistentFlags().Lookup("otel"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.beaver")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("beaver.config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BEAVER")
	viper.AutomaticEnv()

	// File may not exist yet.
	_ = viper.ReadInConfig()
}

// Execute runs the root command and flushes OTel on exit.
func Execute() error {
	err := rootCmd.Execute()
	if otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(ctx)
	}
	return err
}

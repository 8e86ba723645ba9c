// Package cmd implements the hawkeye CLI.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jxs/hawkeye/internal/config"
	"github.com/jxs/hawkeye/internal/observability"
	"github.com/jxs/hawkeye/internal/supervisor"
	"github.com/jxs/hawkeye/internal/version"
	"github.com/spf13/cobra"
)

var (
	logLevel             string
	logFormat            string
	enableRequestLogging bool
)

// rootCmd is the sole command: hawkeye takes one positional argument, the
// path to the configuration JSON document (spec.md §6's invocation rule —
// there are no subcommands to dispatch to).
var rootCmd = &cobra.Command{
	Use:     "hawkeye <config-path>",
	Short:   "Slate-detection watcher for a single RTP/MPEG-TS stream",
	Version: version.Short(),
	Args:    cobra.ExactArgs(1),
	RunE:    runWatch,
}

// Execute runs the root command, returning the process exit code. A panic
// on this goroutine is recovered here and reported as ExitPanic, per
// spec.md §6's exit-code table; panics on goroutines the supervisor starts
// are not recovered.
func Execute() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "hawkeye: panic: %v\n", r)
			code = supervisor.ExitPanic
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		return supervisor.ExitConfigurationError
	}
	return exitCode
}

// exitCode carries the supervisor's result out of RunE, since cobra's
// Execute only reports success/failure, not a specific code.
var exitCode int

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to RUST_LOG or info")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().BoolVar(&enableRequestLogging, "enable-request-logging", false, "log every observability-server request, not just errors")
}

func runWatch(cmd *cobra.Command, args []string) error {
	observability.SetRequestLogging(enableRequestLogging)

	loggingCfg := buildLoggingConfig()
	logger := observability.NewLogger(loggingCfg)

	env := os.Getenv("HAWKEYE_ENV")
	if env == "" {
		env = "local"
	}
	logger = logger.With(slog.String("env", env))

	closeSentry := wireSentry(env)
	defer closeSentry()

	cfg, err := config.Load(args[0])
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		captureSentry(err)
		exitCode = supervisor.ExitConfigurationError
		return nil
	}

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		logger.Error("failed to start watcher", slog.String("error", err.Error()))
		captureSentry(err)
		exitCode = supervisor.ExitConfigurationError
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting hawkeye watcher", slog.String("version", version.Short()))
	exitCode = sup.Run(ctx)
	return nil
}

func buildLoggingConfig() config.LoggingConfig {
	cfg := config.DefaultLoggingConfig()
	cfg.Format = logFormat

	level := logLevel
	if level == "" {
		level = os.Getenv("RUST_LOG")
	}
	if level != "" {
		cfg.Level = level
	}
	return cfg
}

// wireSentry starts the optional error-reporting sink when
// HAWKEYE_SENTRY_ENABLED is "true" and HAWKEYE_SENTRY_DSN is non-empty,
// returning a flush func safe to call even when Sentry was never initialized.
func wireSentry(env string) func() {
	if os.Getenv("HAWKEYE_SENTRY_ENABLED") != "true" {
		return func() {}
	}

	dsn := os.Getenv("HAWKEYE_SENTRY_DSN")
	if dsn == "" {
		return func() {}
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     version.Version,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "sentry init failed: %v\n", err)
		return func() {}
	}

	return func() { sentry.Flush(2 * time.Second) }
}

func captureSentry(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

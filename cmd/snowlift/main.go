package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/internal/app"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	"github.com/ajitpratap0/snowlift/pkg/metrics"
)

var version = "0.1.0"

// exitError carries a process exit code for a failure that has already been
// logged.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// globals are the persistent flags shared by every command
type globals struct {
	configFile string
	envFile    string
	logLevel   string
}

// load reads the .env file and the configuration, then builds the logger
func (g *globals) load() (*config.Config, *zap.Logger, error) {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to load env file").
				WithDetail("path", g.envFile)
		}
	} else {
		// .env is optional
		_ = godotenv.Load()
	}

	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(app.LoggerConfig(cfg.Observability, g.logLevel))
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeInvalidConfigFormat, "invalid logging configuration")
	}
	return cfg, log, nil
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "snowlift",
		Short: "snowlift - PostgreSQL to Snowflake migration",
		Long: `snowlift copies the result of one query from an operational PostgreSQL
database into a Snowflake table, then runs the post-load transformation.

Configuration comes from the environment (a .env file is honoured),
optionally layered over a YAML file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Path to a YAML configuration file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", "Path to an env file (default .env when present)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCommand(g),
		newBackupCommand(g),
		newScheduleCommand(g),
		newConfigCommand(g),
		newInspectCommand(),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snowlift v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// writeMetrics exports the run metrics when a textfile path is configured
func writeMetrics(rec *metrics.Recorder, cfg *config.Config, log *zap.Logger) {
	if err := rec.WriteTextfile(cfg.Observability.MetricsFile); err != nil {
		log.Warn("failed to write metrics file",
			zap.String("path", cfg.Observability.MetricsFile), zap.Error(err))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yourmoment/yourmoment/pkg/version"
)

// Exit codes: 0 success, 1 runtime failure, 2 usage error.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// usageError marks errors caused by bad invocation rather than runtime
// failure.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

var envFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           version.AppName,
		Short:         "myMoment comment bot platform",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			loadEnvFile()
			initLogging()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"path to a .env file loaded before reading configuration")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.AddCommand(
		newServerCmd(),
		newWorkerCmd(),
		newSchedulerCmd(),
		newDBCmd(),
		newUserCmd(),
		newQueueCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		var uerr *usageError
		if errors.As(err, &uerr) || isCobraUsageError(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return exitUsage
		}
		slog.Error("Command failed", "error", err)
		return exitError
	}
	return exitOK
}

// isCobraUsageError recognizes cobra's own invocation errors, which are plain
// fmt errors without a marker type.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "accepts ") ||
		strings.HasPrefix(msg, "required flag")
}

func loadEnvFile() {
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Could not load env file", "path", envFile, "error", err)
		}
		return
	}
	slog.Info("Loaded environment", "path", envFile)
}

func initLogging() {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local".
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/esizzle/workman/version"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "workman",
	Short: "Per-document PDF manipulation worker",
	Long: `Workman is a short-lived worker invoked per document. Given a source PDF
and the declarative edits recorded against it, it applies redactions (with
rasterization), page rotations, page deletions and document splits, writes
the results to object storage, and updates the document metadata so the
rest of the platform observes a consistent transition.

Operations:
  process_manipulations  apply all pending edits for one document
  split_document         split at supplied bookmarks only
  health_check           probe database, object store and PDF engine`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.workman/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn, error",
	)

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger. Logs go to stderr; stdout is
// reserved for the invocation response.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

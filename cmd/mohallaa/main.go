package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohallaa/mohallaa/internal/config"
	apperrors "github.com/mohallaa/mohallaa/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "mohallaa",
		Short: "Neighbourhood community server and tools",
		Long: `Mohallaa serves the community data API and offers tools to work
with it from the command line.

  • Row storage with a realtime change feed
  • Cross-entity search
  • Optimistic votes and bookmarks against a running server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (default ./"+config.ConfigFileName+" when present)")

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		searchCmd(),
		postCmd(),
		tokenCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var ae *apperrors.Error
		if errors.As(err, &ae) {
			fmt.Fprintln(os.Stderr, ae.Format())
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

// loadConfig reads the --config file, ./mohallaa.yaml, or the environment
// alone, in that order.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" && config.Exists(".") {
		path = config.ConfigFileName
	}
	cfg, err := config.LoadOrEnv(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

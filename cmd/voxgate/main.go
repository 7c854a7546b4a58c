// Command voxgate runs the audio analysis and decision pipeline.
//
// Usage:
//
//	voxgate [--config path] <command> [args]
//
// Commands:
//
//	serve      - initialize models and expose the monitoring endpoints
//	enroll     - register audio samples for an identity
//	recognize  - identify the speaker of a clip against the gallery
//	verify     - check a clip against one identity
//	affect     - classify the affect of one or more clips
//	status     - show enrollment progress of an identity
//	identities - list enrolled identities
//	remove     - delete one enrolled sample
//	forget     - delete an identity with all of its samples
//	audit      - list recorded decisions
//
// One-shot commands share state with a running server only through a
// persistent store (badger or pinecone) and the sqlite audit sink.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/skypro1111/voxgate/internal/config"
)

const (
	serviceName    = "voxgate"
	serviceVersion = "1.0.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

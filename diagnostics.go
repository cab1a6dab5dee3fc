package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	slogmulti "github.com/samber/slog-multi"
)

// linkError is a fatal diagnostic per spec.md §7's error taxonomy. The
// linker never retries or partially recovers: every linkError terminates
// the process with exit code 1.
type linkError struct {
	msg string
}

func (e *linkError) Error() string { return e.msg }

func fatalf(format string, args ...any) error {
	return &linkError{msg: fmt.Sprintf(format, args...)}
}

var logger *slog.Logger

// initLogging wires a plain-text stderr handler for normal diagnostics and,
// when verbose is set, a second JSON handler carrying debug detail. The
// colorized "rvld64: error/warning" lines are printed by Fatal and Warn
// themselves, not by these handlers.
// Fanning both handlers through one logger uses slog-multi the way
// Manu343726-cucaracha composes its own slog handlers.
func initLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	human := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	handlers := []slog.Handler{human}
	if verbose {
		handlers = append(handlers, slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	logger = slog.New(slogmulti.Fanout(handlers...))
}

// Fatal prints a colorized diagnostic to stderr and exits with status 1.
// It is the single exit point for every error in spec.md §7's taxonomy.
func Fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if logger != nil {
		logger.Error(msg)
	}
	fmt.Fprintln(os.Stderr, color.New(color.FgRed, color.Bold).Sprint("rvld64: error: ")+msg)
	os.Exit(1)
}

// Warn reports a non-fatal diagnostic (e.g. multiple common symbol
// definitions) and lets the link continue.
func Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if logger != nil {
		logger.Warn(msg)
	}
	fmt.Fprintln(os.Stderr, color.New(color.FgYellow).Sprint("rvld64: warning: ")+msg)
}

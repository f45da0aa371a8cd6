package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/histcache/internal/config"
	"github.com/roach88/histcache/internal/policy"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
	Policy   string // policy file; empty means the built-in policy
	LogLevel string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the histcache CLI.
// cfg supplies flag defaults loaded from the environment.
func NewRootCommand(cfg config.Config) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "histcache",
		Short: "histcache - report history cache",
		Long: `A client-side cache for append-only report histories.

Keeps one newest-first history per report in sync with an authoritative
log, fetching only what is missing and hiding internal action categories
from callers.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", defaultString(cfg.Format, "text"), "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", defaultString(cfg.DBPath, "histcache.db"), "path to the SQLite action log")
	cmd.PersistentFlags().StringVar(&opts.Policy, "policy", cfg.PolicyPath, "exclusion policy file (.cue or .yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", defaultString(cfg.LogLevel, "warn"), "log level (debug|info|warn|error)")

	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// logger builds the structured logger for a command. --verbose forces debug.
func (o *RootOptions) logger(w io.Writer) (*slog.Logger, error) {
	level := slog.LevelDebug
	if !o.Verbose {
		var err error
		level, err = config.Config{LogLevel: o.LogLevel}.Level()
		if err != nil {
			return nil, err
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// filter loads the configured exclusion policy.
func (o *RootOptions) filter() (*policy.Filter, error) {
	p, err := config.Config{PolicyPath: o.Policy}.Policy()
	if err != nil {
		return nil, err
	}
	return policy.NewFilter(p), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// The command's own context is the parent when set (tests).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

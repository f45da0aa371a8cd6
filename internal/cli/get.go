package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/histcache/internal/cache"
	"github.com/roach88/histcache/internal/engine"
	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/store"
)

var _ engine.Source = (*store.Store)(nil)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	All bool // include hidden entries, marked
}

// GetResult is the outcome of a get.
type GetResult struct {
	ReportID ir.ReportID `json:"report_id"`
	Strategy string      `json:"strategy"`
	Entries  []EntryView `json:"entries"`
	Hidden   int         `json:"hidden"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <report-id>",
		Short: "Fetch a report history through the cache",
		Long: `Fetch a report's history through the sync engine and print it
newest-first with the exclusion policy applied.

Examples:
  histcache get 42
  histcache get 42 --all
  histcache get 42 --policy ./policy.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "include hidden entries")

	return cmd
}

func runGet(opts *GetOptions, reportArg string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	report, err := parseReportID(reportArg)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidArgument, "invalid report ID", err)
	}

	logger, err := opts.logger(cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidArgument, "invalid log level", err)
	}
	filter, err := opts.filter()
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidArgument, "failed to load policy", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	st, err := store.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to open database", err)
	}
	defer st.Close()

	var requestID string
	source := engine.SourceFunc(func(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error) {
		requestID = req.RequestID
		return st.Fetch(ctx, req)
	})

	cs := cache.New()
	eng := engine.New(cs, source, filter, engine.WithLogger(logger))

	res, err := eng.GetResult(ctx, report)
	if err != nil {
		return out.Fail(ExitCommandError, errorCode(err), fmt.Sprintf("failed to get report %d", report), err)
	}

	result := GetResult{
		ReportID: report,
		Strategy: string(res.Strategy),
		Entries:  entryViews(res.History, nil),
		Hidden:   cs.Len(report) - len(res.History),
	}
	if opts.All {
		all, _ := cs.Read(report)
		result.Entries = entryViews(all, filter.Excluded)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result, RequestID: requestID})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Report %d: %d visible, %d hidden\n", report, len(res.History), result.Hidden)
	out.VerboseLog("request %s, strategy %s", requestID, res.Strategy)
	for _, v := range result.Entries {
		formatEntry(w, v)
	}
	return nil
}

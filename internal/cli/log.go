package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
}

// ReportSummary describes one report's stored log.
type ReportSummary struct {
	ReportID     ir.ReportID      `json:"report_id"`
	Count        int              `json:"count"`
	OldestSeq    int64            `json:"oldest_seq"`
	NewestSeq    int64            `json:"newest_seq"`
	Missing      []store.SeqRange `json:"missing"`
	MissingCount int64            `json:"missing_count"`
	Contiguous   bool             `json:"contiguous"`
}

// LogResult holds the stored entries of one report, newest-first.
type LogResult struct {
	Summary ReportSummary `json:"summary"`
	Entries []EntryView   `json:"entries"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log [report-id]",
		Short: "Inspect the authoritative action log",
		Long: `Inspect the stored action log directly, bypassing the cache.

Without a report ID, lists every report with its sequence bounds and any
holes. With a report ID, prints every stored action newest-first; actions
the exclusion policy hides are marked with "h".

Examples:
  histcache log
  histcache log 42
  histcache log 42 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runLogSummary(opts, cmd)
			}
			return runLogReport(opts, args[0], cmd)
		},
	}

	return cmd
}

func summarize(state store.ReportState) ReportSummary {
	return ReportSummary{
		ReportID:     state.ReportID,
		Count:        state.Count,
		OldestSeq:    state.OldestSeq,
		NewestSeq:    state.NewestSeq,
		Missing:      state.Missing,
		MissingCount: state.MissingCount,
		Contiguous:   state.Contiguous(),
	}
}

func runLogSummary(opts *LogOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	st, err := store.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to open database", err)
	}
	defer st.Close()

	reports, err := st.Reports(ctx)
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to list reports", err)
	}

	summaries := make([]ReportSummary, 0, len(reports))
	for _, report := range reports {
		state, err := st.GetReportState(ctx, report)
		if err != nil {
			return out.Fail(ExitCommandError, CodeStore, fmt.Sprintf("failed to read report %d", report), err)
		}
		summaries = append(summaries, summarize(state))
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: summaries})
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No reports found in database.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "Report %d: %d action(s), seq %d..%d", s.ReportID, s.Count, s.OldestSeq, s.NewestSeq)
		if !s.Contiguous {
			fmt.Fprintf(w, ", missing %v", s.Missing)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func runLogReport(opts *LogOptions, reportArg string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	report, err := parseReportID(reportArg)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidArgument, "invalid report ID", err)
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

	state, err := st.GetReportState(ctx, report)
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, fmt.Sprintf("failed to read report %d", report), err)
	}
	entries, err := st.ReadHistory(ctx, report, 0)
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, fmt.Sprintf("failed to read report %d", report), err)
	}

	result := LogResult{
		Summary: summarize(state),
		Entries: entryViews(ir.NewestFirst(entries), filter.Excluded),
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}

	w := cmd.OutOrStdout()
	if state.Count == 0 {
		fmt.Fprintf(w, "No actions found for report: %d\n", report)
		return nil
	}
	fmt.Fprintf(w, "Report %d: %d action(s)\n", report, state.Count)
	for _, v := range result.Entries {
		formatEntry(w, v)
	}
	if !state.Contiguous() {
		fmt.Fprintf(w, "Missing: %v\n", state.Missing)
	}
	return nil
}

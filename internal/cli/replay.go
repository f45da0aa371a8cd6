package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/roach88/histcache/internal/cache"
	"github.com/roach88/histcache/internal/engine"
	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/policy"
	"github.com/roach88/histcache/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Report int64   // optional - specific report only
	Drop   []int64 // sequence numbers whose push is lost
}

// ReplayReportResult holds the replay result for a single report.
type ReplayReportResult struct {
	ReportID    ir.ReportID `json:"report_id"`
	Actions     int         `json:"actions"`
	Pushed      int         `json:"pushed"`
	Dropped     int         `json:"dropped"`
	Bootstrap   int         `json:"bootstrap"`
	FastPath    int         `json:"fast_path"`
	Incremental int         `json:"incremental"`
	Idempotent  int         `json:"idempotent"`
	Reconciled  int         `json:"reconciled"` // pushes answered with a fetch
	Fetches     int         `json:"fetches"`
	Converged   bool        `json:"converged"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Reports      []ReplayReportResult `json:"reports"`
	TotalReports int                  `json:"total_reports"`
	AllConverged bool                 `json:"all_converged"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the action log through the cache and verify convergence",
		Long: `Replay each report's stored actions as live pushes through a fresh cache.

Actions are pushed oldest-first. While an action is pushed, the source only
exposes the log up to that action, as the remote would have at the time.
Pushes listed in --drop are lost, so the next push finds a gap and
reconciles with an incremental fetch. After the last push the cache is
refreshed once more and compared with the full log.

Exit codes:
  0 - Every replayed cache converged with the log
  1 - Convergence check failed
  2 - Command error (database not found, etc.)

Examples:
  histcache replay
  histcache replay --report 42 --drop 3,4
  histcache replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Report, "report", 0, "replay specific report only")
	cmd.Flags().Int64SliceVar(&opts.Drop, "drop", nil, "sequence numbers whose push is lost")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

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
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var only []ir.ReportID
	if opts.Report != 0 {
		only = []ir.ReportID{ir.ReportID(opts.Report)}
	}

	result := ReplayResult{
		Reports:      []ReplayReportResult{},
		AllConverged: true,
	}

	err = st.Replay(ctx, func(report ir.ReportID, entries []ir.Entry) error {
		rr, err := replayReport(ctx, st, report, entries, opts.Drop, filter, logger)
		if err != nil {
			return fmt.Errorf("replay report %d: %w", report, err)
		}
		result.Reports = append(result.Reports, rr)
		if !rr.Converged {
			result.AllConverged = false
		}
		return nil
	}, only...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay reports", err)
	}
	result.TotalReports = len(result.Reports)

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// logView serves the stored log as it stood when the action at upTo was
// appended.
type logView struct {
	st      *store.Store
	upTo    int64
	limited bool
}

func (v *logView) Fetch(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error) {
	entries, err := v.st.Fetch(ctx, req)
	if err != nil || !v.limited {
		return entries, err
	}
	return slices.DeleteFunc(entries, func(e ir.Entry) bool { return e.Seq > v.upTo }), nil
}

// replayReport pushes one report's log through a fresh engine.
func replayReport(ctx context.Context, st *store.Store, report ir.ReportID, entries []ir.Entry, drop []int64, filter *policy.Filter, logger *slog.Logger) (ReplayReportResult, error) {
	rr := ReplayReportResult{ReportID: report, Actions: len(entries)}

	reg := prometheus.NewRegistry()
	view := &logView{st: st}
	cs := cache.New()
	eng := engine.New(cs, view, filter,
		engine.WithLogger(logger.With("report_id", report)),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)

	view.limited = true
	for _, e := range entries {
		view.upTo = e.Seq
		if slices.Contains(drop, e.Seq) {
			rr.Dropped++
			continue
		}
		if _, err := eng.Set(ctx, report, e); err != nil {
			return rr, err
		}
		rr.Pushed++
	}

	// catch up on anything the last dropped pushes left behind
	view.limited = false
	if _, err := eng.Get(ctx, report); err != nil {
		return rr, err
	}

	cached, _ := cs.Read(report)
	converged, err := sameHistory(cached, ir.NewestFirst(entries))
	if err != nil {
		return rr, err
	}
	rr.Converged = converged

	if err := countStrategies(reg, &rr); err != nil {
		return rr, err
	}
	return rr, nil
}

// sameHistory compares two newest-first histories by entry digest.
func sameHistory(a, b []ir.Entry) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		da, err := ir.EntryDigest(a[i])
		if err != nil {
			return false, err
		}
		db, err := ir.EntryDigest(b[i])
		if err != nil {
			return false, err
		}
		if da != db {
			return false, nil
		}
	}
	return true, nil
}

// countStrategies reads the replay counters back out of the registry.
// Only pushes (operation "set") count towards the strategy totals.
func countStrategies(reg *prometheus.Registry, rr *ReplayReportResult) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	for _, mf := range families {
		switch mf.GetName() {
		case "histcache_engine_strategies_total":
			for _, m := range mf.GetMetric() {
				if labelValue(m, "operation") != "set" {
					continue
				}
				n := int(m.GetCounter().GetValue())
				strategy := engine.Strategy(labelValue(m, "strategy"))
				if strategy.Fetched() {
					rr.Reconciled += n
				}
				switch strategy {
				case engine.StrategyBootstrap:
					rr.Bootstrap += n
				case engine.StrategyFastPath:
					rr.FastPath += n
				case engine.StrategyIncremental:
					rr.Incremental += n
				case engine.StrategyIdempotent:
					rr.Idempotent += n
				}
			}
		case "histcache_engine_fetches_total":
			for _, m := range mf.GetMetric() {
				rr.Fetches += int(m.GetCounter().GetValue())
			}
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllConverged {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeNotConverged,
			Message: "replayed cache did not converge with the log",
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !result.AllConverged {
		return NewExitError(ExitFailure, "replayed cache did not converge with the log")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.TotalReports == 0 {
		fmt.Fprintln(w, "No reports found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d report(s)\n", result.TotalReports)
	fmt.Fprintln(w)

	for _, r := range result.Reports {
		status := "✓"
		if !r.Converged {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Report: %d\n", status, r.ReportID)
		fmt.Fprintf(w, "  Pushes: %d delivered, %d dropped\n", r.Pushed, r.Dropped)
		fmt.Fprintf(w, "  Fast path: %d, reconciled: %d\n", r.FastPath, r.Reconciled)

		if verbose {
			fmt.Fprintf(w, "  Bootstrap: %d\n", r.Bootstrap)
			fmt.Fprintf(w, "  Incremental: %d\n", r.Incremental)
			fmt.Fprintf(w, "  Idempotent: %d\n", r.Idempotent)
			fmt.Fprintf(w, "  Fetches: %d\n", r.Fetches)
		}

		if !r.Converged {
			fmt.Fprintln(w, "  Warning: cache differs from the stored log!")
		}
		fmt.Fprintln(w)
	}

	if result.AllConverged {
		fmt.Fprintln(w, "✓ All reports converged")
		return nil
	}

	fmt.Fprintln(w, "✗ Convergence check failed")
	return NewExitError(ExitFailure, "replayed cache did not converge with the log")
}

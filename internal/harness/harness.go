package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/histcache/internal/cache"
	"github.com/roach88/histcache/internal/engine"
	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/policy"
	"github.com/roach88/histcache/internal/store"
	"github.com/roach88/histcache/internal/testutil"
)

// errRemoteUnavailable is returned by the remote while a remote_fail step
// is in effect.
var errRemoteUnavailable = errors.New("remote unavailable")

// Harness is the scenario execution engine.
// It runs scenarios with deterministic request IDs against a real engine.
type Harness struct {
	log    *store.Store
	source *recordingSource
	cache  *cache.Store
	engine *engine.Engine
	logger *slog.Logger
	report int64
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory log, cache and engine
// 2. Seed the remote log and the cache
// 3. Execute steps, checking expect clauses
// 4. Snapshot the cache and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	pol := policy.Default()
	if scenario.Policy != nil {
		pol = *scenario.Policy
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	src := &recordingSource{log: st, delivery: scenario.Delivery}
	cs := cache.New()
	eng := engine.New(cs, src, policy.NewFilter(pol),
		engine.WithLogger(logger),
		engine.WithRequestIDs(testutil.NewSequentialRequestIDs(scenario.RequestPrefix)),
	)

	h := &Harness{
		log:    st,
		source: src,
		cache:  cs,
		engine: eng,
		logger: logger,
		report: scenario.defaultReport(),
	}

	ctx := context.Background()

	if err := h.seed(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to seed scenario: %w", err)
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	for _, id := range cs.Reports() {
		entries, _ := cs.Read(id)
		result.Cache[int64(id)] = ir.Seqs(entries)
	}

	actx := &AssertionContext{
		Engine:        eng,
		DefaultReport: h.report,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// seed writes the remote log and installs the seeded cache.
func (h *Harness) seed(ctx context.Context, scenario *Scenario) error {
	for i, spec := range scenario.Remote {
		entry, err := spec.toEntry()
		if err != nil {
			return fmt.Errorf("remote[%d]: %w", i, err)
		}
		report := ir.ReportID(reportOr(spec.Report, h.report))
		if _, err := h.log.Append(ctx, report, entry); err != nil {
			return fmt.Errorf("remote[%d]: %w", i, err)
		}
	}

	seeded := make(map[ir.ReportID][]ir.Entry)
	var order []ir.ReportID
	for i, spec := range scenario.Cache {
		entry, err := spec.toEntry()
		if err != nil {
			return fmt.Errorf("cache[%d]: %w", i, err)
		}
		report := ir.ReportID(reportOr(spec.Report, h.report))
		if _, ok := seeded[report]; !ok {
			order = append(order, report)
		}
		seeded[report] = append(seeded[report], entry)
	}
	for _, report := range order {
		h.cache.Replace(report, seeded[report])
	}

	return nil
}

// executeSteps runs all steps in order.
//
// Engine errors do not abort the scenario: they are recorded on the trace
// event and checked against the step's expect clause.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		report := reportOr(step.Report, h.report)
		ev := TraceEvent{
			Step:    i,
			Op:      step.Op,
			Report:  report,
			Fetches: []FetchEvent{},
			Visible: []int64{},
			Added:   []int64{},
		}

		var (
			res   engine.Result
			err   error
			found = true
		)

		switch step.Op {
		case OpGet:
			res, err = h.engine.GetResult(ctx, ir.ReportID(report))

		case OpSet:
			entry, convErr := step.Entry.toEntry()
			if convErr != nil {
				return fmt.Errorf("step %d: %w", i, convErr)
			}
			seq := entry.Seq
			ev.Seq = &seq
			res, err = h.engine.SetResult(ctx, ir.ReportID(report), entry)

		case OpGetCacheOnly:
			var visible []ir.Entry
			visible, found = h.engine.GetCacheOnly(ir.ReportID(report))
			if found {
				res = engine.Result{History: visible, Strategy: engine.StrategyCacheOnly}
			}

		case OpAppend:
			entry, convErr := step.Entry.toEntry()
			if convErr != nil {
				return fmt.Errorf("step %d: %w", i, convErr)
			}
			seq := entry.Seq
			ev.Seq = &seq
			if _, appendErr := h.log.Append(ctx, ir.ReportID(report), entry); appendErr != nil {
				return fmt.Errorf("step %d: append: %w", i, appendErr)
			}

		case OpRemoteFail:
			h.source.setFailing(true)

		case OpRemoteRecover:
			h.source.setFailing(false)

		default:
			return fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}

		ev.Fetches = h.source.drain()
		if err != nil {
			ev.Error = errorKind(err)
		} else {
			ev.Strategy = string(res.Strategy)
			ev.Visible = ir.Seqs(res.History)
			if res.Added != nil {
				ev.Added = res.Added
			}
		}
		result.Trace = append(result.Trace, ev)

		for _, msg := range checkExpect(i, step, ev, found, err) {
			result.AddError(msg)
		}

		h.logger.Info("step completed",
			"step", i,
			"op", step.Op,
			"report", report,
			"strategy", ev.Strategy,
			"fetches", len(ev.Fetches),
		)
	}
	return nil
}

// Error kinds recorded on trace events.
const (
	errFetchFailed = "fetch_failed"
	errMalformed   = "malformed"
	errOther       = "error"
)

// errorKind classifies an engine error for the trace.
func errorKind(err error) string {
	switch {
	case engine.IsFetchError(err):
		return errFetchFailed
	case engine.IsMalformedError(err):
		return errMalformed
	default:
		return errOther
	}
}

// recordingSource serves fetches from the SQLite log, reorders batches per
// the scenario's delivery order and records every request.
type recordingSource struct {
	mu       sync.Mutex
	log      *store.Store
	delivery string
	failing  bool
	pending  []FetchEvent
}

// Fetch implements engine.Source.
func (s *recordingSource) Fetch(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error) {
	s.mu.Lock()
	s.pending = append(s.pending, FetchEvent{RequestID: req.RequestID, Offset: req.Offset})
	failing := s.failing
	s.mu.Unlock()

	if failing {
		return nil, errRemoteUnavailable
	}

	entries, err := s.log.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	// the log returns oldest-first
	switch s.delivery {
	case DeliveryNewestFirst:
		slices.Reverse(entries)
	case DeliveryRotated:
		if len(entries) > 1 {
			entries = append(entries[1:], entries[0])
		}
	}
	return entries, nil
}

func (s *recordingSource) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// drain returns and forgets the requests recorded since the last drain.
func (s *recordingSource) drain() []FetchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	if out == nil {
		out = []FetchEvent{}
	}
	return out
}

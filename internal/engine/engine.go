package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/histcache/internal/cache"
	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/policy"
)

// Source supplies report histories.
//
// With req.Offset 0 Fetch returns the complete history for req.ReportID.
// Otherwise it returns only entries with a sequence number strictly greater
// than req.Offset. Entries may come back in any order. The engine never
// retries a failed fetch.
type Source interface {
	Fetch(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error)
}

// SourceFunc adapts an ordinary function to Source.
type SourceFunc func(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error)

// Fetch calls f(ctx, req).
func (f SourceFunc) Fetch(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error) {
	return f(ctx, req)
}

// Strategy names how a call was satisfied.
type Strategy string

const (
	// StrategyCacheOnly served the cache without consulting the source.
	StrategyCacheOnly Strategy = "cache_only"

	// StrategyBootstrap performed a full fetch and replaced the cache.
	StrategyBootstrap Strategy = "bootstrap"

	// StrategyIncremental fetched entries newer than the cache head and merged them.
	StrategyIncremental Strategy = "incremental"

	// StrategyIdempotent found the pushed entry already cached.
	StrategyIdempotent Strategy = "idempotent"

	// StrategyFastPath inserted the pushed entry after its cached predecessor.
	StrategyFastPath Strategy = "fast_path"
)

// Fetched reports whether the strategy involved a source round trip.
func (s Strategy) Fetched() bool {
	return s == StrategyBootstrap || s == StrategyIncremental
}

// Result is the outcome of one engine call.
type Result struct {
	// History is the full cached history, filtered, newest-first.
	History []ir.Entry

	// Strategy is how the call was satisfied.
	Strategy Strategy

	// Added lists the sequence numbers this call inserted into the cache,
	// newest-first. Hidden entries are included. Never nil.
	Added []int64

	// Shared is true when the fetch was shared with a concurrent caller.
	Shared bool
}

// outcome is a Result before filtering.
type outcome struct {
	history  []ir.Entry
	strategy Strategy
	added    []int64
	shared   bool
}

// Engine is the report history sync engine.
//
// Thread-safety: all methods are safe for concurrent use. Fetches for the
// same report are coalesced.
type Engine struct {
	cache   *cache.Store
	source  Source
	filter  *policy.Filter
	ids     RequestIDGenerator
	logger  *slog.Logger
	metrics *Metrics
	flights singleflight.Group // keyed by report ID
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the Prometheus collectors.
//
// Default: collectors that are not registered anywhere.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRequestIDs sets the generator for fetch request IDs.
//
// Default: UUIDv7Generator
func WithRequestIDs(gen RequestIDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = gen
	}
}

// New creates an Engine that caches into store and fetches from source.
// A nil filter hides nothing.
func New(store *cache.Store, source Source, filter *policy.Filter, opts ...EngineOption) *Engine {
	if filter == nil {
		filter = policy.AllowAll()
	}

	e := &Engine{
		cache:  store,
		source: source,
		filter: filter,
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}

	return e
}

// Get returns the freshest filtered history for id.
//
// A report that was never loaded is fetched in full. Otherwise only entries
// newer than the newest cached sequence number are fetched and merged. On
// error the cache is left as it was.
func (e *Engine) Get(ctx context.Context, id ir.ReportID) ([]ir.Entry, error) {
	res, err := e.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	return res.History, nil
}

// GetResult is Get, also reporting the strategy and cache delta.
func (e *Engine) GetResult(ctx context.Context, id ir.ReportID) (Result, error) {
	e.metrics.RequestsTotal.WithLabelValues(opGet).Inc()

	out, err := e.refresh(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("get report %d: %w", id, err)
	}
	return e.finish(opGet, out), nil
}

// Set reconciles one live-pushed entry and returns the filtered history.
//
// An entry already cached changes nothing. An entry whose predecessor is
// cached is inserted without a fetch. Anything else falls back to Get.
func (e *Engine) Set(ctx context.Context, id ir.ReportID, entry ir.Entry) ([]ir.Entry, error) {
	res, err := e.SetResult(ctx, id, entry)
	if err != nil {
		return nil, err
	}
	return res.History, nil
}

// SetResult is Set, also reporting the strategy and cache delta.
func (e *Engine) SetResult(ctx context.Context, id ir.ReportID, entry ir.Entry) (Result, error) {
	e.metrics.RequestsTotal.WithLabelValues(opSet).Inc()

	if err := entry.Validate(); err != nil {
		return Result{}, fmt.Errorf("set report %d: %w", id, malformed("pushed entry", err))
	}
	log := e.logger.With("report_id", id, "seq", entry.Seq)

	newest, loaded := e.cache.Newest(id)
	if !loaded {
		log.Debug("no cached history, bootstrapping")
		return e.setByRefresh(ctx, id)
	}

	if cached, ok := e.cache.Lookup(id, entry.Seq); ok {
		e.checkRedelivery(log, cached, entry)
		history, _ := e.cache.Read(id)
		log.Debug("entry already cached")
		return e.finish(opSet, outcome{history: history, strategy: StrategyIdempotent}), nil
	}

	if e.cache.Has(id, entry.Seq-1) {
		merged, err := e.cache.Merge(id, []ir.Entry{entry})
		if err != nil {
			return Result{}, fmt.Errorf("set report %d: %w", id, err)
		}
		log.Debug("predecessor cached, inserting without fetch")
		return e.finish(opSet, outcome{
			history:  merged.History,
			strategy: StrategyFastPath,
			added:    merged.Added,
		}), nil
	}

	log.Debug("gap detected, reconciling", "newest", newest)
	return e.setByRefresh(ctx, id)
}

func (e *Engine) setByRefresh(ctx context.Context, id ir.ReportID) (Result, error) {
	out, err := e.refresh(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("set report %d: %w", id, err)
	}
	return e.finish(opSet, out), nil
}

// GetCacheOnly returns the filtered cached history for id without ever
// fetching. The bool is false when id was never loaded.
func (e *Engine) GetCacheOnly(id ir.ReportID) ([]ir.Entry, bool) {
	e.metrics.RequestsTotal.WithLabelValues(opCacheOnly).Inc()

	history, ok := e.cache.Read(id)
	if !ok {
		return nil, false
	}
	e.metrics.StrategiesTotal.WithLabelValues(opCacheOnly, string(StrategyCacheOnly)).Inc()
	return e.filter.Visible(history), true
}

// refresh runs fetchAndStore for id, sharing one in-flight round trip
// between concurrent callers. The shared fetch runs detached from the
// caller that started it; each caller only stops waiting when its own
// context ends.
func (e *Engine) refresh(ctx context.Context, id ir.ReportID) (outcome, error) {
	key := strconv.FormatInt(int64(id), 10)
	flightCtx := context.WithoutCancel(ctx)
	ch := e.flights.DoChan(key, func() (any, error) {
		return e.fetchAndStore(flightCtx, id)
	})

	select {
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return outcome{}, r.Err
		}
		out, ok := r.Val.(outcome)
		if !ok {
			return outcome{}, fmt.Errorf("unexpected type from singleflight: got %T", r.Val)
		}
		if r.Shared {
			e.metrics.SharedFetchesTotal.Inc()
			out.shared = true
		}
		return out, nil
	}
}

// fetchAndStore fetches in full when id was never loaded, incrementally
// otherwise, and writes the batch to the cache. Nothing is written unless
// the whole batch arrived and validated.
func (e *Engine) fetchAndStore(ctx context.Context, id ir.ReportID) (outcome, error) {
	newest, loaded := e.cache.Newest(id)
	req := ir.FetchRequest{
		RequestID: e.ids.Generate(),
		ReportID:  id,
		Offset:    newest,
	}

	entries, err := e.fetch(ctx, req)
	if err != nil {
		return outcome{}, err
	}

	if !loaded {
		e.cache.Replace(id, entries)
		history, _ := e.cache.Read(id)
		return outcome{history: history, strategy: StrategyBootstrap, added: ir.Seqs(history)}, nil
	}

	e.checkBatch(id, entries)
	merged, err := e.cache.Merge(id, entries)
	if err != nil {
		return outcome{}, err
	}
	return outcome{history: merged.History, strategy: StrategyIncremental, added: merged.Added}, nil
}

func (e *Engine) fetch(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error) {
	kind := "full"
	if req.Incremental() {
		kind = "incremental"
	}
	log := e.logger.With("report_id", req.ReportID, "offset", req.Offset, "request_id", req.RequestID)
	log.Info("fetching history", "kind", kind)

	start := time.Now()
	entries, err := e.source.Fetch(ctx, req)
	e.metrics.FetchDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		e.metrics.FetchesTotal.WithLabelValues(kind, fetchError).Inc()
		log.Error("history fetch failed", "error", err)
		return nil, &FetchError{
			ReportID:  req.ReportID,
			Offset:    req.Offset,
			RequestID: req.RequestID,
			Err:       err,
		}
	}

	for i, entry := range entries {
		if err := entry.Validate(); err != nil {
			e.metrics.FetchesTotal.WithLabelValues(kind, fetchMalformed).Inc()
			log.Error("fetched batch rejected", "index", i, "error", err)
			return nil, malformed(fmt.Sprintf("request %s entry %d", req.RequestID, i), err)
		}
	}

	e.metrics.FetchesTotal.WithLabelValues(kind, fetchSuccess).Inc()
	e.metrics.FetchedEntriesTotal.Add(float64(len(entries)))
	log.Debug("history fetched", "entries", len(entries))
	return entries, nil
}

// checkBatch logs fetched entries that collide with a different cached copy.
func (e *Engine) checkBatch(id ir.ReportID, entries []ir.Entry) {
	for _, incoming := range entries {
		cached, ok := e.cache.Lookup(id, incoming.Seq)
		if !ok {
			continue
		}
		e.checkRedelivery(e.logger.With("report_id", id, "seq", incoming.Seq), cached, incoming)
	}
}

// checkRedelivery compares digests. The cached copy always wins.
func (e *Engine) checkRedelivery(log *slog.Logger, cached, incoming ir.Entry) {
	want, err := ir.EntryDigest(cached)
	if err != nil {
		log.Warn("digest cached entry", "error", err)
		return
	}
	got, err := ir.EntryDigest(incoming)
	if err != nil {
		log.Warn("digest redelivered entry", "error", err)
		return
	}
	if want != got {
		e.metrics.ConflictsTotal.Inc()
		log.Warn("redelivered entry differs from cached copy",
			"cached_digest", want,
			"incoming_digest", got,
		)
	}
}

func (e *Engine) finish(op string, out outcome) Result {
	e.metrics.StrategiesTotal.WithLabelValues(op, string(out.strategy)).Inc()
	return Result{
		History:  e.filter.Visible(out.history),
		Strategy: out.strategy,
		Added:    append([]int64{}, out.added...),
		Shared:   out.shared,
	}
}

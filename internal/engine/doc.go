// Package engine implements the report history sync engine.
//
// The engine is the only component that talks to the history source. For
// every call it consults the cache, picks a strategy, fetches if needed,
// updates the cache and returns a filtered snapshot.
//
// STRATEGIES:
//
// Get:
//   - bootstrap: no cached history, full fetch (offset 0) then Replace
//   - incremental: fetch entries newer than the newest cached seq, then Merge
//
// Set (one live-pushed entry):
//   - idempotent: the seq is already cached, nothing changes
//   - fast_path: the predecessor seq is cached, insert locally, no fetch
//   - otherwise fall back to Get (bootstrap or incremental)
//
// GetCacheOnly never fetches.
//
// CONCURRENCY:
//
// Fetches for one report are coalesced: callers that arrive while a fetch
// for the same report is in flight share its result. A failed fetch leaves
// the cache untouched. The exclusion filter applies to returned values
// only, so hidden entries still satisfy predecessor checks.
package engine

// Package harness runs YAML scenarios against the report history engine.
//
// Each scenario gets a fresh in-memory SQLite log as its remote source, a
// fresh cache and an engine with deterministic request IDs. Steps drive the
// engine (get, set, get_cache_only) or the remote (append, remote_fail,
// remote_recover). Every step becomes one TraceEvent recording the strategy,
// the fetches made and the sequence numbers the caller saw.
//
// Scenario format:
//
//	name: gap_reconciliation
//	report: 42
//	delivery: rotated
//	remote:
//	  - {seq: 4}
//	  - {seq: 5}
//	cache:
//	  - {seq: 5}
//	  - {seq: 4}
//	steps:
//	  - op: set
//	    entry: {seq: 8}
//	    expect:
//	      strategy: incremental
//	      offsets: [5]
//	assertions:
//	  - type: cache_seqs
//	    seqs: [8, 7, 6, 5, 4]
//
// Traces are compared against golden files in testdata/golden with
// RunWithGolden. Regenerate them with:
//
//	go test ./internal/harness -update
package harness

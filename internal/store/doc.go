// Package store provides the SQLite-backed reference log that histcache
// fetches report histories from.
//
// Each report owns an append-only log of actions keyed by (report_id, seq).
// The store plays the role of the remote history service: Fetch implements
// the engine's Source contract over the log.
//
// # Guarantees
//
//   - Append is idempotent per (report_id, seq); a second append with a
//     different digest fails with ErrConflict
//   - All reads use ORDER BY seq ASC and return empty slices, never nil
//   - Payloads are stored as canonical JSON so digests survive a round trip
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store

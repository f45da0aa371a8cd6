// Package ir defines the shared value types of histcache.
//
// Every other internal package imports ir; ir imports nothing internal.
//
// Key constraints:
//   - Entry ordering uses Seq only, never timestamps
//   - Payloads hold no floats, so canonical JSON and digests are stable
//   - All JSON tags use snake_case
//   - Slices handed across package boundaries are deep copies (CloneEntries)
package ir

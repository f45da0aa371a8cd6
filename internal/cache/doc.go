// Package cache holds the in-memory report histories.
//
// A Store keeps, per report ID, an ordered sequence of entries sorted
// newest-first with no duplicate sequence numbers, plus a sequence-number
// index for constant-time membership checks. It never fetches and never
// filters.
//
// # Ownership
//
// The Store exclusively owns its slices. Everything handed in is copied on
// the way in and everything handed out is copied on the way out, so callers
// can never corrupt the ordering or uniqueness invariants.
//
// # Concurrency
//
// One RWMutex guards all reports. Read, Replace and Merge are safe from any
// goroutine; overlapping Replace and Merge calls on one report serialize.
package cache

package cache

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/histcache/internal/ir"
)

// ErrNotLoaded is returned by Merge when the report has never been loaded.
// Merge cannot bootstrap a history; Replace must run first.
var ErrNotLoaded = errors.New("report history not loaded")

// history is one report's cached state.
type history struct {
	entries []ir.Entry         // newest-first, unique Seq
	index   map[int64]struct{} // Seq membership
}

// Store holds per-report histories in memory for the process lifetime.
type Store struct {
	mu      sync.RWMutex
	reports map[ir.ReportID]*history
}

// MergeResult reports the outcome of a Merge.
type MergeResult struct {
	// History is the full cached history after the merge, newest-first.
	History []ir.Entry

	// Added lists the sequence numbers this merge inserted, newest-first.
	Added []int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{reports: make(map[ir.ReportID]*history)}
}

// Read returns a copy of the cached history for id, newest-first.
// The bool is false when the report has never been loaded.
func (s *Store) Read(id ir.ReportID) ([]ir.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.reports[id]
	if !ok {
		return nil, false
	}
	return ir.CloneEntries(h.entries), true
}

// Replace installs entries as the complete history for id, discarding
// anything cached before. Entries are normalized to newest-first and
// deduplicated by sequence number; the first occurrence wins.
func (s *Store) Replace(id ir.ReportID, entries []ir.Entry) {
	normalized := ir.NewestFirst(entries)
	index := make(map[int64]struct{}, len(normalized))
	for _, e := range normalized {
		index[e.Seq] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[id] = &history{entries: normalized, index: index}
}

// Merge inserts every delta entry whose sequence number is not already
// cached, keeping the history newest-first and unique. The delta may arrive
// in any order. An empty delta changes nothing.
//
// Merge returns ErrNotLoaded when id has no cached history.
func (s *Store) Merge(id ir.ReportID, delta []ir.Entry) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.reports[id]
	if !ok {
		return MergeResult{}, fmt.Errorf("merge report %d: %w", id, ErrNotLoaded)
	}

	fresh := make([]ir.Entry, 0, len(delta))
	for _, e := range delta {
		if _, present := h.index[e.Seq]; present {
			continue
		}
		h.index[e.Seq] = struct{}{}
		fresh = append(fresh, e.Clone())
	}

	if len(fresh) > 0 {
		fresh = ir.NewestFirst(fresh)
		h.entries = mergeDescending(h.entries, fresh)
	}

	return MergeResult{
		History: ir.CloneEntries(h.entries),
		Added:   ir.Seqs(fresh),
	}, nil
}

// mergeDescending merges two newest-first runs with disjoint sequence numbers.
// When every entry in b is newer than a's head this is a prepend.
func mergeDescending(a, b []ir.Entry) []ir.Entry {
	if len(a) == 0 {
		return b
	}
	if b[len(b)-1].Seq > a[0].Seq {
		return append(b, a...)
	}

	out := make([]ir.Entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Seq > b[j].Seq {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Has reports whether the cached history for id contains seq.
func (s *Store) Has(id ir.ReportID, seq int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.reports[id]
	if !ok {
		return false
	}
	_, present := h.index[seq]
	return present
}

// Lookup returns a copy of the cached entry with the given sequence number.
func (s *Store) Lookup(id ir.ReportID, seq int64) (ir.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.reports[id]
	if !ok {
		return ir.Entry{}, false
	}
	if _, present := h.index[seq]; !present {
		return ir.Entry{}, false
	}
	i, found := slices.BinarySearchFunc(h.entries, seq, func(e ir.Entry, target int64) int {
		// entries are descending, so invert the comparison
		switch {
		case e.Seq > target:
			return -1
		case e.Seq < target:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return ir.Entry{}, false
	}
	return h.entries[i].Clone(), true
}

// Newest returns the highest cached sequence number for id.
// A loaded but empty history reports 0. The bool is false when id has never
// been loaded.
func (s *Store) Newest(id ir.ReportID) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.reports[id]
	if !ok {
		return 0, false
	}
	if len(h.entries) == 0 {
		return 0, true
	}
	return h.entries[0].Seq, true
}

// Len returns the number of cached entries for id, hidden ones included.
func (s *Store) Len(id ir.ReportID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.reports[id]
	if !ok {
		return 0
	}
	return len(h.entries)
}

// Reports lists every loaded report ID in ascending order.
func (s *Store) Reports() []ir.ReportID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]ir.ReportID, 0, len(s.reports))
	for id := range s.reports {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

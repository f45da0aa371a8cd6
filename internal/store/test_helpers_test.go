package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/histcache/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustAppend appends entries and fails the test on error.
func mustAppend(t *testing.T, s *Store, report ir.ReportID, entries ...ir.Entry) {
	t.Helper()
	for _, e := range entries {
		if _, err := s.Append(context.Background(), report, e); err != nil {
			t.Fatalf("Append(%d, seq %d) failed: %v", report, e.Seq, err)
		}
	}
}

// action creates an entry with the given sequence number and name.
func action(seq int64, name string) ir.Entry {
	return ir.Entry{Seq: seq, ActionName: name}
}

func seqsEqual(got []ir.Entry, want ...int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i].Seq != want[i] {
			return false
		}
	}
	return true
}

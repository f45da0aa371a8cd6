package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/histcache/internal/ir"
)

// SeqRange is an inclusive run of sequence numbers.
type SeqRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Len returns the number of sequence numbers in the range.
func (r SeqRange) Len() int64 {
	return r.To - r.From + 1
}

func (r SeqRange) String() string {
	if r.From == r.To {
		return strconv.FormatInt(r.From, 10)
	}
	return fmt.Sprintf("%d..%d", r.From, r.To)
}

// ReportState summarizes one report's log.
type ReportState struct {
	ReportID     ir.ReportID
	Count        int
	OldestSeq    int64
	NewestSeq    int64
	Missing      []SeqRange // Holes between OldestSeq and NewestSeq, ascending
	MissingCount int64      // Sequence numbers covered by Missing
}

// Contiguous reports whether the log has no holes.
func (r ReportState) Contiguous() bool {
	return len(r.Missing) == 0
}

// GetReportState reads the report's log and reports its bounds and holes.
// A report with no actions yields Count 0.
func (s *Store) GetReportState(ctx context.Context, report ir.ReportID) (ReportState, error) {
	state := ReportState{ReportID: report, Missing: []SeqRange{}}

	entries, err := s.ReadHistory(ctx, report, 0)
	if err != nil {
		return state, fmt.Errorf("get report state: %w", err)
	}
	if len(entries) == 0 {
		return state, nil
	}

	state.Count = len(entries)
	state.OldestSeq = entries[0].Seq
	state.NewestSeq = entries[len(entries)-1].Seq

	// entries are ascending and unique
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1].Seq, entries[i].Seq
		if cur-prev > 1 {
			hole := SeqRange{From: prev + 1, To: cur - 1}
			state.Missing = append(state.Missing, hole)
			state.MissingCount += hole.Len()
		}
	}

	return state, nil
}

// Replay calls fn once per report with the report's whole log, oldest-first,
// ordered by report ID. With no reports named it visits every report in the
// store; named reports are visited even when their log is empty. It stops at
// the first error fn returns.
func (s *Store) Replay(ctx context.Context, fn func(report ir.ReportID, entries []ir.Entry) error, reports ...ir.ReportID) error {
	if len(reports) == 0 {
		var err error
		reports, err = s.Reports(ctx)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}

	for _, report := range reports {
		entries, err := s.ReadHistory(ctx, report, 0)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		if err := fn(report, entries); err != nil {
			return err
		}
	}
	return nil
}

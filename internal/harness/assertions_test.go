package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/histcache/internal/cache"
	"github.com/roach88/histcache/internal/engine"
	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/policy"
)

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Step: 0, Op: OpGet, Report: 1, Strategy: "bootstrap", Fetches: []FetchEvent{{RequestID: "req-1", Offset: 0}}},
		{Step: 1, Op: OpSet, Report: 1, Seq: seqPtr(4), Strategy: "incremental", Fetches: []FetchEvent{{RequestID: "req-2", Offset: 2}}},
	}
	r.Cache[1] = []int64{4, 3, 2, 1}
	return r
}

func sampleContext() *AssertionContext {
	cs := cache.New()
	cs.Replace(1, []ir.Entry{
		{Seq: 1, ActionName: "ADDCOMMENT"},
		{Seq: 2, ActionName: "BILLABLEDELEGATE"},
	})
	eng := engine.New(cs, engine.SourceFunc(func(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error) {
		return nil, nil
	}), policy.NewFilter(policy.Default()))
	return &AssertionContext{Engine: eng, DefaultReport: 1}
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertCacheSeqs, Seqs: []int64{4, 3, 2, 1}},
		{Type: AssertVisibleSeqs, Seqs: []int64{1}},
		{Type: AssertFetchCount, Count: 2},
		{Type: AssertFetchOffsets, Offsets: []int64{0, 2}},
	}, sampleContext())

	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "cache seqs differ",
			assertion: Assertion{Type: AssertCacheSeqs, Seqs: []int64{4, 3}},
			want:      "Actual: [4 3 2 1]",
		},
		{
			name:      "cache never loaded",
			assertion: Assertion{Type: AssertCacheSeqs, Report: 9, Seqs: []int64{1}},
			want:      "report never loaded",
		},
		{
			name:      "visible seqs differ",
			assertion: Assertion{Type: AssertVisibleSeqs, Seqs: []int64{2, 1}},
			want:      "Actual: [1]",
		},
		{
			name:      "visible never loaded",
			assertion: Assertion{Type: AssertVisibleSeqs, Report: 9},
			want:      "report never loaded",
		},
		{
			name:      "fetch count",
			assertion: Assertion{Type: AssertFetchCount, Count: 1},
			want:      "Actual: 2 fetches",
		},
		{
			name:      "fetch offsets",
			assertion: Assertion{Type: AssertFetchOffsets, Offsets: []int64{0}},
			want:      "Actual: [0 2]",
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "trace_order"},
			want:      "unknown assertion type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion}, sampleContext())
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], "assertion 0:")
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertFetchCount,
		Expected: "1 fetches",
		Actual:   "2 fetches",
		Trace:    sampleResult().Trace,
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: fetch_count")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "[1] set report=1 seq=4 strategy=incremental fetches=1")
}

func TestCheckExpect_EmptyOffsets(t *testing.T) {
	step := Step{Op: OpSet, Expect: &StepExpect{Offsets: seqsPtr()}}
	ev := TraceEvent{Fetches: []FetchEvent{}}

	assert.Empty(t, checkExpect(0, step, ev, true, nil))

	ev.Fetches = []FetchEvent{{RequestID: "req-1", Offset: 3}}
	errs := checkExpect(0, step, ev, true, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "expected offsets [], got [3]")
}

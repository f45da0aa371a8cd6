package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqPtr(n int64) *int64 { return &n }

func intPtr(n int) *int { return &n }

func seqsPtr(seqs ...int64) *[]int64 { return &seqs }

func TestRun_BootstrapThenFastPath(t *testing.T) {
	scenario := &Scenario{
		Name: "bootstrap_then_fast_path",
		Remote: []EntrySpec{
			{Seq: seqPtr(1)},
			{Seq: seqPtr(2)},
		},
		Steps: []Step{
			{Op: OpGet, Expect: &StepExpect{Strategy: "bootstrap", Offsets: seqsPtr(0)}},
			{Op: OpSet, Entry: &EntrySpec{Seq: seqPtr(3)}, Expect: &StepExpect{
				Strategy: "fast_path",
				Fetches:  intPtr(0),
				Visible:  seqsPtr(3, 2, 1),
			}},
		},
		Assertions: []Assertion{
			{Type: AssertCacheSeqs, Seqs: []int64{3, 2, 1}},
			{Type: AssertFetchCount, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, []FetchEvent{{RequestID: "req-1", Offset: 0}}, result.Trace[0].Fetches)
	assert.Empty(t, result.Trace[1].Fetches)
	assert.Equal(t, []int64{3}, result.Trace[1].Added)
	assert.Equal(t, map[int64][]int64{1: {3, 2, 1}}, result.Cache)
}

func TestRun_GapInEveryDeliveryOrder(t *testing.T) {
	for _, delivery := range []string{DeliveryOldestFirst, DeliveryNewestFirst, DeliveryRotated} {
		t.Run(delivery, func(t *testing.T) {
			scenario := &Scenario{
				Name:     "gap",
				Report:   42,
				Delivery: delivery,
				Remote: []EntrySpec{
					{Seq: seqPtr(4)}, {Seq: seqPtr(5)}, {Seq: seqPtr(6)}, {Seq: seqPtr(7)}, {Seq: seqPtr(8)},
				},
				Cache: []EntrySpec{{Seq: seqPtr(5)}, {Seq: seqPtr(4)}},
				Steps: []Step{
					{Op: OpSet, Entry: &EntrySpec{Seq: seqPtr(8)}, Expect: &StepExpect{
						Strategy: "incremental",
						Offsets:  seqsPtr(5),
						Visible:  seqsPtr(8, 7, 6, 5, 4),
					}},
				},
			}

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Equal(t, []int64{8, 7, 6}, result.Trace[0].Added)
		})
	}
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:   "mismatch",
		Remote: []EntrySpec{{Seq: seqPtr(1)}},
		Steps: []Step{
			{Op: OpGet, Expect: &StepExpect{
				Strategy: "fast_path",
				Fetches:  intPtr(0),
				Visible:  seqsPtr(2, 1),
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `expected strategy fast_path, got "bootstrap"`)
	assert.Contains(t, result.Errors[1], "expected visible [2 1], got [1]")
	assert.Contains(t, result.Errors[2], "expected 0 fetches, got 1")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario := &Scenario{
		Name: "unexpected_error",
		Steps: []Step{
			{Op: OpRemoteFail},
			{Op: OpGet},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1 (get): unexpected error")
	assert.Equal(t, errFetchFailed, result.Trace[1].Error)
	assert.Empty(t, result.Cache, "a failed bootstrap must not load the report")
}

func TestRun_ExpectedErrorMissingFails(t *testing.T) {
	scenario := &Scenario{
		Name:   "missing_error",
		Remote: []EntrySpec{{Seq: seqPtr(1)}},
		Steps: []Step{
			{Op: OpGet, Expect: &StepExpect{Error: errFetchFailed}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error fetch_failed, got none")
}

func TestRun_AppendReachesNextGet(t *testing.T) {
	scenario := &Scenario{
		Name:   "append",
		Remote: []EntrySpec{{Seq: seqPtr(1)}},
		Steps: []Step{
			{Op: OpGet},
			{Op: OpAppend, Entry: &EntrySpec{Seq: seqPtr(2), Action: "CCNOTE"}},
			{Op: OpAppend, Entry: &EntrySpec{Seq: seqPtr(3)}},
			{Op: OpGet, Expect: &StepExpect{
				Strategy: "incremental",
				Offsets:  seqsPtr(1),
				Visible:  seqsPtr(3, 1),
			}},
		},
		Assertions: []Assertion{
			{Type: AssertCacheSeqs, Seqs: []int64{3, 2, 1}},
			{Type: AssertVisibleSeqs, Seqs: []int64{3, 1}},
			{Type: AssertFetchOffsets, Offsets: []int64{0, 1}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, int64(2), *result.Trace[1].Seq)
	assert.Empty(t, result.Trace[1].Strategy)
}

func TestRun_RequestPrefix(t *testing.T) {
	scenario := &Scenario{
		Name:          "prefix",
		RequestPrefix: "sync",
		Steps:         []Step{{Op: OpGet}, {Op: OpGet}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "sync-1", result.Trace[0].Fetches[0].RequestID)
	assert.Equal(t, "sync-2", result.Trace[1].Fetches[0].RequestID)

	// an empty remote bootstraps an empty history; the next get asks from 0
	assert.Equal(t, int64(0), result.Trace[1].Fetches[0].Offset)
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/fetch_failure.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Cache, second.Cache)
}

func TestRun_BundledScenariosPass(t *testing.T) {
	names := []string{
		"bootstrap",
		"custom_policy",
		"fast_path",
		"fetch_failure",
		"gap_newest_first",
		"gap_rotated",
		"hidden_categories",
		"idempotent",
		"malformed_push",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/store"
)

type replayEnvelope struct {
	Status string       `json:"status"`
	Data   ReplayResult `json:"data"`
	Error  *CLIError    `json:"error"`
}

func replayJSON(t *testing.T, opts *RootOptions, args ...string) ReplayResult {
	t.Helper()
	opts.Format = "json"

	out, err := execute(NewReplayCommand(opts), args...)
	require.NoError(t, err)

	var resp replayEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	return resp.Data
}

func seedFive(t *testing.T, opts *RootOptions) {
	t.Helper()
	seedLog(t, opts.Database, 42,
		action(1, "ADDCOMMENT"),
		action(2, "ADDCOMMENT"),
		action(3, "BILLABLEDELEGATE"),
		action(4, "ADDCOMMENT"),
		action(5, "ADDCOMMENT"),
	)
}

func TestReplayEmptyDatabase(t *testing.T) {
	out, err := execute(NewReplayCommand(testRootOptions(t)))
	require.NoError(t, err)
	assert.Contains(t, out, "No reports found")
}

func TestReplayAllDelivered(t *testing.T) {
	opts := testRootOptions(t)
	seedFive(t, opts)

	result := replayJSON(t, opts)
	require.Len(t, result.Reports, 1)
	r := result.Reports[0]

	assert.True(t, result.AllConverged)
	assert.Equal(t, ir.ReportID(42), r.ReportID)
	assert.Equal(t, 5, r.Actions)
	assert.Equal(t, 5, r.Pushed)
	assert.Equal(t, 1, r.Bootstrap)
	assert.Equal(t, 4, r.FastPath)
	assert.Equal(t, 0, r.Incremental)
	assert.Equal(t, 2, r.Fetches, "bootstrap plus the final refresh")
	assert.True(t, r.Converged)
}

func TestReplayDroppedPushReconciles(t *testing.T) {
	opts := testRootOptions(t)
	seedFive(t, opts)

	result := replayJSON(t, opts, "--drop", "3")
	r := result.Reports[0]

	assert.Equal(t, 4, r.Pushed)
	assert.Equal(t, 1, r.Dropped)
	assert.Equal(t, 1, r.Bootstrap)
	assert.Equal(t, 2, r.FastPath)
	assert.Equal(t, 1, r.Incremental, "push 4 finds 3 missing")
	assert.Equal(t, 2, r.Reconciled)
	assert.Equal(t, 3, r.Fetches)
	assert.True(t, r.Converged)
}

func TestReplayDroppedLastPushCaughtUp(t *testing.T) {
	opts := testRootOptions(t)
	seedFive(t, opts)

	result := replayJSON(t, opts, "--drop", "5")
	r := result.Reports[0]

	assert.Equal(t, 3, r.FastPath)
	assert.Equal(t, 0, r.Incremental)
	assert.True(t, r.Converged, "the final refresh fetches the lost push")
}

func TestReplayDroppedFirstPushBootstraps(t *testing.T) {
	opts := testRootOptions(t)
	seedFive(t, opts)

	result := replayJSON(t, opts, "--drop", "1,2")
	r := result.Reports[0]

	assert.Equal(t, 2, r.Dropped)
	assert.Equal(t, 1, r.Bootstrap)
	assert.Equal(t, 2, r.FastPath)
	assert.True(t, r.Converged)
}

func TestReplaySpecificReport(t *testing.T) {
	opts := testRootOptions(t)
	seedFive(t, opts)
	seedLog(t, opts.Database, 7, action(1, "ADDCOMMENT"))

	result := replayJSON(t, opts, "--report", "7")
	require.Len(t, result.Reports, 1)
	assert.Equal(t, ir.ReportID(7), result.Reports[0].ReportID)
	assert.Equal(t, 1, result.TotalReports)
}

func TestReplayText(t *testing.T) {
	opts := testRootOptions(t)
	opts.Verbose = true
	seedFive(t, opts)

	out, err := execute(NewReplayCommand(opts), "--drop", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 1 report(s)")
	assert.Contains(t, out, "✓ Report: 42")
	assert.Contains(t, out, "Pushes: 4 delivered, 1 dropped")
	assert.Contains(t, out, "Fast path: 2, reconciled: 2")
	assert.Contains(t, out, "Fetches: 3")
	assert.Contains(t, out, "✓ All reports converged")
}

func TestReplayNotConvergedExitsWithFailure(t *testing.T) {
	cmd := NewReplayCommand(testRootOptions(t))
	cmd.SetOut(&nopWriter{})

	err := outputReplayText(cmd, ReplayResult{
		Reports:      []ReplayReportResult{{ReportID: 1}},
		TotalReports: 1,
	}, false)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestSameHistory(t *testing.T) {
	a := []ir.Entry{{Seq: 2, ActionName: "A"}, {Seq: 1, ActionName: "A"}}

	same, err := sameHistory(a, ir.CloneEntries(a))
	require.NoError(t, err)
	assert.True(t, same)

	changed := ir.CloneEntries(a)
	changed[0].Payload = ir.IRObject{"edited": ir.IRBool(true)}
	same, err = sameHistory(a, changed)
	require.NoError(t, err)
	assert.False(t, same)

	same, err = sameHistory(a, a[:1])
	require.NoError(t, err)
	assert.False(t, same)
}

func TestLogViewLimitsFetch(t *testing.T) {
	opts := testRootOptions(t)
	seedFive(t, opts)

	st, err := store.Open(opts.Database)
	require.NoError(t, err)
	defer st.Close()

	view := &logView{st: st, upTo: 3, limited: true}
	entries, err := view.Fetch(t.Context(), ir.FetchRequest{ReportID: 42, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ir.Seqs(entries))

	view.limited = false
	entries, err = view.Fetch(t.Context(), ir.FetchRequest{ReportID: 42, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4, 5}, ir.Seqs(entries))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

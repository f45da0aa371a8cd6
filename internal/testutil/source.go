package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/histcache/internal/ir"
)

// DeliveryOrder controls the order a RemoteLog returns a batch in.
type DeliveryOrder int

const (
	// OldestFirst returns entries in ascending sequence order.
	OldestFirst DeliveryOrder = iota
	// NewestFirst returns entries in descending sequence order.
	NewestFirst
	// Rotated returns ascending entries rotated left by one, so the batch
	// is neither ascending nor descending when it holds three or more.
	Rotated
)

// RemoteLog is an in-memory history source for tests. It honors the offset
// contract, records every request and can be told to fail or block.
//
// RemoteLog satisfies engine.Source.
type RemoteLog struct {
	mu      sync.Mutex
	logs    map[ir.ReportID][]ir.Entry
	calls   []ir.FetchRequest
	order   DeliveryOrder
	failErr error
	gate    chan struct{}
	started chan struct{}
}

// NewRemoteLog creates an empty log delivering oldest-first.
func NewRemoteLog() *RemoteLog {
	return &RemoteLog{logs: make(map[ir.ReportID][]ir.Entry)}
}

// Append adds entries to a report's log without validating them.
func (r *RemoteLog) Append(id ir.ReportID, entries ...ir.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[id] = append(r.logs[id], ir.CloneEntries(entries)...)
}

// AppendSeqs adds entries named "ADDCOMMENT" with the given sequence numbers.
func (r *RemoteLog) AppendSeqs(id ir.ReportID, seqs ...int64) {
	entries := make([]ir.Entry, len(seqs))
	for i, seq := range seqs {
		entries[i] = ir.Entry{Seq: seq, ActionName: "ADDCOMMENT"}
	}
	r.Append(id, entries...)
}

// SetOrder changes the delivery order of later fetches.
func (r *RemoteLog) SetOrder(order DeliveryOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = order
}

// FailWith makes every later fetch return err. A nil err restores success.
func (r *RemoteLog) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// Block makes later fetches wait until Release is called or their context
// ends. Started receives one value per fetch that reached the gate.
func (r *RemoteLog) Block() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	r.started = make(chan struct{}, 64)
}

// Started returns the channel signalled when a blocked fetch begins waiting.
func (r *RemoteLog) Started() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Release unblocks every waiting fetch.
func (r *RemoteLog) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
}

// Fetch returns the complete log for offset 0, or the entries with a
// sequence number above offset otherwise.
func (r *RemoteLog) Fetch(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	gate, started := r.gate, r.started
	r.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}

	out := make([]ir.Entry, 0, len(r.logs[req.ReportID]))
	for _, e := range r.logs[req.ReportID] {
		if req.Incremental() && e.Seq <= req.Offset {
			continue
		}
		out = append(out, e.Clone())
	}
	return deliver(out, r.order), nil
}

func deliver(entries []ir.Entry, order DeliveryOrder) []ir.Entry {
	slices.SortStableFunc(entries, func(a, b ir.Entry) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		default:
			return 0
		}
	})
	switch order {
	case NewestFirst:
		slices.Reverse(entries)
	case Rotated:
		if len(entries) > 1 {
			entries = append(entries[1:], entries[0])
		}
	}
	return entries
}

// Calls returns a copy of every request received, in arrival order.
func (r *RemoteLog) Calls() []ir.FetchRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallCount returns the number of requests received.
func (r *RemoteLog) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Offsets lists the offset of every request received, in arrival order.
func (r *RemoteLog) Offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Offset
	}
	return out
}

// ResetCalls forgets recorded requests.
func (r *RemoteLog) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

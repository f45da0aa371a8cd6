package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrMissingSeq is returned when a decoded entry carries no sequence number.
	ErrMissingSeq = errors.New("entry has no sequence number")

	// ErrNegativeSeq is returned when an entry's sequence number is below zero.
	ErrNegativeSeq = errors.New("entry sequence number is negative")
)

// ReportID identifies one independent action history.
type ReportID int64

// Entry is one action in a report's history.
type Entry struct {
	Seq        int64    `json:"seq"`               // Unique, strictly increasing per report
	ActionName string   `json:"action_name"`       // Category label; only the exclusion filter reads it
	Payload    IRObject `json:"payload,omitempty"` // Opaque to the cache
}

// FetchRequest asks a history source for a report's entries.
//
// Offset 0 requests the complete history. Any other offset requests only
// entries with a sequence number strictly greater than Offset.
type FetchRequest struct {
	RequestID string   `json:"request_id"`
	ReportID  ReportID `json:"report_id"`
	Offset    int64    `json:"offset"`
}

// Incremental reports whether the request asks for a delta only.
func (r FetchRequest) Incremental() bool {
	return r.Offset > 0
}

// Validate rejects entries the cache cannot order.
func (e Entry) Validate() error {
	if e.Seq < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeSeq, e.Seq)
	}
	return nil
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	e.Payload = e.Payload.Clone()
	return e
}

// UnmarshalJSON decodes an entry and rejects a missing "seq" field.
// A zero value would otherwise be indistinguishable from sequence number 0.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Seq        *int64   `json:"seq"`
		ActionName string   `json:"action_name"`
		Payload    IRObject `json:"payload"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode entry: %w", err)
	}
	if raw.Seq == nil {
		return ErrMissingSeq
	}

	*e = Entry{Seq: *raw.Seq, ActionName: raw.ActionName, Payload: raw.Payload}
	return e.Validate()
}

// CloneEntries deep-copies a slice of entries. The result is never nil.
func CloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

// NewestFirst returns a copy of entries sorted by descending sequence number
// with duplicate sequence numbers removed. The first occurrence of a
// sequence number in the input wins.
func NewestFirst(entries []Entry) []Entry {
	seen := make(map[int64]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Seq]; dup {
			continue
		}
		seen[e.Seq] = struct{}{}
		out = append(out, e.Clone())
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		switch {
		case a.Seq > b.Seq:
			return -1
		case a.Seq < b.Seq:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Seqs lists the sequence numbers of entries in order.
func Seqs(entries []Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Seq
	}
	return out
}

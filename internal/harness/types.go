package harness

// FetchEvent records one source round trip made during a step.
type FetchEvent struct {
	RequestID string `json:"request_id"`
	Offset    int64  `json:"offset"`
}

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step     int          `json:"step"`
	Op       string       `json:"op"`
	Report   int64        `json:"report"`
	Seq      *int64       `json:"seq,omitempty"`      // set and append only
	Strategy string       `json:"strategy,omitempty"` // engine steps only
	Fetches  []FetchEvent `json:"fetches"`
	Visible  []int64      `json:"visible"`
	Added    []int64      `json:"added"`
	Error    string       `json:"error,omitempty"` // error kind, see errorKind
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Cache holds the final internal cache contents per report,
	// hidden entries included, newest-first.
	Cache map[int64][]int64 `json:"cache,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Cache:  make(map[int64][]int64),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// FetchCount returns the number of fetches across the whole trace.
func (r *Result) FetchCount() int {
	n := 0
	for _, ev := range r.Trace {
		n += len(ev.Fetches)
	}
	return n
}

// FetchOffsets lists the offset of every fetch across the trace, in order.
func (r *Result) FetchOffsets() []int64 {
	offsets := []int64{}
	for _, ev := range r.Trace {
		for _, f := range ev.Fetches {
			offsets = append(offsets, f.Offset)
		}
	}
	return offsets
}

package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/histcache/internal/engine"
	"github.com/roach88/histcache/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s report=%d", ev.Step, ev.Op, ev.Report)
			if ev.Seq != nil {
				fmt.Fprintf(&buf, " seq=%d", *ev.Seq)
			}
			if ev.Strategy != "" {
				fmt.Fprintf(&buf, " strategy=%s", ev.Strategy)
			}
			if ev.Error != "" {
				fmt.Fprintf(&buf, " error=%s", ev.Error)
			}
			fmt.Fprintf(&buf, " fetches=%d visible=%v\n", len(ev.Fetches), ev.Visible)
		}
	}

	return buf.String()
}

// AssertionContext provides what final-state assertions read from.
type AssertionContext struct {
	Engine        *engine.Engine
	DefaultReport int64
}

// EvaluateAssertions checks every assertion against the result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	report := reportOr(a.Report, actx.DefaultReport)

	switch a.Type {
	case AssertCacheSeqs:
		return assertCacheSeqs(result, report, a)
	case AssertVisibleSeqs:
		return assertVisibleSeqs(result, actx.Engine, report, a)
	case AssertFetchCount:
		return assertFetchCount(result, a)
	case AssertFetchOffsets:
		return assertFetchOffsets(result, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertCacheSeqs compares the internal cache contents, hidden entries included.
func assertCacheSeqs(result *Result, report int64, a Assertion) error {
	actual, loaded := result.Cache[report]
	if !loaded {
		return &AssertionError{
			Type:     AssertCacheSeqs,
			Expected: fmt.Sprintf("report %d cached as %v", report, seqsOrEmpty(a.Seqs)),
			Actual:   "report never loaded",
			Trace:    result.Trace,
		}
	}
	if !slices.Equal(seqsOrEmpty(a.Seqs), actual) {
		return &AssertionError{
			Type:     AssertCacheSeqs,
			Expected: fmt.Sprintf("%v", seqsOrEmpty(a.Seqs)),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertVisibleSeqs compares what a cache-only read shows a caller.
func assertVisibleSeqs(result *Result, eng *engine.Engine, report int64, a Assertion) error {
	visible, found := eng.GetCacheOnly(ir.ReportID(report))
	if !found {
		return &AssertionError{
			Type:     AssertVisibleSeqs,
			Expected: fmt.Sprintf("report %d visible as %v", report, seqsOrEmpty(a.Seqs)),
			Actual:   "report never loaded",
			Trace:    result.Trace,
		}
	}
	actual := ir.Seqs(visible)
	if !slices.Equal(seqsOrEmpty(a.Seqs), actual) {
		return &AssertionError{
			Type:     AssertVisibleSeqs,
			Expected: fmt.Sprintf("%v", seqsOrEmpty(a.Seqs)),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertFetchCount(result *Result, a Assertion) error {
	if n := result.FetchCount(); n != a.Count {
		return &AssertionError{
			Type:     AssertFetchCount,
			Expected: fmt.Sprintf("%d fetches", a.Count),
			Actual:   fmt.Sprintf("%d fetches", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertFetchOffsets(result *Result, a Assertion) error {
	actual := result.FetchOffsets()
	if !slices.Equal(seqsOrEmpty(a.Offsets), actual) {
		return &AssertionError{
			Type:     AssertFetchOffsets,
			Expected: fmt.Sprintf("%v", seqsOrEmpty(a.Offsets)),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

// checkExpect validates one step outcome against its expect clause.
func checkExpect(index int, step Step, ev TraceEvent, found bool, err error) []string {
	exp := step.Expect
	if exp == nil {
		if err != nil {
			return []string{fmt.Sprintf("step %d (%s): unexpected error: %v", index, step.Op, err)}
		}
		return nil
	}

	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("step %d (%s): ", index, step.Op)+fmt.Sprintf(format, args...))
	}

	switch {
	case exp.Error != "" && err == nil:
		fail("expected error %s, got none", exp.Error)
	case exp.Error != "" && ev.Error != exp.Error:
		fail("expected error %s, got %s: %v", exp.Error, ev.Error, err)
	case exp.Error == "" && err != nil:
		fail("unexpected error: %v", err)
	}

	if exp.Strategy != "" && ev.Strategy != exp.Strategy {
		fail("expected strategy %s, got %q", exp.Strategy, ev.Strategy)
	}
	if exp.Visible != nil && !slices.Equal(seqsOrEmpty(*exp.Visible), ev.Visible) {
		fail("expected visible %v, got %v", seqsOrEmpty(*exp.Visible), ev.Visible)
	}
	if exp.Fetches != nil && len(ev.Fetches) != *exp.Fetches {
		fail("expected %d fetches, got %d", *exp.Fetches, len(ev.Fetches))
	}
	if exp.Offsets != nil {
		actual := make([]int64, len(ev.Fetches))
		for i, f := range ev.Fetches {
			actual[i] = f.Offset
		}
		if !slices.Equal(seqsOrEmpty(*exp.Offsets), actual) {
			fail("expected offsets %v, got %v", seqsOrEmpty(*exp.Offsets), actual)
		}
	}
	if exp.Found != nil && found != *exp.Found {
		fail("expected found=%t, got %t", *exp.Found, found)
	}

	return errs
}

func seqsOrEmpty(seqs []int64) []int64 {
	if seqs == nil {
		return []int64{}
	}
	return seqs
}

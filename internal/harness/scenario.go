package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/policy"
)

// Scenario defines a cache behavior scenario.
// A scenario seeds a remote log (and optionally the cache), drives engine
// calls step by step and asserts on what callers saw and what was fetched.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Report is the default report ID for entries and steps. Default: 1.
	Report int64 `yaml:"report,omitempty"`

	// Policy overrides the exclusion policy. Default: policy.Default().
	Policy *policy.Policy `yaml:"policy,omitempty"`

	// Delivery is the order the remote returns batches in:
	// oldest_first (default), newest_first or rotated.
	Delivery string `yaml:"delivery,omitempty"`

	// Remote seeds the authoritative log before the first step.
	Remote []EntrySpec `yaml:"remote,omitempty"`

	// Cache seeds the engine cache before the first step, bypassing the
	// source. Each listed report is installed with Replace.
	Cache []EntrySpec `yaml:"cache,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and cache.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RequestPrefix prefixes the deterministic request IDs. Default: "req".
	RequestPrefix string `yaml:"request_prefix,omitempty"`
}

// EntrySpec describes one history entry in YAML.
type EntrySpec struct {
	// Report overrides the scenario's default report.
	Report int64 `yaml:"report,omitempty"`

	// Seq is required; a pointer so that 0 is distinguishable from absent.
	Seq *int64 `yaml:"seq"`

	// Action is the category label. Default: "ADDCOMMENT".
	Action string `yaml:"action,omitempty"`

	// Payload holds arbitrary fields, converted to ir.IRObject.
	Payload map[string]any `yaml:"payload,omitempty"`
}

// Step is one scenario operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Report overrides the scenario's default report.
	Report int64 `yaml:"report,omitempty"`

	// Entry is the entry for set and append.
	Entry *EntrySpec `yaml:"entry,omitempty"`

	// Expect validates the step outcome. Optional.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect specifies the expected outcome of a step.
// Every field is optional; only the ones present are checked.
type StepExpect struct {
	Visible  *[]int64 `yaml:"visible,omitempty"`
	Strategy string   `yaml:"strategy,omitempty"`
	Fetches  *int     `yaml:"fetches,omitempty"`
	Offsets  *[]int64 `yaml:"offsets,omitempty"`
	Found    *bool    `yaml:"found,omitempty"` // get_cache_only only
	Error    string   `yaml:"error,omitempty"` // fetch_failed or malformed
}

// Step operations.
const (
	OpGet           = "get"
	OpSet           = "set"
	OpGetCacheOnly  = "get_cache_only"
	OpAppend        = "append"         // adds an entry to the remote log only
	OpRemoteFail    = "remote_fail"    // later fetches fail
	OpRemoteRecover = "remote_recover" // later fetches succeed again
)

// Delivery orders.
const (
	DeliveryOldestFirst = "oldest_first"
	DeliveryNewestFirst = "newest_first"
	DeliveryRotated     = "rotated"
)

// Assertion validates the final state of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "cache_seqs": internal cache contents for Report, hidden entries included
	// - "visible_seqs": GetCacheOnly result for Report
	// - "fetch_count": total fetches across the scenario
	// - "fetch_offsets": offsets of every fetch, in order
	Type string `yaml:"type"`

	// Report overrides the scenario's default report (cache_seqs, visible_seqs).
	Report int64 `yaml:"report,omitempty"`

	// Seqs is the expected newest-first sequence (cache_seqs, visible_seqs).
	Seqs []int64 `yaml:"seqs,omitempty"`

	// Count is the expected number of fetches (fetch_count).
	Count int `yaml:"count,omitempty"`

	// Offsets are the expected fetch offsets (fetch_offsets).
	Offsets []int64 `yaml:"offsets,omitempty"`
}

// Assertion type constants.
const (
	AssertCacheSeqs    = "cache_seqs"
	AssertVisibleSeqs  = "visible_seqs"
	AssertFetchCount   = "fetch_count"
	AssertFetchOffsets = "fetch_offsets"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// reportOr returns r, or the fallback when r is zero.
func reportOr(r, fallback int64) int64 {
	if r != 0 {
		return r
	}
	return fallback
}

// defaultReport returns the scenario's default report ID.
func (s *Scenario) defaultReport() int64 {
	return reportOr(s.Report, 1)
}

// toEntry converts an EntrySpec into an ir.Entry.
func (e EntrySpec) toEntry() (ir.Entry, error) {
	if e.Seq == nil {
		return ir.Entry{}, ir.ErrMissingSeq
	}
	payload, err := ir.ObjectFromGo(e.Payload)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("payload: %w", err)
	}
	action := e.Action
	if action == "" {
		action = "ADDCOMMENT"
	}
	return ir.Entry{Seq: *e.Seq, ActionName: action, Payload: payload}, nil
}

// validateScenario checks required fields and valid values.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps is required (at least one step)")
	}

	switch s.Delivery {
	case "", DeliveryOldestFirst, DeliveryNewestFirst, DeliveryRotated:
	default:
		return fmt.Errorf("delivery: unknown order %q", s.Delivery)
	}

	if s.Policy != nil {
		if err := s.Policy.Validate(); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}

	for i, e := range s.Remote {
		if err := validateEntrySpec(e); err != nil {
			return fmt.Errorf("remote[%d]: %w", i, err)
		}
	}
	for i, e := range s.Cache {
		if err := validateEntrySpec(e); err != nil {
			return fmt.Errorf("cache[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}

	return nil
}

// validateEntrySpec checks a seeded entry. Seeded entries must be well formed;
// malformed entries can only be pushed through a set step.
func validateEntrySpec(e EntrySpec) error {
	if e.Seq == nil {
		return fmt.Errorf("seq is required")
	}
	if *e.Seq < 0 {
		return fmt.Errorf("seq must be non-negative")
	}
	return nil
}

// validateStep checks a single step.
func validateStep(index int, step Step) error {
	switch step.Op {
	case OpGet, OpGetCacheOnly, OpRemoteFail, OpRemoteRecover:
		if step.Entry != nil {
			return fmt.Errorf("steps[%d]: entry is not allowed for %s", index, step.Op)
		}
	case OpSet:
		if step.Entry == nil || step.Entry.Seq == nil {
			return fmt.Errorf("steps[%d]: entry.seq is required for %s", index, step.Op)
		}
	case OpAppend:
		if step.Entry == nil {
			return fmt.Errorf("steps[%d]: entry is required for %s", index, step.Op)
		}
		if err := validateEntrySpec(*step.Entry); err != nil {
			return fmt.Errorf("steps[%d]: entry: %w", index, err)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	if step.Expect == nil {
		return nil
	}
	if step.Expect.Found != nil && step.Op != OpGetCacheOnly {
		return fmt.Errorf("steps[%d]: expect.found is only valid for %s", index, OpGetCacheOnly)
	}
	switch step.Expect.Error {
	case "", errFetchFailed, errMalformed:
	default:
		return fmt.Errorf("steps[%d]: unknown expected error %q", index, step.Expect.Error)
	}
	return nil
}

// validateAssertion checks a single assertion.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertCacheSeqs, AssertVisibleSeqs, AssertFetchOffsets:
	case AssertFetchCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fetch_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

package policy

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/histcache/internal/ir"
)

// Policy is the exclusion configuration.
type Policy struct {
	HiddenCategories []string `json:"hidden_categories" yaml:"hidden_categories"`
	ReservedPrefix   string   `json:"reserved_prefix" yaml:"reserved_prefix"`
}

// Default returns the policy of the source deployment.
func Default() Policy {
	return Policy{
		HiddenCategories: []string{"BILLABLEDELEGATE"},
		ReservedPrefix:   "CC",
	}
}

// Validate rejects blank category names.
func (p Policy) Validate() error {
	for i, c := range p.HiddenCategories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("hidden_categories[%d]: empty category", i)
		}
	}
	if p.ReservedPrefix != "" && strings.TrimSpace(p.ReservedPrefix) == "" {
		return fmt.Errorf("reserved_prefix: whitespace-only prefix")
	}
	return nil
}

// Filter applies a Policy to entries. A Filter is immutable and safe for
// concurrent use.
type Filter struct {
	hidden map[string]struct{}
	prefix string
	policy Policy
}

// NewFilter builds a filter for p. Labels are compared after NFC
// normalization, so composed and decomposed spellings match.
func NewFilter(p Policy) *Filter {
	f := &Filter{
		hidden: make(map[string]struct{}, len(p.HiddenCategories)),
		prefix: norm.NFC.String(p.ReservedPrefix),
		policy: Policy{
			HiddenCategories: slices.Clone(p.HiddenCategories),
			ReservedPrefix:   p.ReservedPrefix,
		},
	}
	for _, c := range p.HiddenCategories {
		f.hidden[norm.NFC.String(c)] = struct{}{}
	}
	return f
}

// AllowAll returns a filter that hides nothing.
func AllowAll() *Filter {
	return NewFilter(Policy{})
}

// Excluded reports whether e must be hidden from callers.
func (f *Filter) Excluded(e ir.Entry) bool {
	label := norm.NFC.String(e.ActionName)
	if _, hidden := f.hidden[label]; hidden {
		return true
	}
	return f.prefix != "" && strings.HasPrefix(label, f.prefix)
}

// Visible returns deep copies of the entries callers may see, in order.
// The result is never nil.
func (f *Filter) Visible(entries []ir.Entry) []ir.Entry {
	out := make([]ir.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Excluded(e) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}

// Policy returns a copy of the configuration the filter was built from.
func (f *Filter) Policy() Policy {
	return Policy{
		HiddenCategories: slices.Clone(f.policy.HiddenCategories),
		ReservedPrefix:   f.policy.ReservedPrefix,
	}
}

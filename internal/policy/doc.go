// Package policy decides which history entries callers may see.
//
// The exclusion filter is a pure function of one entry: an entry is hidden
// when its action name is in the configured hidden-category set, or starts
// with the configured reserved prefix. Filtering is applied to returned
// values only. Stored histories keep every entry, so predecessor checks still
// see hidden actions.
//
// Policies are injected at construction and can be loaded from CUE or YAML
// files:
//
//	hidden_categories: ["BILLABLEDELEGATE"]
//	reserved_prefix:   "CC"
package policy

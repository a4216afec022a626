package plan

import (
	"github.com/mitchellh/hashstructure"
)

// Hash returns a structural hash of the plan rooted at n: two plans hash
// equal iff they are node-by-node identical, including field order in
// Select/GroupBy/Agg. This is the same technique the teacher project
// uses in sql/hash to fingerprint result rows, applied here to plan
// nodes instead; hashstructure walks the Upstream chain itself, so
// hashing the root covers the whole plan in one call.
func Hash(n Node) (uint64, error) {
	if n == nil {
		return 0, nil
	}
	return hashstructure.Hash(n, nil)
}

// Equal reports whether two plans are structurally identical. It is
// defined in terms of Hash rather than a recursive field-by-field walk,
// so it inherits the exact equality notion the optimizer's fixpoint
// detection relies on.
func Equal(a, b Node) (bool, error) {
	ha, err := Hash(a)
	if err != nil {
		return false, err
	}
	hb, err := Hash(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

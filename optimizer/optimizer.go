// Package optimizer rewrites an optimized plan into an equivalent plan
// that emits a smaller, faster command. It is rule-based: a fixed,
// ordered list of named rules is applied, each run to its own fixpoint
// before the next begins, grounded on the teacher's
// sql/analyzer.Rule{Name, Apply} shape (see sql/analyzer/common_test.go,
// kept as reference) and on the Name()/Pattern()/Rewrite() split used by
// the influxdb flux planner's PushDown*Rule family in the reference
// corpus — simplified here since ShellSpark's plan is a linear chain with
// no join tree to pattern-match against.
package optimizer

import (
	"github.com/shellspark/shellspark/plan"
)

// Rule rewrites a chain (Source first, as returned by plan.Chain) into a
// new chain, reporting whether anything changed. Rules never mutate the
// slice or its nodes in place.
type Rule struct {
	Name  string
	Apply func(chain []plan.Node) ([]plan.Node, bool, error)
}

// Rules is the fixed, ordered pass list. Optimize runs each to fixpoint
// before moving to the next; their relative order is part of the public
// contract (spec §4.3).
var Rules = []Rule{
	{Name: "filter_pushdown", Apply: filterPushdown},
	{Name: "duplicate_filter_elimination", Apply: duplicateFilterElimination},
	{Name: "post_groupby_distinct_elimination", Apply: postGroupByDistinctElimination},
	{Name: "limit_coalescing", Apply: limitCoalescing},
}

// Optimize applies every rule in Rules, in order, each to fixpoint, and
// returns the rewritten plan. The caller re-hashes the result; Optimize
// does not hash anything itself.
func Optimize(root plan.Node) (plan.Node, error) {
	chain := plan.Chain(root)

	for _, rule := range Rules {
		for {
			next, changed, err := rule.Apply(chain)
			if err != nil {
				return nil, err
			}
			chain = next
			if !changed {
				break
			}
		}
	}

	return plan.Rebuild(chain), nil
}

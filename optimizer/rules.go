package optimizer

import (
	"github.com/shellspark/shellspark/plan"
)

// filterPushdown moves a ColFilter immediately downstream of a Select
// above that Select, i.e. closer to Source, when the Select keeps the
// filter's column: that column is then present in the record both
// before and after the projection, so the filter sees the same value. A
// filter on a column the Select drops stays where it is. A filter is
// never pushed above a Parse: raw-line semantics differ from parsed
// semantics, and ValidateShape rejects a ColFilter with no preceding
// Parse.
func filterPushdown(chain []plan.Node) ([]plan.Node, bool, error) {
	for i := 0; i+1 < len(chain); i++ {
		sel, isSelect := chain[i].(*plan.Select)
		cf, isColFilter := chain[i+1].(*plan.ColFilter)
		if !isSelect || !isColFilter {
			continue
		}
		inScope := false
		for _, c := range sel.Columns {
			if c == cf.Column {
				inScope = true
				break
			}
		}
		if !inScope {
			continue
		}

		next := make([]plan.Node, len(chain))
		copy(next, chain)
		next[i], next[i+1] = chain[i+1], chain[i]
		return next, true, nil
	}
	return chain, false, nil
}

// duplicateFilterElimination collapses two structurally equal filters
// (ColFilter or LineFilter) in immediate succession into one.
func duplicateFilterElimination(chain []plan.Node) ([]plan.Node, bool, error) {
	for i := 0; i+1 < len(chain); i++ {
		if !sameFilterKind(chain[i], chain[i+1]) {
			continue
		}
		eq, err := filterFieldsEqual(chain[i], chain[i+1])
		if err != nil {
			return nil, false, err
		}
		if !eq {
			continue
		}
		next := make([]plan.Node, 0, len(chain)-1)
		next = append(next, chain[:i+1]...)
		next = append(next, chain[i+2:]...)
		return next, true, nil
	}
	return chain, false, nil
}

func sameFilterKind(a, b plan.Node) bool {
	switch a.(type) {
	case *plan.ColFilter:
		_, ok := b.(*plan.ColFilter)
		return ok
	case *plan.LineFilter:
		_, ok := b.(*plan.LineFilter)
		return ok
	default:
		return false
	}
}

// filterFieldsEqual compares two filter nodes ignoring their Upstream
// pointer, since adjacent nodes in a chain necessarily differ in
// Upstream even when otherwise identical.
func filterFieldsEqual(a, b plan.Node) (bool, error) {
	strip := func(n plan.Node) plan.Node {
		return plan.WithInput(n, nil)
	}
	return plan.Equal(strip(a), strip(b))
}

// postGroupByDistinctElimination removes a Distinct immediately
// following Agg: Agg already produces one row per distinct group key.
func postGroupByDistinctElimination(chain []plan.Node) ([]plan.Node, bool, error) {
	for i := 0; i+1 < len(chain); i++ {
		if _, isAgg := chain[i].(*plan.Agg); !isAgg {
			continue
		}
		if _, isDistinct := chain[i+1].(*plan.Distinct); !isDistinct {
			continue
		}
		next := make([]plan.Node, 0, len(chain)-1)
		next = append(next, chain[:i+1]...)
		next = append(next, chain[i+2:]...)
		return next, true, nil
	}
	return chain, false, nil
}

// limitCoalescing collapses consecutive Limit nodes to the minimum n.
func limitCoalescing(chain []plan.Node) ([]plan.Node, bool, error) {
	for i := 0; i+1 < len(chain); i++ {
		a, okA := chain[i].(*plan.Limit)
		b, okB := chain[i+1].(*plan.Limit)
		if !okA || !okB {
			continue
		}
		n := a.N
		if b.N < n {
			n = b.N
		}
		next := make([]plan.Node, len(chain)-1)
		copy(next, chain[:i])
		next[i] = &plan.Limit{N: n}
		copy(next[i+1:], chain[i+2:])
		return next, true, nil
	}
	return chain, false, nil
}

// Note: limit pushdown past Sort is deliberately not implemented — doing
// so would change which rows survive the limit. No rule in this package
// ever reorders a Limit across a Sort.

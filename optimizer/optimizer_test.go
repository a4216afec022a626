package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellspark/shellspark/plan"
)

func chainOf(root plan.Node) []plan.Node { return plan.Chain(root) }

func TestFilterPushdownMovesColFilterAboveSelect(t *testing.T) {
	var n plan.Node = &plan.Source{Pattern: "x.csv"}
	n = &plan.Parse{Format: plan.FormatCSV, HasHeader: true, Upstream: n}
	n = &plan.Select{Columns: []string{"a", "b"}, Upstream: n}
	n = &plan.ColFilter{Column: "a", Op: plan.OpGt, Value: int64(1), Upstream: n}

	out, err := Optimize(n)
	require.NoError(t, err)
	chain := chainOf(out)
	// Select must now come after ColFilter.
	var sawFilter, sawSelectAfterFilter bool
	for _, node := range chain {
		if _, ok := node.(*plan.ColFilter); ok {
			sawFilter = true
		}
		if _, ok := node.(*plan.Select); ok && sawFilter {
			sawSelectAfterFilter = true
		}
	}
	require.True(t, sawSelectAfterFilter)
}

func TestDuplicateFilterElimination(t *testing.T) {
	var n plan.Node = &plan.Source{Pattern: "x.log"}
	n = &plan.LineFilter{FilterKind: plan.LineContains, Pattern: "ERROR", Upstream: n}
	n = &plan.LineFilter{FilterKind: plan.LineContains, Pattern: "ERROR", Upstream: n}

	out, err := Optimize(n)
	require.NoError(t, err)
	chain := chainOf(out)
	count := 0
	for _, node := range chain {
		if _, ok := node.(*plan.LineFilter); ok {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestPostGroupByDistinctElimination(t *testing.T) {
	var n plan.Node = &plan.Source{Pattern: "x.csv"}
	n = &plan.Parse{Format: plan.FormatCSV, HasHeader: true, Upstream: n}
	n = &plan.GroupBy{Keys: []string{"k"}, Upstream: n}
	n = &plan.Agg{Items: []plan.AggItem{{Alias: "c", Column: "*", Fn: plan.AggCount}}, Upstream: n}
	n = &plan.Distinct{Upstream: n}

	out, err := Optimize(n)
	require.NoError(t, err)
	chain := chainOf(out)
	for _, node := range chain {
		_, ok := node.(*plan.Distinct)
		require.False(t, ok, "Distinct after Agg must be eliminated")
	}
}

func TestLimitCoalescing(t *testing.T) {
	var n plan.Node = &plan.Source{Pattern: "x.csv"}
	n = &plan.Limit{N: 50, Upstream: n}
	n = &plan.Limit{N: 10, Upstream: n}

	out, err := Optimize(n)
	require.NoError(t, err)
	chain := chainOf(out)
	limits := 0
	for _, node := range chain {
		if l, ok := node.(*plan.Limit); ok {
			limits++
			require.Equal(t, 10, l.N)
		}
	}
	require.Equal(t, 1, limits)
}

func TestOptimizeIdempotent(t *testing.T) {
	var n plan.Node = &plan.Source{Pattern: "sales.csv"}
	n = &plan.Parse{Format: plan.FormatCSV, HasHeader: true, Upstream: n}
	n = &plan.Select{Columns: []string{"region", "quantity"}, Upstream: n}
	n = &plan.ColFilter{Column: "quantity", Op: plan.OpGt, Value: int64(0), Upstream: n}
	n = &plan.Limit{N: 100, Upstream: n}
	n = &plan.Limit{N: 10, Upstream: n}

	once, err := Optimize(n)
	require.NoError(t, err)
	twice, err := Optimize(once)
	require.NoError(t, err)

	eq, err := plan.Equal(once, twice)
	require.NoError(t, err)
	require.True(t, eq, "optimize(optimize(P)) must equal optimize(P)")
}

func TestLimitNeverPushedPastSort(t *testing.T) {
	var n plan.Node = &plan.Source{Pattern: "x.csv"}
	n = &plan.Parse{Format: plan.FormatCSV, HasHeader: true, Upstream: n}
	n = &plan.Sort{Key: "a", Upstream: n}
	n = &plan.Limit{N: 10, Upstream: n}

	out, err := Optimize(n)
	require.NoError(t, err)
	chain := chainOf(out)

	var sortIdx, limitIdx int = -1, -1
	for i, node := range chain {
		if _, ok := node.(*plan.Sort); ok {
			sortIdx = i
		}
		if _, ok := node.(*plan.Limit); ok {
			limitIdx = i
		}
	}
	require.True(t, sortIdx < limitIdx, "Limit must remain downstream of Sort")
}

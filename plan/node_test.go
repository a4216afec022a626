package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func salesPlan() Node {
	var n Node = &Source{Pattern: "sales.csv"}
	n = &Parse{Format: FormatCSV, HasHeader: true, Upstream: n}
	n = &ColFilter{Column: "quantity", Op: OpGt, Value: int64(0), Upstream: n}
	n = &GroupBy{Keys: []string{"region"}, Upstream: n}
	n = &Agg{Items: []AggItem{{Alias: "total_revenue", Column: "price * quantity", Fn: AggSum}}, Upstream: n}
	n = &Sort{Key: "total_revenue", Descending: true, Numeric: true, Upstream: n}
	return n
}

func TestChainOrdersSourceFirst(t *testing.T) {
	chain := Chain(salesPlan())
	require.Len(t, chain, 6)
	require.Equal(t, KindSource, chain[0].Kind())
	require.Equal(t, KindSort, chain[len(chain)-1].Kind())
}

func TestValidateShapeAcceptsWellFormedPlan(t *testing.T) {
	require.NoError(t, ValidateShape(salesPlan()))
}

func TestValidateShapeRejectsAggWithoutGroupBy(t *testing.T) {
	var n Node = &Source{Pattern: "x.csv"}
	n = &Parse{Format: FormatCSV, HasHeader: true, Upstream: n}
	n = &Agg{Items: []AggItem{{Alias: "c", Column: "*", Fn: AggCount}}, Upstream: n}

	err := ValidateShape(n)
	require.Error(t, err)
	require.True(t, ErrPlan.Is(err))
}

func TestValidateShapeRejectsColFilterWithoutParse(t *testing.T) {
	var n Node = &Source{Pattern: "x.csv"}
	n = &ColFilter{Column: "a", Op: OpEq, Value: "b", Upstream: n}

	err := ValidateShape(n)
	require.Error(t, err)
	require.True(t, ErrPlan.Is(err))
}

func TestValidateShapeRejectsCountWildcardOnNonCount(t *testing.T) {
	var n Node = &Source{Pattern: "x.csv"}
	n = &Parse{Format: FormatCSV, HasHeader: true, Upstream: n}
	n = &GroupBy{Keys: []string{"k"}, Upstream: n}
	n = &Agg{Items: []AggItem{{Alias: "s", Column: "*", Fn: AggSum}}, Upstream: n}

	err := ValidateShape(n)
	require.Error(t, err)
}

func TestValidateParallelRejectsGlobalState(t *testing.T) {
	var n Node = &Source{Pattern: "logs/*.json", IsGlob: true}
	n = &Parse{Format: FormatJSON, Upstream: n}
	n = &ColFilter{Column: "status", Op: OpGe, Value: int64(400), Upstream: n}
	n = &Parallel{Workers: 8, Upstream: n}
	require.NoError(t, ValidateParallel(n))

	n = &Sort{Key: "status", Upstream: n}
	err := ValidateParallel(n)
	require.Error(t, err)
	require.True(t, ErrPlan.Is(err))
}

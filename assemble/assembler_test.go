package assemble

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellspark/shellspark/plan"
	"github.com/shellspark/shellspark/registry"
)

// fakeRegistry builds a Registry whose tool resolution is pinned to paths
// that cannot exist on any real filesystem, so lookPath always falls back
// to the literal override and variant probes always fail deterministically
// — the compiled command text never depends on what happens to be
// installed on the machine running these tests.
func fakeRegistry(grepOverride string) *registry.Registry {
	env := map[string]string{
		"SHELLSPARK_AWK":  "/nonexistent/awk-bin",
		"SHELLSPARK_GREP": grepOverride,
		"SHELLSPARK_SORT": "/nonexistent/sort-bin",
		"SHELLSPARK_JQ":   "/nonexistent/jq-bin",
	}
	return registry.New(registry.WithGetenv(func(k string) string { return env[k] }))
}

func grepRegistry() *registry.Registry {
	return fakeRegistry("/nonexistent/grep-bin")
}

func TestAssembleContainsFilterUsesGrep(t *testing.T) {
	root := &plan.LineFilter{
		FilterKind: plan.LineContains,
		Pattern:    "error",
		Upstream:   &plan.Source{Pattern: "file.log"},
	}
	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, root)
	require.NoError(t, err)
	require.Equal(t, `/nonexistent/grep-bin -F 'error' 'file.log'`, cmd)
}

func TestAssembleJSONSelectUsesJQ(t *testing.T) {
	parse := &plan.Parse{Format: plan.FormatJSON, Upstream: &plan.Source{Pattern: "users.json"}}
	sel := &plan.Select{Columns: []string{"name", "email"}, Upstream: parse}

	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, sel)
	require.NoError(t, err)
	require.Equal(t, `/nonexistent/jq-bin -c '{name, email}' 'users.json'`, cmd)
}

func TestAssembleJSONFilterAndSelectUsesJQ(t *testing.T) {
	parse := &plan.Parse{Format: plan.FormatJSON, Upstream: &plan.Source{Pattern: "logs.json"}}
	filt := &plan.ColFilter{Column: "status", Op: plan.OpGe, Value: int64(400), Upstream: parse}
	sel := &plan.Select{Columns: []string{"path", "status", "response_time"}, Upstream: filt}

	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, sel)
	require.NoError(t, err)
	require.Equal(t, `/nonexistent/jq-bin -c 'select(.status >= 400) | {path, status, response_time}' 'logs.json'`, cmd)
}

func TestAssembleCSVGroupByAggThenSortUsesAWKAndSort(t *testing.T) {
	parse := &plan.Parse{Format: plan.FormatCSV, HasHeader: true, Upstream: &plan.Source{Pattern: "sales.csv"}}
	filt := &plan.ColFilter{Column: "quantity", Op: plan.OpGt, Value: int64(0), Upstream: parse}
	grp := &plan.GroupBy{Keys: []string{"region"}, Upstream: filt}
	agg := &plan.Agg{Items: []plan.AggItem{{Alias: "total_revenue", Column: "price * quantity", Fn: plan.AggSum}}, Upstream: grp}
	srt := &plan.Sort{Key: "total_revenue", Descending: true, Numeric: true, Upstream: agg}

	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, srt)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(cmd, "/nonexistent/awk-bin "))
	require.Contains(t, cmd, `($h["quantity"]>0)`)
	require.Contains(t, cmd, `_agg0[$h["region"]]+=(($h["price"]*$h["quantity"]))+0`)
	require.Contains(t, cmd, " 'sales.csv' | ")
	require.True(t, strings.HasSuffix(cmd, "/nonexistent/sort-bin -t, -k2,2rn -T '/tmp'"))
}

func TestAssembleParallelGlobUsesFindXargs(t *testing.T) {
	src := &plan.Source{Pattern: "logs/*.log", IsGlob: true}
	par := &plan.Parallel{Workers: 4, Upstream: src}
	lf := &plan.LineFilter{FilterKind: plan.LineContains, Pattern: "ERROR", Upstream: par}

	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, lf)
	require.NoError(t, err)
	require.Equal(t, `find 'logs' -name '*.log' -print0 | xargs -0 -P4 /nonexistent/grep-bin -F 'ERROR'`, cmd)
}

func TestAssembleParallelAfterFilterNodeUsesFindXargs(t *testing.T) {
	// Parallel() is naturally the last builder call, so the chain
	// places it above Parse/ColFilter rather than directly on Source
	// (spec §8 scenario 5): Source -> Parse -> ColFilter -> Parallel.
	src := &plan.Source{Pattern: "logs/*.json", IsGlob: true}
	parse := &plan.Parse{Format: plan.FormatJSON, Upstream: src}
	filt := &plan.ColFilter{Column: "status", Op: plan.OpGe, Value: int64(400), Upstream: parse}
	par := &plan.Parallel{Workers: 8, Upstream: filt}

	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, par)
	require.NoError(t, err)
	require.Equal(t,
		`find 'logs' -name '*.json' -print0 | xargs -0 -P8 /nonexistent/jq-bin -c 'select(.status >= 400)'`,
		cmd,
	)
}

func TestAssembleParallelWithSortIsRejected(t *testing.T) {
	src := &plan.Source{Pattern: "*.csv", IsGlob: true}
	par := &plan.Parallel{Workers: 2, Upstream: src}
	srt := &plan.Sort{Key: "x", Upstream: par}

	_, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, srt)
	require.Error(t, err)
	require.True(t, plan.ErrPlan.Is(err))
}

func TestAssembleJSONGroupByAggSplitsBetweenJQAndAWK(t *testing.T) {
	parse := &plan.Parse{Format: plan.FormatJSON, Upstream: &plan.Source{Pattern: "requests.json"}}
	grp := &plan.GroupBy{Keys: []string{"path"}, Upstream: parse}
	agg := &plan.Agg{Items: []plan.AggItem{{Alias: "n", Column: "*", Fn: plan.AggCount}}, Upstream: grp}

	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, agg)
	require.NoError(t, err)

	require.Contains(t, cmd, `/nonexistent/jq-bin -c '.'`)
	require.Contains(t, cmd, `[.path] | @tsv`)
	require.Contains(t, cmd, `_agg0[$1]++`)
	require.Contains(t, cmd, `_seen[$1]=1`)
}

func TestAssembleNonGlobSourceAppendsFilePath(t *testing.T) {
	root := &plan.LineFilter{FilterKind: plan.LineContains, Pattern: "x", Upstream: &plan.Source{Pattern: "data.log"}}
	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, root)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(cmd, " 'data.log'"))
}

func TestAssembleGlobWithoutParallelExpandsUnquoted(t *testing.T) {
	root := &plan.LineFilter{FilterKind: plan.LineContains, Pattern: "x", Upstream: &plan.Source{Pattern: "*.log", IsGlob: true}}
	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, root)
	require.NoError(t, err)
	require.Equal(t, `/nonexistent/grep-bin -F 'x' *.log`, cmd)
}

func TestAssembleDistinctAfterNonGlobSourceUsesCatPrefix(t *testing.T) {
	root := &plan.Distinct{Upstream: &plan.Source{Pattern: "data.csv"}}
	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, root)
	require.NoError(t, err)
	require.Equal(t, `cat 'data.csv' | /nonexistent/sort-bin -u -t,`, cmd)
}

func TestAssembleDistinctAfterGlobSourceUsesFindXargsCat(t *testing.T) {
	root := &plan.Distinct{Upstream: &plan.Source{Pattern: "logs/*.txt", IsGlob: true}}
	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, root)
	require.NoError(t, err)
	require.Equal(t, `find 'logs' -name '*.txt' -print0 | xargs -0 cat | /nonexistent/sort-bin -u -t,`, cmd)
}

func TestAssembleSortWithoutKnownColumnOrderFails(t *testing.T) {
	parse := &plan.Parse{Format: plan.FormatCSV, HasHeader: true, Upstream: &plan.Source{Pattern: "data.csv"}}
	srt := &plan.Sort{Key: "x", Upstream: parse}

	_, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, srt)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unresolvable")
}

func TestAssemblePrefersRipgrepVariant(t *testing.T) {
	// ripgrep has no -E flag: its pattern argument is always a regex
	// unless -F is passed, so the variant switch also drops -E here.
	root := &plan.LineFilter{FilterKind: plan.LineRegex, Pattern: "^ERR", Upstream: &plan.Source{Pattern: "file.log"}}
	cmd, err := Assemble(context.Background(), fakeRegistry("/nonexistent/rg-bin"), NewCache(0), nil, root)
	require.NoError(t, err)
	require.Equal(t, `/nonexistent/rg-bin --no-filename '^ERR' 'file.log'`, cmd)
}

func TestAssembleQuotingSurvivesShellMetacharacters(t *testing.T) {
	dangerous := `it's a "test"; $(rm -rf /) | `
	root := &plan.LineFilter{FilterKind: plan.LineContains, Pattern: dangerous, Upstream: &plan.Source{Pattern: "file's name.log"}}
	cmd, err := Assemble(context.Background(), grepRegistry(), NewCache(0), nil, root)
	require.NoError(t, err)
	// every embedded single quote becomes close-escape-reopen, so the
	// dangerous text never terminates the surrounding quoted argument.
	require.Contains(t, cmd, `'\''`)
	require.Contains(t, cmd, `$(rm -rf /)`)
	require.Contains(t, cmd, `name.log`)
}

func TestAssembleCachesCompiledCommand(t *testing.T) {
	root := &plan.LineFilter{FilterKind: plan.LineContains, Pattern: "x", Upstream: &plan.Source{Pattern: "a.log"}}
	cache := NewCache(0)
	reg := grepRegistry()

	var hits, misses int
	observer := recordingObserver{onCache: func(event string, _ uint64) {
		if event == "hit" {
			hits++
		} else if event == "miss" {
			misses++
		}
	}}

	cmd1, err := Assemble(context.Background(), reg, cache, observer, root)
	require.NoError(t, err)
	cmd2, err := Assemble(context.Background(), reg, cache, observer, root)
	require.NoError(t, err)

	require.Equal(t, cmd1, cmd2)
	require.Equal(t, 1, misses)
	require.Equal(t, 1, hits)
}

type recordingObserver struct {
	onCache func(event string, planHash uint64)
}

func (recordingObserver) ToolResolved(string, string, string, bool) {}
func (recordingObserver) ToolMissing(string, error)                 {}
func (r recordingObserver) CacheEvent(event string, planHash uint64) {
	if r.onCache != nil {
		r.onCache(event, planHash)
	}
}

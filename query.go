package shellspark

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/shellspark/shellspark/plan"
)

// Query is a fluent, immutable builder whose methods map 1:1 to plan
// nodes (SPEC_FULL §4.2). Every method returns a new Query value; the
// receiver is never mutated, so a partially built Query can be safely
// branched and reused. A build-time invariant violation is recorded on
// the Query (per the "Runtime keyword protocol" re-architecture note)
// and surfaced the first time Compiler.Compile is called, rather than
// panicking mid-chain.
type Query struct {
	node plan.Node
	err  error
}

// NewQuery starts a pipeline reading path, a single file, or pattern, a
// glob recognized by the presence of *, ?, or [.
func NewQuery(pathOrGlob string) Query {
	isGlob := strings.ContainsAny(pathOrGlob, "*?[")
	return Query{node: &plan.Source{Pattern: pathOrGlob, IsGlob: isGlob}}
}

func (q Query) fail(err error) Query {
	if q.err != nil {
		return q
	}
	q.err = err
	return q
}

// Err returns the first build-time error recorded while constructing q,
// or nil.
func (q Query) Err() error {
	return q.err
}

func (q Query) plan() plan.Node {
	if q.err != nil {
		return nil
	}
	return q.node
}

// Parse declares the upstream byte stream's structure. Most callers want
// CSV, JSON, or Text instead.
func (q Query) Parse(format plan.Format, hasHeader bool) Query {
	if q.err != nil {
		return q
	}
	q.node = &plan.Parse{Format: format, HasHeader: hasHeader, Upstream: q.node}
	return q
}

// CSV declares the source as comma-separated values, with or without a
// header row. Field-aware operations (Filter on a column, Select,
// GroupBy) require hasHeader.
func (q Query) CSV(hasHeader bool) Query { return q.Parse(plan.FormatCSV, hasHeader) }

// JSON declares the source as newline-delimited json records.
func (q Query) JSON() Query { return q.Parse(plan.FormatJSON, false) }

// Text declares the source as unstructured lines; only line-level
// filters (Contains, Regex, StartsWith, EndsWith) apply.
func (q Query) Text() Query { return q.Parse(plan.FormatText, false) }

// Contains, Regex, StartsWith, and EndsWith filter raw lines before any
// Parse. They are equivalent to the keyword form Filter("line__contains",
// pattern) etc., provided directly since line-level filtering needs no
// column name.
func (q Query) Contains(pattern string) Query { return q.lineFilter(plan.LineContains, pattern) }
func (q Query) Regex(pattern string) Query    { return q.lineFilter(plan.LineRegex, pattern) }
func (q Query) StartsWith(pattern string) Query {
	return q.lineFilter(plan.LineStartsWith, pattern)
}
func (q Query) EndsWith(pattern string) Query { return q.lineFilter(plan.LineEndsWith, pattern) }

func (q Query) lineFilter(kind plan.LineFilterKind, pattern string) Query {
	if q.err != nil {
		return q
	}
	q.node = &plan.LineFilter{FilterKind: kind, Pattern: pattern, Upstream: q.node}
	return q
}

// operatorAliases resolves the short forms spec.md §6 documents (lte,
// gte) to the canonical plan.Operator name.
var operatorAliases = map[string]string{
	"lte": "le",
	"gte": "ge",
}

var colOperators = map[string]plan.Operator{
	"eq": plan.OpEq,
	"ne": plan.OpNe,
	"lt": plan.OpLt,
	"le": plan.OpLe,
	"gt": plan.OpGt,
	"ge": plan.OpGe,
}

var lineOperators = map[string]plan.LineFilterKind{
	"contains":   plan.LineContains,
	"regex":      plan.LineRegex,
	"startswith": plan.LineStartsWith,
	"endswith":   plan.LineEndsWith,
}

// Filter implements the `name__operator` keyword protocol (spec.md §6):
// the column (or the pseudo-column "line" for a pre-Parse predicate)
// and the operator are both carried in keyword, value is the comparison
// literal. This sugar is the only place the keyword string is parsed;
// every other path constructs plan nodes directly.
func (q Query) Filter(keyword string, value interface{}) Query {
	if q.err != nil {
		return q
	}
	column, opName, err := splitKeyword(keyword)
	if err != nil {
		return q.fail(err)
	}
	if alias, ok := operatorAliases[opName]; ok {
		opName = alias
	}

	if lineKind, ok := lineOperators[opName]; ok {
		pattern, ok := value.(string)
		if !ok {
			return q.fail(plan.Errorf(plan.KindLineFilter, "keyword \""+keyword+"\" requires a string value"))
		}
		return q.lineFilter(lineKind, pattern)
	}

	if op, ok := colOperators[opName]; ok {
		q.node = &plan.ColFilter{Column: column, Op: op, Value: coerceFilterValue(value), Upstream: q.node}
		return q
	}

	return q.fail(plan.Errorf(plan.KindColFilter, "unknown filter operator \""+opName+"\""))
}

func splitKeyword(keyword string) (column, op string, err error) {
	idx := strings.LastIndex(keyword, "__")
	if idx < 0 {
		return "", "", plan.Errorf(plan.KindColFilter, "filter keyword \""+keyword+"\" must be of the form name__operator")
	}
	return keyword[:idx], keyword[idx+2:], nil
}

// coerceFilterValue resolves the keyword-sugar surface's strings-only
// values to the string|int64|float64 sum ColFilter.Value expects,
// grounded on the teacher's direct dependency on spf13/cast for loose
// scalar coercion (SPEC_FULL §4.5). Values that already arrive as a
// concrete Go type (the non-sugar constructors below) pass through
// unchanged.
func coerceFilterValue(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if strings.ContainsAny(s, ".eE") {
		if f, err := cast.ToFloat64E(s); err == nil {
			return f
		}
		return s
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := cast.ToFloat64E(s); err == nil {
		return f
	}
	return s
}

// ColFilter builds a field comparison directly, bypassing the keyword
// sugar, for callers that already have a typed value.
func (q Query) ColFilter(column string, op plan.Operator, value interface{}) Query {
	if q.err != nil {
		return q
	}
	q.node = &plan.ColFilter{Column: column, Op: op, Value: value, Upstream: q.node}
	return q
}

// Select projects to the given columns, in order.
func (q Query) Select(columns ...string) Query {
	if q.err != nil {
		return q
	}
	q.node = &plan.Select{Columns: columns, Upstream: q.node}
	return q
}

// GroupBy marks grouping columns; must be immediately followed by Agg.
func (q Query) GroupBy(keys ...string) Query {
	if q.err != nil {
		return q
	}
	q.node = &plan.GroupBy{Keys: keys, Upstream: q.node}
	return q
}

// AggSpec is one output column of an Agg node: the (alias, column, fn)
// triple, built either through the polymorphic helpers (Count, Sum, …)
// or through AggColumn directly — both converge on the same
// plan.AggItem, per SPEC_FULL §4.2's "polymorphic aggregation helpers vs
// tuple form" guidance.
type AggSpec struct {
	item plan.AggItem
}

// As attaches the output column name.
func (a AggSpec) As(alias string) AggSpec {
	a.item.Alias = alias
	return a
}

// AggColumn builds an AggSpec from the raw (column, fn) tuple form.
// column may be a plain field name or the `col OP col` / `col OP const`
// arithmetic sub-language (SPEC_FULL §3.1); column may be "*" only when
// fn is AggCount.
func AggColumn(alias, column string, fn plan.AggFn) AggSpec {
	return AggSpec{item: plan.AggItem{Alias: alias, Column: column, Fn: fn}}
}

// Count, Sum, Avg, Min, Max, First, Last, and CountDistinct are the
// polymorphic aggregation helpers; chain .As(alias) to name the output
// column.
func Count() AggSpec                { return AggSpec{item: plan.AggItem{Column: "*", Fn: plan.AggCount}} }
func Sum(column string) AggSpec     { return AggSpec{item: plan.AggItem{Column: column, Fn: plan.AggSum}} }
func Avg(column string) AggSpec     { return AggSpec{item: plan.AggItem{Column: column, Fn: plan.AggAvg}} }
func Min(column string) AggSpec     { return AggSpec{item: plan.AggItem{Column: column, Fn: plan.AggMin}} }
func Max(column string) AggSpec     { return AggSpec{item: plan.AggItem{Column: column, Fn: plan.AggMax}} }
func First(column string) AggSpec   { return AggSpec{item: plan.AggItem{Column: column, Fn: plan.AggFirst}} }
func Last(column string) AggSpec    { return AggSpec{item: plan.AggItem{Column: column, Fn: plan.AggLast}} }
func CountDistinct(column string) AggSpec {
	return AggSpec{item: plan.AggItem{Column: column, Fn: plan.AggCountDistinct}}
}

// Agg defines the output columns of a grouped aggregation; must
// immediately follow GroupBy.
func (q Query) Agg(specs ...AggSpec) Query {
	if q.err != nil {
		return q
	}
	items := make([]plan.AggItem, len(specs))
	for i, s := range specs {
		if s.item.Alias == "" {
			return q.fail(plan.Errorf(plan.KindAgg, "aggregation item requires an alias via .As(...)"))
		}
		items[i] = s.item
	}
	q.node = &plan.Agg{Items: items, Upstream: q.node}
	return q
}

// Sort imposes a total order by key.
func (q Query) Sort(key string, descending, numeric bool) Query {
	if q.err != nil {
		return q
	}
	q.node = &plan.Sort{Key: key, Descending: descending, Numeric: numeric, Upstream: q.node}
	return q
}

// Limit takes the first n rows.
func (q Query) Limit(n int) Query {
	if q.err != nil {
		return q
	}
	q.node = &plan.Limit{N: n, Upstream: q.node}
	return q
}

// Distinct deduplicates whole records.
func (q Query) Distinct() Query {
	if q.err != nil {
		return q
	}
	q.node = &plan.Distinct{Upstream: q.node}
	return q
}

// Parallel requests multi-file parallelism over a glob Source. workers
// may be plan.AUTOWorkers to size from the tool registry's cpu count at
// compile time. Legal only when the plan contains none of
// Sort/Distinct/GroupBy/Agg/Limit; violating that is a PlanError raised
// at Compile, not here, since a later call could still add one of those
// nodes (spec.md §4.2).
func (q Query) Parallel(workers int) Query {
	if q.err != nil {
		return q
	}
	q.node = &plan.Parallel{Workers: workers, Upstream: q.node}
	return q
}

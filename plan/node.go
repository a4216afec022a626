// Package plan defines ShellSpark's query plan: an immutable, structurally
// hashable chain of operation nodes. Nodes are never mutated once built;
// the optimizer produces an entirely new chain rather than editing one in
// place.
package plan

// Kind identifies the concrete variant of a Node. ErrPlan messages name
// the offending node through Kind.String, and checks such as
// isGlobalState test a node's variant through it; emitters, the
// assembler's partitioning, and optimizer rules dispatch with type
// switches on the concrete node types instead.
type Kind int

const (
	KindSource Kind = iota
	KindParse
	KindLineFilter
	KindColFilter
	KindSelect
	KindGroupBy
	KindAgg
	KindSort
	KindLimit
	KindDistinct
	KindParallel
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "Source"
	case KindParse:
		return "Parse"
	case KindLineFilter:
		return "LineFilter"
	case KindColFilter:
		return "ColFilter"
	case KindSelect:
		return "Select"
	case KindGroupBy:
		return "GroupBy"
	case KindAgg:
		return "Agg"
	case KindSort:
		return "Sort"
	case KindLimit:
		return "Limit"
	case KindDistinct:
		return "Distinct"
	case KindParallel:
		return "Parallel"
	default:
		return "Unknown"
	}
}

// Node is one step of a plan. The tree has at most one child per node:
// queries form a linear pipeline, never a branch. Input returns the
// upstream node (the one whose output feeds this one), or nil when the
// node is the Source leaf.
type Node interface {
	Kind() Kind
	Input() Node
}

// Format names the upstream byte-stream interpretation a Parse node
// declares.
type Format int

const (
	FormatCSV Format = iota
	FormatJSON
	FormatText
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatText:
		return "text"
	default:
		return "unknown"
	}
}

// LineFilterKind is the predicate kind for a LineFilter node.
type LineFilterKind int

const (
	LineContains LineFilterKind = iota
	LineRegex
	LineStartsWith
	LineEndsWith
)

// Operator is a ColFilter comparison operator.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (o Operator) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpLt:
		return "lt"
	case OpLe:
		return "le"
	case OpGt:
		return "gt"
	case OpGe:
		return "ge"
	default:
		return "unknown"
	}
}

// AggFn is an aggregation function. countdistinct maintains a per-group
// set; first/last record input-order occurrences; count, sum, and avg
// are numeric reductions; min/max keep the winning value as it appeared
// in the input, so they work on strings too.
type AggFn int

const (
	AggCount AggFn = iota
	AggSum
	AggAvg
	AggMin
	AggMax
	AggFirst
	AggLast
	AggCountDistinct
)

func (f AggFn) String() string {
	switch f {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggFirst:
		return "first"
	case AggLast:
		return "last"
	case AggCountDistinct:
		return "countdistinct"
	default:
		return "unknown"
	}
}

// AggItem is the single internal representation that both the
// (alias, column, fn) tuple surface and the helper-value surface of the
// builder lower to; see spec §9 "Polymorphic aggregation helpers vs tuple
// form".
//
// Column may be a tiny arithmetic expression (`col`, `col OP col`, or
// `col OP const` with OP in {+,-,*,/}) except when Fn is AggCount and
// Column is the literal "*", which counts rows rather than evaluating an
// expression.
type AggItem struct {
	Alias  string
	Column string
	Fn     AggFn
}

// AUTOWorkers requests Parallel to size itself from the tool registry's
// cpu_count() at compile time rather than a fixed worker count.
const AUTOWorkers = 0

// Source names the input file or glob. Always the leaf of the plan.
type Source struct {
	Pattern string
	IsGlob  bool
}

func (*Source) Kind() Kind  { return KindSource }
func (*Source) Input() Node { return nil }

// Parse declares the upstream byte stream's structure.
type Parse struct {
	Format    Format
	HasHeader bool
	Upstream  Node
}

func (*Parse) Kind() Kind  { return KindParse }
func (p *Parse) Input() Node { return p.Upstream }

// LineFilter is a predicate on raw lines with no field awareness.
type LineFilter struct {
	FilterKind LineFilterKind
	Pattern    string
	Upstream   Node
}

func (*LineFilter) Kind() Kind  { return KindLineFilter }
func (l *LineFilter) Input() Node { return l.Upstream }

// ColFilter is a predicate on a named field after Parse. Value holds a
// string, int64, or float64 — the builder coerces numeric-looking
// strings from the keyword sugar before constructing this node (see
// SPEC_FULL §4.5).
type ColFilter struct {
	Column   string
	Op       Operator
	Value    interface{}
	Upstream Node
}

func (*ColFilter) Kind() Kind  { return KindColFilter }
func (c *ColFilter) Input() Node { return c.Upstream }

// Select is a projection; it preserves the given column order and
// tolerates duplicates.
type Select struct {
	Columns  []string
	Upstream Node
}

func (*Select) Kind() Kind  { return KindSelect }
func (s *Select) Input() Node { return s.Upstream }

// GroupBy marks grouping columns. Must be immediately followed by Agg.
type GroupBy struct {
	Keys     []string
	Upstream Node
}

func (*GroupBy) Kind() Kind  { return KindGroupBy }
func (g *GroupBy) Input() Node { return g.Upstream }

// Agg defines the output columns of a grouped aggregation.
type Agg struct {
	Items    []AggItem
	Upstream Node
}

func (*Agg) Kind() Kind  { return KindAgg }
func (a *Agg) Input() Node { return a.Upstream }

// Sort imposes a total order. Ties preserve input order only incidentally
// (POSIX sort is not guaranteed stable across implementations); the spec
// leaves that case unspecified.
type Sort struct {
	Key        string
	Descending bool
	Numeric    bool
	Upstream   Node
}

func (*Sort) Kind() Kind  { return KindSort }
func (s *Sort) Input() Node { return s.Upstream }

// Limit takes the first N rows after prior steps.
type Limit struct {
	N        int
	Upstream Node
}

func (*Limit) Kind() Kind  { return KindLimit }
func (l *Limit) Input() Node { return l.Upstream }

// Distinct deduplicates whole records.
type Distinct struct {
	Upstream Node
}

func (*Distinct) Kind() Kind  { return KindDistinct }
func (d *Distinct) Input() Node { return d.Upstream }

// Parallel requests multi-file parallelism for the pipeline prefix. Legal
// only if the plan contains none of {Sort, Distinct, GroupBy, Limit};
// that check runs at compile time, not here, since later builder calls
// may still violate it (spec §4.2).
type Parallel struct {
	Workers  int // AUTOWorkers means "size from cpu_count()"
	Upstream Node
}

func (*Parallel) Kind() Kind  { return KindParallel }
func (p *Parallel) Input() Node { return p.Upstream }

// Walk calls visit for n, then n.Input(), and so on until nil — root to
// leaf. Most consumers want leaf-to-root order instead; use Chain for
// that.
func Walk(n Node, visit func(Node)) {
	for cur := n; cur != nil; cur = cur.Input() {
		visit(cur)
	}
}

// Chain returns the nodes from Source to root, Source first.
func Chain(root Node) []Node {
	var rev []Node
	Walk(root, func(n Node) { rev = append(rev, n) })
	chain := make([]Node, len(rev))
	for i, n := range rev {
		chain[len(rev)-1-i] = n
	}
	return chain
}

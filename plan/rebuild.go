package plan

// WithInput returns a shallow copy of n with its upstream input replaced
// by input. Used by the optimizer to relink a rewritten chain without
// mutating any node in place — nodes are always replaced wholesale, per
// the package doc.
func WithInput(n Node, input Node) Node {
	switch v := n.(type) {
	case *Source:
		cp := *v
		return &cp
	case *Parse:
		cp := *v
		cp.Upstream = input
		return &cp
	case *LineFilter:
		cp := *v
		cp.Upstream = input
		return &cp
	case *ColFilter:
		cp := *v
		cp.Upstream = input
		return &cp
	case *Select:
		cp := *v
		cp.Upstream = input
		return &cp
	case *GroupBy:
		cp := *v
		cp.Upstream = input
		return &cp
	case *Agg:
		cp := *v
		cp.Upstream = input
		return &cp
	case *Sort:
		cp := *v
		cp.Upstream = input
		return &cp
	case *Limit:
		cp := *v
		cp.Upstream = input
		return &cp
	case *Distinct:
		cp := *v
		cp.Upstream = input
		return &cp
	case *Parallel:
		cp := *v
		cp.Upstream = input
		return &cp
	default:
		return n
	}
}

// Rebuild reconnects chain (Source first, as returned by Chain) into a
// proper Node tree, relinking each node's Upstream to the previous
// node's rebuilt copy.
func Rebuild(chain []Node) Node {
	var cur Node
	for _, n := range chain {
		cur = WithInput(n, cur)
	}
	return cur
}

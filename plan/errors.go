package plan

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

// ErrPlan reports an invariant violation caught at build or compile time:
// e.g. Agg without a preceding GroupBy, Parallel alongside a global-state
// operator, or a filter referencing an unknown column. The message names
// the offending node kind and the violated rule, never the full plan.
var ErrPlan = errors.NewKind("shellspark: %s: %s")

// Errorf builds an ErrPlan naming the offending node kind and the rule
// that was violated.
func Errorf(nodeKind Kind, rule string) error {
	return ErrPlan.New(nodeKind.String(), rule)
}

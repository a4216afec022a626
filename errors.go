package shellspark

import (
	"github.com/shellspark/shellspark/assemble"
	"github.com/shellspark/shellspark/plan"
	"github.com/shellspark/shellspark/registry"
)

// Error kinds returned synchronously by the builder and compiler,
// re-exported here so callers never need to import the internal packages
// that actually raise them.
var (
	// ErrPlan reports an invariant violation caught at build or compile
	// time.
	ErrPlan = plan.ErrPlan

	// ErrUnsupportedEnvironment reports a required tool missing from the
	// host (awk, grep, and sort on every compile, jq only when a plan
	// parses json).
	ErrUnsupportedEnvironment = registry.ErrUnsupportedEnvironment

	// ErrQuoting should be unreachable. It is raised only if an internal
	// assertion on escape discipline fails; seeing it indicates a bug in
	// an emitter, not bad input.
	ErrQuoting = assemble.ErrQuoting
)

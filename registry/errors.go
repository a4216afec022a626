package registry

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

// ErrUnsupportedEnvironment reports a required tool missing from the
// host: awk, grep, and sort on every compile (the registry fingerprint
// resolves all three), jq only when a plan parses json.
var ErrUnsupportedEnvironment = errors.NewKind("shellspark: required tool %q not found")

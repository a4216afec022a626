package assemble

import errors "gopkg.in/src-d/go-errors.v1"

// ErrQuoting should be unreachable: it fires only if an internal
// assertion on escape discipline fails before a dynamic value is
// interpolated into a shell command. Surfacing it indicates a bug in an
// emitter, not a caller mistake.
var ErrQuoting = errors.NewKind("shellspark: quoting assertion failed: %s")

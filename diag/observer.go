// Package diag provides an observer hook for tool-registry discovery and
// compiler cache events, adapted from the teacher's auth.AuditMethod
// pattern: a small interface a caller can wire to its own logger,
// plus a logrus-backed default and a no-op for when nobody cares.
package diag

// Observer receives discovery and compile-cache events. Every method is
// best-effort notification; a Registry or Assembler never changes
// behavior based on what an Observer does with the call.
type Observer interface {
	// ToolResolved reports a successful tool resolution: which logical
	// tool ("awk", "grep", "sort", "jq"), the absolute or bare path
	// chosen, its variant (e.g. "gawk", "rg"), and whether the choice
	// came from an environment override rather than discovery.
	ToolResolved(tool, path, variant string, overridden bool)

	// ToolMissing reports that a tool could not be resolved. err is nil
	// when the tool is merely optional and absent (e.g. ripgrep falling
	// back to grep); non-nil when discovery itself failed.
	ToolMissing(tool string, err error)

	// CacheEvent reports a compile-cache hit or miss, keyed by the plan
	// hash it concerns. Evictions are not reported.
	CacheEvent(event string, planHash uint64)
}

// Nop is an Observer that discards every event. It is the default when a
// caller supplies none.
type Nop struct{}

func (Nop) ToolResolved(string, string, string, bool) {}
func (Nop) ToolMissing(string, error)                 {}
func (Nop) CacheEvent(string, uint64)                 {}

package shellspark

import (
	"context"

	"github.com/shellspark/shellspark/assemble"
	"github.com/shellspark/shellspark/optimizer"
	"github.com/shellspark/shellspark/plan"
	"github.com/shellspark/shellspark/registry"
)

// Compiler turns a Query's plan into a POSIX sh command line. It owns
// the process-wide tool registry and compile cache, mirroring the
// teacher's Engine owning a PreparedDataCache and a sync-guarded
// process list: construct once with NewCompiler and reuse it across
// every Compile call so both caches stay warm.
type Compiler struct {
	cfg      Config
	registry *registry.Registry
	cache    *assemble.Cache
}

// NewCompiler builds a Compiler from cfg. The zero Config reproduces
// the environment-driven defaults described in spec.md §9.
func NewCompiler(cfg Config) *Compiler {
	return &Compiler{
		cfg:      cfg,
		registry: newRegistry(cfg),
		cache:    assemble.NewCache(cfg.CacheCapacity),
	}
}

// Compile validates q's plan, optimizes it, and emits a single shell
// command string. Builder and plan-validation errors are ErrPlan, and a
// missing required tool is ErrUnsupportedEnvironment. An emitter that
// meets a node value it cannot render (in an AWK run, a ColFilter value
// that is not a string, int64, or float64, or an aggregation expression
// that is not `col`, `col OP col`, or `col OP const`) returns a plain
// error that matches none of the exported kinds.
func (c *Compiler) Compile(ctx context.Context, q Query) (string, error) {
	if q.Err() != nil {
		return "", q.Err()
	}
	root := q.plan()
	if root == nil {
		return "", plan.Errorf(plan.KindSource, "query has no Source")
	}

	if err := plan.ValidateShape(root); err != nil {
		return "", err
	}

	optimized, err := optimizer.Optimize(root)
	if err != nil {
		return "", err
	}

	return assemble.AssembleWithTmpDir(ctx, c.registry, c.cache, c.cfg.observer(), optimized, c.cfg.tmpDir())
}

// ClearCache discards every memoized command, forcing the next Compile
// of every plan to re-run emission (optimization runs on every Compile,
// since the cache key is the optimized plan's hash).
func (c *Compiler) ClearCache() {
	c.cache.Clear()
}

// ClearRegistry forgets every cached tool resolution, forcing the next
// Compile to re-probe the host for awk/grep/sort/jq.
func (c *Compiler) ClearRegistry() {
	c.registry.Clear()
}

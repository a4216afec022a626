package shellspark

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/shellspark/shellspark/diag"
	"github.com/shellspark/shellspark/registry"
)

// Config configures a Compiler, grounded on the teacher's engine.Config:
// an explicit struct whose defaults reproduce the environment-driven
// behavior described in spec.md §9, rather than scattering getenv calls
// through the emitters themselves.
type Config struct {
	// AWKPath, GrepPath, SortPath, JQPath override tool discovery exactly
	// like SHELLSPARK_AWK/SHELLSPARK_GREP/SHELLSPARK_SORT/SHELLSPARK_JQ,
	// for hosts that want to pin a binary without touching the process
	// environment.
	AWKPath  string
	GrepPath string
	SortPath string
	JQPath   string

	// TmpDir seeds sort -T; defaults to TMPDIR, then /tmp.
	TmpDir string

	// Log receives structured diagnostics from tool discovery when set.
	Log logrus.FieldLogger

	// Observer receives tool-resolution and cache events directly; set
	// this instead of Log for programmatic hooking. When both are nil
	// the compiler runs silently.
	Observer diag.Observer

	// CacheCapacity bounds the compile cache's entry count (defaultCacheCap
	// when zero).
	CacheCapacity int
}

func (c Config) observer() diag.Observer {
	if c.Observer != nil {
		return c.Observer
	}
	if c.Log != nil {
		return diag.NewLogrusObserver(c.Log)
	}
	return diag.Nop{}
}

func (c Config) tmpDir() string {
	if c.TmpDir != "" {
		return c.TmpDir
	}
	if v := os.Getenv("TMPDIR"); v != "" {
		return v
	}
	return "/tmp"
}

func (c Config) applyOverrides(getenv func(string) string) func(string) string {
	overrides := map[string]string{
		"SHELLSPARK_AWK":  c.AWKPath,
		"SHELLSPARK_GREP": c.GrepPath,
		"SHELLSPARK_SORT": c.SortPath,
		"SHELLSPARK_JQ":   c.JQPath,
	}
	return func(key string) string {
		if v, ok := overrides[key]; ok && v != "" {
			return v
		}
		return getenv(key)
	}
}

func newRegistry(cfg Config) *registry.Registry {
	return registry.New(
		registry.WithObserver(cfg.observer()),
		registry.WithGetenv(cfg.applyOverrides(os.Getenv)),
	)
}

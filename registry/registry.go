// Package registry discovers which shell utilities are available on the
// host, in what variant, and exposes an opaque fingerprint used as part
// of the compiler's cache key. Discovery runs at most once per tool per
// process; results (including definitive absence) are memoized.
//
// The probing shape — exec.CommandContext bounded by a short timeout —
// is grounded on agentic-shell's internal/tools.RunShell, which runs an
// arbitrary command under a context.WithTimeout for the same reason: a
// misbehaving binary must not stall the caller.
package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shellspark/shellspark/diag"
)

const probeTimeout = time.Second

// AWKInfo describes the resolved awk binary.
type AWKInfo struct {
	Path    string
	Variant string // "mawk", "gawk", or "awk"
}

// GrepInfo describes the resolved grep-family binary.
type GrepInfo struct {
	Path                  string
	Variant               string // "rg" or "grep"
	SupportsFixedStrings  bool
	SupportsExtendedRegex bool
}

// SortInfo describes the resolved sort binary.
type SortInfo struct {
	Path                 string
	SupportsParallel     bool
	SupportsBufferSize   bool
}

// JQInfo describes the resolved jq binary.
type JQInfo struct {
	Path string
}

// runner executes a probe command and returns its combined stdout; it is
// a seam for tests to stub out subprocess behavior.
type runner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Registry caches tool resolutions for the process lifetime. The zero
// value is not usable; construct with New.
type Registry struct {
	mu sync.RWMutex

	awk    *AWKInfo
	awkErr error

	grep    *GrepInfo
	grepErr error

	sortInfo *SortInfo
	sortErr  error

	jq         *JQInfo
	jqResolved bool

	cpus         int
	cpusResolved bool

	lookPath func(string) (string, error)
	run      runner
	getenv   func(string) string
	observer diag.Observer
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithObserver attaches a diag.Observer that is notified of every
// resolution outcome.
func WithObserver(o diag.Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithGetenv overrides the environment lookup function, letting a host
// application pin SHELLSPARK_* overrides without touching the real
// process environment (spec.md §9 "Environment-driven overrides").
func WithGetenv(getenv func(string) string) Option {
	return func(r *Registry) { r.getenv = getenv }
}

// New creates a Registry backed by real subprocess discovery and the
// real process environment.
func New(opts ...Option) *Registry {
	r := &Registry{
		lookPath: exec.LookPath,
		run:      execRunner,
		getenv:   os.Getenv,
		observer: diag.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Clear forgets all cached resolutions, forcing the next call to each
// resolve_* method to re-probe.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.awk, r.awkErr = nil, nil
	r.grep, r.grepErr = nil, nil
	r.sortInfo, r.sortErr = nil, nil
	r.jq, r.jqResolved = nil, false
	r.cpus, r.cpusResolved = 0, false
}

// ResolveAWK returns the first match from the preference order
// mawk, gawk, awk, unless SHELLSPARK_AWK overrides discovery.
func (r *Registry) ResolveAWK(ctx context.Context) (AWKInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.awk != nil {
		return *r.awk, nil
	}
	if r.awkErr != nil {
		return AWKInfo{}, r.awkErr
	}

	if override := r.getenv("SHELLSPARK_AWK"); override != "" {
		path, err := r.lookPath(override)
		if err != nil {
			path = override
		}
		info := AWKInfo{Path: path, Variant: r.awkVariant(ctx, path)}
		r.awk = &info
		r.observer.ToolResolved("awk", info.Path, info.Variant, true)
		return info, nil
	}

	for _, candidate := range []string{"mawk", "gawk", "awk"} {
		path, err := r.lookPath(candidate)
		if err != nil {
			continue
		}
		info := AWKInfo{Path: path, Variant: candidate}
		r.awk = &info
		r.observer.ToolResolved("awk", info.Path, info.Variant, false)
		return info, nil
	}

	err := ErrUnsupportedEnvironment.New("awk")
	r.awkErr = err
	r.observer.ToolMissing("awk", err)
	return AWKInfo{}, err
}

func (r *Registry) awkVariant(ctx context.Context, path string) string {
	out, err := r.run(ctx, path, "--version")
	if err == nil {
		lower := strings.ToLower(out)
		switch {
		case strings.Contains(lower, "gawk"):
			return "gawk"
		case strings.Contains(lower, "mawk"):
			return "mawk"
		}
	}
	return "awk"
}

// ResolveGrep returns the discovered grep-family binary, preferring
// ripgrep when present, unless SHELLSPARK_GREP overrides discovery.
// Absence of ripgrep is not fatal: it silently falls back to grep.
func (r *Registry) ResolveGrep(ctx context.Context) (GrepInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grep != nil || r.grepErr != nil {
		if r.grep == nil {
			return GrepInfo{}, r.grepErr
		}
		return *r.grep, nil
	}

	if override := r.getenv("SHELLSPARK_GREP"); override != "" {
		path, err := r.lookPath(override)
		if err != nil {
			path = override
		}
		info := GrepInfo{Path: path, Variant: "grep", SupportsFixedStrings: true, SupportsExtendedRegex: true}
		if strings.Contains(override, "rg") {
			info.Variant = "rg"
		}
		r.grep = &info
		r.observer.ToolResolved("grep", info.Path, info.Variant, true)
		return info, nil
	}

	if path, err := r.lookPath("rg"); err == nil {
		info := GrepInfo{Path: path, Variant: "rg", SupportsFixedStrings: true, SupportsExtendedRegex: true}
		r.grep = &info
		r.observer.ToolResolved("grep", info.Path, info.Variant, false)
		return info, nil
	}
	r.observer.ToolMissing("rg", nil)

	if path, err := r.lookPath("grep"); err == nil {
		info := GrepInfo{Path: path, Variant: "grep", SupportsFixedStrings: true, SupportsExtendedRegex: true}
		r.grep = &info
		r.observer.ToolResolved("grep", info.Path, info.Variant, false)
		return info, nil
	}

	err := ErrUnsupportedEnvironment.New("grep")
	r.grepErr = err
	r.observer.ToolMissing("grep", err)
	return GrepInfo{}, err
}

// ResolveSort returns the discovered sort binary and its capability
// flags, unless SHELLSPARK_SORT overrides discovery.
func (r *Registry) ResolveSort(ctx context.Context) (SortInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sortInfo != nil || r.sortErr != nil {
		if r.sortInfo == nil {
			return SortInfo{}, r.sortErr
		}
		return *r.sortInfo, nil
	}

	resolvePath := func() (string, bool, error) {
		if override := r.getenv("SHELLSPARK_SORT"); override != "" {
			path, err := r.lookPath(override)
			if err != nil {
				path = override
			}
			return path, true, nil
		}
		path, err := r.lookPath("sort")
		return path, false, err
	}

	path, overridden, err := resolvePath()
	if err != nil {
		sortErr := ErrUnsupportedEnvironment.New("sort")
		r.sortErr = sortErr
		r.observer.ToolMissing("sort", sortErr)
		return SortInfo{}, sortErr
	}

	out, _ := r.run(ctx, path, "--version")
	gnu := strings.Contains(out, "GNU coreutils")
	info := SortInfo{Path: path, SupportsParallel: gnu, SupportsBufferSize: gnu}
	r.sortInfo = &info
	r.observer.ToolResolved("sort", info.Path, gnuVariantName(gnu), overridden)
	return info, nil
}

func gnuVariantName(gnu bool) string {
	if gnu {
		return "gnu"
	}
	return "bsd"
}

// ResolveJQ returns the discovered jq binary. jq is optional overall —
// absence is reported via the bool return, not an error — but fatal at
// compile time if the plan parses json; that check lives in the
// compiler, not here.
func (r *Registry) ResolveJQ(ctx context.Context) (JQInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jqResolved {
		if r.jq == nil {
			return JQInfo{}, false
		}
		return *r.jq, true
	}
	r.jqResolved = true

	if override := r.getenv("SHELLSPARK_JQ"); override != "" {
		path, err := r.lookPath(override)
		if err != nil {
			path = override
		}
		info := JQInfo{Path: path}
		r.jq = &info
		r.observer.ToolResolved("jq", info.Path, "", true)
		return info, true
	}

	path, err := r.lookPath("jq")
	if err != nil {
		r.observer.ToolMissing("jq", nil)
		return JQInfo{}, false
	}
	info := JQInfo{Path: path}
	r.jq = &info
	r.observer.ToolResolved("jq", info.Path, "", false)
	return info, true
}

// CPUCount queries the OS for a usable worker count, falling back to 1
// when no probe succeeds.
func (r *Registry) CPUCount(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cpusResolved {
		return r.cpus
	}
	r.cpusResolved = true

	if out, err := r.run(ctx, "nproc"); err == nil {
		if n, perr := strconv.Atoi(strings.TrimSpace(out)); perr == nil && n > 0 {
			r.cpus = n
			return n
		}
	}
	if out, err := r.run(ctx, "sysctl", "-n", "hw.ncpu"); err == nil {
		if n, perr := strconv.Atoi(strings.TrimSpace(out)); perr == nil && n > 0 {
			r.cpus = n
			return n
		}
	}
	r.cpus = 1
	return 1
}

// Fingerprint returns a stable byte sequence summarizing every
// resolution made so far, resolving any tool not yet resolved. jq
// absence is summarized as such; a missing awk, grep, or sort makes
// Fingerprint return that tool's ErrUnsupportedEnvironment. It changes
// iff any resolution changes.
func (r *Registry) Fingerprint(ctx context.Context) ([]byte, error) {
	awk, err := r.ResolveAWK(ctx)
	if err != nil {
		return nil, err
	}
	grep, err := r.ResolveGrep(ctx)
	if err != nil {
		return nil, err
	}
	sortInfo, err := r.ResolveSort(ctx)
	if err != nil {
		return nil, err
	}
	jq, hasJQ := r.ResolveJQ(ctx)
	cpus := r.CPUCount(ctx)

	summary := fmt.Sprintf(
		"awk=%s:%s|grep=%s:%s:%v:%v|sort=%s:%v:%v|jq=%s:%v|cpus=%d",
		awk.Path, awk.Variant,
		grep.Path, grep.Variant, grep.SupportsFixedStrings, grep.SupportsExtendedRegex,
		sortInfo.Path, sortInfo.SupportsParallel, sortInfo.SupportsBufferSize,
		jq.Path, hasJQ,
		cpus,
	)
	sum := sha256.Sum256([]byte(summary))
	return sum[:], nil
}

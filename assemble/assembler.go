// Package assemble walks an optimized plan leaf-to-root, partitions it
// into maximal runs each owned by one code emitter (spec.md §4.5,
// elaborated in SPEC_FULL §4.4/§4.6), and joins the resulting fragments
// into a single POSIX sh command line, memoizing the result.
package assemble

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shellspark/shellspark/diag"
	"github.com/shellspark/shellspark/emit"
	"github.com/shellspark/shellspark/plan"
	"github.com/shellspark/shellspark/registry"
)

// schemaState tracks what the assembler currently knows about the
// stream arriving into the next run: whether field positions are fixed
// (and if so, their names in order) or only resolvable at runtime via a
// csv header row.
type schemaState struct {
	headerBased bool
	columns     []string
	delim       byte
}

// Assemble compiles root into a shell command string, consulting cache
// first and storing the result on a miss. reg resolves the concrete
// tool binaries each emitter needs. observer may be nil; events are
// reported best-effort and never change the compiled result.
func Assemble(ctx context.Context, reg *registry.Registry, cache *Cache, observer diag.Observer, root plan.Node) (string, error) {
	return AssembleWithTmpDir(ctx, reg, cache, observer, root, "")
}

// AssembleWithTmpDir is Assemble with an explicit sort temp directory
// (empty defers to emit.EmitSort's own "/tmp" default). Compiler threads
// Config.TmpDir through this entry point; Assemble itself exists for
// callers that don't care.
func AssembleWithTmpDir(ctx context.Context, reg *registry.Registry, cache *Cache, observer diag.Observer, root plan.Node, tmpDir string) (string, error) {
	if observer == nil {
		observer = diag.Nop{}
	}

	if err := plan.ValidateShape(root); err != nil {
		return "", err
	}
	if err := plan.ValidateParallel(root); err != nil {
		return "", err
	}

	h, err := plan.Hash(root)
	if err != nil {
		return "", err
	}
	fp, err := reg.Fingerprint(ctx)
	if err != nil {
		return "", err
	}
	key := newCacheKey(h, fp)

	if cache != nil {
		if cmd, ok := cache.lookup(key); ok {
			observer.CacheEvent("hit", h)
			return cmd, nil
		}
	}
	observer.CacheEvent("miss", h)

	cmd, err := compile(ctx, reg, root, tmpDir)
	if err != nil {
		return "", err
	}

	if cache != nil {
		cache.store(key, cmd)
	}
	return cmd, nil
}

func compile(ctx context.Context, reg *registry.Registry, root plan.Node, tmpDir string) (string, error) {
	chain := plan.Chain(root)

	src, ok := chain[0].(*plan.Source)
	if !ok {
		return "", plan.Errorf(plan.KindSource, "plan must begin with a Source")
	}

	rest, parallel := extractParallel(chain[1:])

	runs, err := partition(rest)
	if err != nil {
		return "", err
	}

	state := schemaState{}
	var fragments []emit.Fragment

	for i, r := range runs {
		var produced []emit.Fragment
		var err error
		switch r.kind {
		case runLineFilter:
			produced, err = emitLineFilterRun(ctx, reg, r.nodes)
		case runJQ:
			var nextRun *run
			if i+1 < len(runs) {
				nextRun = &runs[i+1]
			}
			produced, state, err = emitJQRunFn(ctx, reg, r.nodes, nextRun)
		case runAWK:
			produced, state, err = emitAWKRunFn(ctx, reg, r.nodes, state)
		case runSort:
			produced, state, err = emitSortStage(ctx, reg, r.nodes[0].(*plan.Sort), state, tmpDir)
		case runDistinct:
			produced, state, err = emitDistinctStage(ctx, reg, fragments, state)
		case runLimit:
			produced = []emit.Fragment{emit.EmitLimit(r.nodes[0].(*plan.Limit).N)}
		default:
			err = plan.Errorf(r.nodes[0].Kind(), "no emitter owns this node")
		}
		if err != nil {
			return "", err
		}
		fragments = append(fragments, produced...)
	}

	return assembleCommand(ctx, reg, src, parallel, fragments)
}

type runKind int

const (
	runLineFilter runKind = iota
	runJQ
	runAWK
	runSort
	runDistinct
	runLimit
)

type run struct {
	kind  runKind
	nodes []plan.Node
}

// extractParallel pulls the single *plan.Parallel node (if any) out of
// the post-Source chain, wherever it sits — the builder appends it at
// the point the caller calls .Parallel(...), which is most naturally
// the last call in the chain (spec §8 scenario 5), not necessarily right
// above Source. ValidateShape already guarantees at most one Parallel
// node exists, so the first match found is the only one.
func extractParallel(nodes []plan.Node) ([]plan.Node, *plan.Parallel) {
	for i, n := range nodes {
		if p, ok := n.(*plan.Parallel); ok {
			rest := make([]plan.Node, 0, len(nodes)-1)
			rest = append(rest, nodes[:i]...)
			rest = append(rest, nodes[i+1:]...)
			return rest, p
		}
	}
	return nodes, nil
}

// partition groups the post-Source (post-Parallel) node list into
// contiguous emitter-owned runs per SPEC_FULL §4.4.
func partition(nodes []plan.Node) ([]run, error) {
	var runs []run
	i := 0
	for i < len(nodes) {
		n := nodes[i]
		switch v := n.(type) {
		case *plan.LineFilter:
			j := i
			var group []plan.Node
			for j < len(nodes) {
				if _, ok := nodes[j].(*plan.LineFilter); !ok {
					break
				}
				group = append(group, nodes[j])
				j++
			}
			runs = append(runs, run{kind: runLineFilter, nodes: group})
			i = j
		case *plan.Parse:
			j := i + 1
			var group []plan.Node
			group = append(group, v)
			for j < len(nodes) {
				switch nodes[j].(type) {
				case *plan.ColFilter, *plan.Select:
					group = append(group, nodes[j])
					j++
					continue
				case *plan.GroupBy:
					group = append(group, nodes[j])
					j++
					if j < len(nodes) {
						if _, ok := nodes[j].(*plan.Agg); ok {
							group = append(group, nodes[j])
							j++
						}
					}
					continue
				}
				break
			}
			if v.Format == plan.FormatJSON {
				// a jq run stops at the first GroupBy/Agg; split those
				// back out into their own AWK-owned run.
				jqGroup, awkGroup := splitAtGroupBy(group)
				runs = append(runs, run{kind: runJQ, nodes: jqGroup})
				if len(awkGroup) > 0 {
					runs = append(runs, run{kind: runAWK, nodes: awkGroup})
				}
			} else {
				runs = append(runs, run{kind: runAWK, nodes: group})
			}
			i = j
		case *plan.ColFilter, *plan.Select, *plan.GroupBy:
			// field-aware node outside a Parse-owned run: a Sort,
			// Distinct, Limit, or LineFilter between the Parse and this
			// node ended that run, and no emitter handles field-aware
			// nodes on their own, so the plan is rejected here.
			return nil, plan.Errorf(n.Kind(), "field-aware node outside a Parse-owned run")
		case *plan.Sort:
			runs = append(runs, run{kind: runSort, nodes: []plan.Node{v}})
			i++
		case *plan.Distinct:
			runs = append(runs, run{kind: runDistinct, nodes: []plan.Node{v}})
			i++
		case *plan.Limit:
			runs = append(runs, run{kind: runLimit, nodes: []plan.Node{v}})
			i++
		default:
			return nil, plan.Errorf(n.Kind(), "no backend owns this node kind")
		}
	}
	return runs, nil
}

// splitAtGroupBy separates a jq-owned Parse/ColFilter/Select prefix from
// a trailing GroupBy/Agg pair that must be emitted by AWK instead.
func splitAtGroupBy(group []plan.Node) (jqGroup, awkGroup []plan.Node) {
	for idx, n := range group {
		if n.Kind() == plan.KindGroupBy {
			return group[:idx], group[idx:]
		}
	}
	return group, nil
}

func emitLineFilterRun(ctx context.Context, reg *registry.Registry, nodes []plan.Node) ([]emit.Fragment, error) {
	tool, err := reg.ResolveGrep(ctx)
	if err != nil {
		return nil, err
	}
	var out []emit.Fragment
	for _, n := range nodes {
		lf := n.(*plan.LineFilter)
		f, err := emit.EmitLineFilters(tool, lf)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func emitJQRunFn(ctx context.Context, reg *registry.Registry, nodes []plan.Node, next *run) ([]emit.Fragment, schemaState, error) {
	info, ok := reg.ResolveJQ(ctx)
	if !ok {
		return nil, schemaState{}, registry.ErrUnsupportedEnvironment.New("jq")
	}

	f, err := emit.EmitJQRun(info.Path, nodes)
	if err != nil {
		return nil, schemaState{}, err
	}
	fragments := []emit.Fragment{f}
	state := schemaState{headerBased: false, columns: f.Columns, delim: 0}

	if next != nil && (next.kind == runAWK || next.kind == runSort) {
		cols := f.Columns
		if len(cols) == 0 {
			cols = collectColumns(next.nodes)
		}
		conv, err := emit.EmitJQToTSV(info.Path, cols)
		if err != nil {
			return nil, schemaState{}, err
		}
		fragments = append(fragments, conv)
		state = schemaState{headerBased: false, columns: cols, delim: conv.Delim}
	}

	return fragments, state, nil
}

func emitAWKRunFn(ctx context.Context, reg *registry.Registry, nodes []plan.Node, in schemaState) ([]emit.Fragment, schemaState, error) {
	tool, err := reg.ResolveAWK(ctx)
	if err != nil {
		return nil, schemaState{}, err
	}

	if p, ok := nodes[0].(*plan.Parse); ok && len(nodes) == 1 && !(p.Format == plan.FormatCSV && p.HasHeader) {
		// a headerless csv or text Parse with nothing field-aware after
		// it leaves the stream as it is: no awk stage, no header row.
		return nil, in, nil
	}

	_, startsWithParse := nodes[0].(*plan.Parse)
	opts := emit.AWKOptions{
		HeaderBased: startsWithParse,
		Columns:     in.columns,
		InputDelim:  in.delim,
		OutputDelim: ',',
	}
	if !startsWithParse && in.headerBased {
		opts.HeaderBased = true
	}

	f, err := emit.EmitAWK(tool, nodes, opts)
	if err != nil {
		return nil, schemaState{}, err
	}

	out := schemaState{headerBased: false, columns: f.Columns, delim: f.Delim}
	return []emit.Fragment{f}, out, nil
}

func emitSortStage(ctx context.Context, reg *registry.Registry, s *plan.Sort, in schemaState, tmpDir string) ([]emit.Fragment, schemaState, error) {
	if len(in.columns) == 0 {
		return nil, schemaState{}, plan.Errorf(plan.KindSort, "sort key position is unresolvable without a preceding Select or GroupBy+Agg establishing a static column order")
	}
	pos := indexOfColumn(in.columns, s.Key)
	if pos < 0 {
		return nil, schemaState{}, plan.Errorf(plan.KindSort, "unknown column \""+s.Key+"\"")
	}

	tool, err := reg.ResolveSort(ctx)
	if err != nil {
		return nil, schemaState{}, err
	}

	delim := in.delim
	if delim == 0 {
		delim = ','
	}
	cpus := reg.CPUCount(ctx)

	f, err := emit.EmitSort(tool, emit.SortOptions{
		Position:     pos + 1,
		Delim:        delim,
		Descending:   s.Descending,
		Numeric:      s.Numeric,
		TmpDir:       tmpDir,
		UseDollarTab: delim == '\t',
	}, cpus)
	if err != nil {
		return nil, schemaState{}, err
	}
	out := schemaState{columns: in.columns, delim: delim}
	return []emit.Fragment{f}, out, nil
}

func emitDistinctStage(ctx context.Context, reg *registry.Registry, priorFragments []emit.Fragment, in schemaState) ([]emit.Fragment, schemaState, error) {
	tool, err := reg.ResolveSort(ctx)
	if err != nil {
		return nil, schemaState{}, err
	}
	standalone := !lastFragmentIsSort(priorFragments, tool.Path)
	delim := in.delim
	if delim == 0 {
		delim = ','
	}
	f := emit.EmitDistinct(tool, standalone, delim, delim == '\t')
	out := schemaState{columns: in.columns, delim: delim}
	return []emit.Fragment{f}, out, nil
}

func lastFragmentIsSort(fragments []emit.Fragment, sortPath string) bool {
	if len(fragments) == 0 {
		return false
	}
	last := fragments[len(fragments)-1].Command
	return strings.HasPrefix(last, sortPath+" ") || last == sortPath
}

func indexOfColumn(cols []string, col string) int {
	for i, c := range cols {
		if c == col {
			return i
		}
	}
	return -1
}

// collectColumns gathers, in first-seen order, every column name an
// AWK-owned run (GroupBy keys, Agg expressions, standalone ColFilter or
// Select) references — used to build the jq @tsv conversion's field
// list when no explicit Select already fixed the projection.
func collectColumns(nodes []plan.Node) []string {
	var cols []string
	seen := map[string]bool{}
	add := func(c string) {
		if c == "*" || seen[c] {
			return
		}
		seen[c] = true
		cols = append(cols, c)
	}
	for _, n := range nodes {
		switch v := n.(type) {
		case *plan.ColFilter:
			add(v.Column)
		case *plan.Select:
			for _, c := range v.Columns {
				add(c)
			}
		case *plan.GroupBy:
			for _, k := range v.Keys {
				add(k)
			}
		case *plan.Agg:
			for _, item := range v.Items {
				for _, tok := range strings.Fields(item.Column) {
					if tok == "+" || tok == "-" || tok == "*" || tok == "/" {
						continue
					}
					if _, err := strconv.ParseFloat(tok, 64); err == nil {
						continue
					}
					add(tok)
				}
			}
		}
	}
	return cols
}

// assembleCommand joins the emitted fragments with " | ", attaching the
// Source's file path (or glob, or find|xargs prefix for Parallel) per
// SPEC_FULL §4.6's source-handling rules.
func assembleCommand(ctx context.Context, reg *registry.Registry, src *plan.Source, parallel *plan.Parallel, fragments []emit.Fragment) (string, error) {
	if len(fragments) == 0 {
		return "", plan.Errorf(plan.KindSource, "plan produces no shell stages")
	}

	cmds := make([]string, len(fragments))
	for i, f := range fragments {
		cmds[i] = f.Command
	}

	if parallel != nil {
		dir, glob := splitGlob(src.Pattern)
		workers := parallel.Workers
		if workers == plan.AUTOWorkers {
			workers = reg.CPUCount(ctx)
		}
		prefix := "find " + emit.ShellQuote(dir) + " -name " + emit.ShellQuote(glob) + " -print0 | xargs -0 -P" + strconv.Itoa(workers) + " " + cmds[0]
		cmds[0] = prefix
		return strings.Join(cmds, " | "), nil
	}

	if !src.IsGlob {
		if fragments[0].TakesFileArg {
			cmds[0] = cmds[0] + " " + emit.ShellQuote(src.Pattern)
		} else {
			cmds[0] = "cat " + emit.ShellQuote(src.Pattern) + " | " + cmds[0]
		}
		return strings.Join(cmds, " | "), nil
	}

	if fragments[0].TakesFileArg {
		// The glob itself must reach the shell unquoted so it expands
		// against the filesystem at execution time; quoting it would
		// hand the literal glob text to the tool instead.
		cmds[0] = cmds[0] + " " + src.Pattern
		return strings.Join(cmds, " | "), nil
	}

	dir, glob := splitGlob(src.Pattern)
	prefix := "find " + emit.ShellQuote(dir) + " -name " + emit.ShellQuote(glob) + " -print0 | xargs -0 cat | " + cmds[0]
	cmds[0] = prefix
	return strings.Join(cmds, " | "), nil
}

func splitGlob(pattern string) (dir, glob string) {
	dir = filepath.Dir(pattern)
	if dir == "" {
		dir = "."
	}
	glob = filepath.Base(pattern)
	return dir, glob
}

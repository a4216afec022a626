package emit

import (
	"fmt"
	"strings"

	"github.com/shellspark/shellspark/registry"
)

// SortOptions parameterizes EmitSort with everything the assembler
// already knows about the upstream stream: the 1-based field position of
// the sort key (resolved against the known column order) and the
// delimiter in use.
type SortOptions struct {
	Position      int
	Delim         byte
	Descending    bool
	Numeric       bool
	TmpDir        string
	UseDollarTab  bool // emit $'\t' instead of a literal tab byte for -t
}

// EmitSort renders `sort -t<delim> -k<pos>,<pos>[r][n]`, appending
// --parallel=<cpus> and -S 80% when the registry reports parallel
// support, and always pinning a temp dir via -T (spec §4.4.4).
func EmitSort(tool registry.SortInfo, opts SortOptions, cpus int) (Fragment, error) {
	if opts.Position < 1 {
		return Fragment{}, fmt.Errorf("emit: sort key column not found in upstream schema")
	}

	suffix := ""
	if opts.Descending {
		suffix += "r"
	}
	if opts.Numeric {
		suffix += "n"
	}

	delimToken := delimFlag(opts.Delim, opts.UseDollarTab)

	parts := []string{
		tool.Path,
		"-t" + delimToken,
		fmt.Sprintf("-k%d,%d%s", opts.Position, opts.Position, suffix),
	}
	if tool.SupportsParallel {
		parts = append(parts, fmt.Sprintf("--parallel=%d", cpus), "-S", "80%")
	}
	tmpDir := opts.TmpDir
	if tmpDir == "" {
		tmpDir = "/tmp"
	}
	parts = append(parts, "-T", ShellQuote(tmpDir))

	return Fragment{
		Command:      strings.Join(parts, " "),
		InputFormat:  Delimited,
		OutputFormat: Delimited,
		Delim:        opts.Delim,
	}, nil
}

// delimFlag renders the -t delimiter argument. The delimiter is always
// one of the two bytes the compiler itself chooses (',' or '\t'), never
// attacker- or caller-supplied text, so it is emitted literally rather
// than quoted — matching the spec's literal `sort -t, -k2,2rn` example —
// except a tab, which needs either $'\t' (bash) or a literal tab byte
// inside single quotes (POSIX sh) to be a visible, unambiguous argument
// at all (spec §6).
func delimFlag(delim byte, useDollarTab bool) string {
	if delim == '\t' {
		if useDollarTab {
			return `$'\t'`
		}
		return "'" + string(delim) + "'"
	}
	return string(delim)
}

// EmitDistinct renders Distinct: `sort -u` when it stands alone (the
// stage before it is not a sort), or `uniq` immediately after an
// existing sort stage (spec §4.4.4).
func EmitDistinct(tool registry.SortInfo, standalone bool, delim byte, useDollarTab bool) Fragment {
	if standalone {
		delimToken := delimFlag(delim, useDollarTab)
		cmd := fmt.Sprintf("%s -u -t%s", tool.Path, delimToken)
		return Fragment{Command: cmd, InputFormat: Delimited, OutputFormat: Delimited, Delim: delim}
	}
	return Fragment{Command: "uniq", InputFormat: Delimited, OutputFormat: Delimited, Delim: delim}
}

// EmitLimit renders Limit(n) as `head -n <n>`.
func EmitLimit(n int) Fragment {
	return Fragment{
		Command:      fmt.Sprintf("head -n %d", n),
		InputFormat:  Delimited,
		OutputFormat: Delimited,
	}
}

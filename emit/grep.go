package emit

import (
	"fmt"
	"strings"

	"github.com/shellspark/shellspark/plan"
	"github.com/shellspark/shellspark/registry"
)

// GrepTool carries the resolved grep-family binary and its capability
// flags, as returned by registry.Registry.ResolveGrep.
type GrepTool struct {
	Path                  string
	Variant               string // "rg" or "grep"
	SupportsFixedStrings  bool
	SupportsExtendedRegex bool
}

func grepToolFrom(info registry.GrepInfo) GrepTool {
	return GrepTool{
		Path:                  info.Path,
		Variant:               info.Variant,
		SupportsFixedStrings:  info.SupportsFixedStrings,
		SupportsExtendedRegex: info.SupportsExtendedRegex,
	}
}

// EmitLineFilters emits one LineFilter node as a single grep/rg
// invocation. Multiple consecutive LineFilters are emitted by the
// caller as a pipe chain, not fused: grep has no syntax for a
// conjunction across whole lines (spec §4.4.2).
func EmitLineFilters(tool registry.GrepInfo, node *plan.LineFilter) (Fragment, error) {
	g := grepToolFrom(tool)
	isRG := g.Variant == "rg"

	// grep needs -E to switch on extended-regex syntax; ripgrep's
	// pattern argument is already a (more expressive) regex by default
	// and has no -E flag at all, so only -F (fixed-string) is ever
	// passed to it.
	var flag string
	var pattern string
	switch node.FilterKind {
	case plan.LineContains:
		flag = "-F"
		pattern = node.Pattern
	case plan.LineRegex:
		if !isRG {
			flag = "-E"
		}
		pattern = node.Pattern
	case plan.LineStartsWith:
		if !isRG {
			flag = "-E"
		}
		pattern = "^" + regexpQuoteMeta(node.Pattern)
	case plan.LineEndsWith:
		if !isRG {
			flag = "-E"
		}
		pattern = regexpQuoteMeta(node.Pattern) + "$"
	default:
		return Fragment{}, fmt.Errorf("emit: unknown LineFilter kind %v", node.FilterKind)
	}

	var parts []string
	parts = append(parts, g.Path)
	if isRG {
		parts = append(parts, "--no-filename")
	}
	if flag != "" {
		parts = append(parts, flag)
	}
	parts = append(parts, ShellQuote(pattern))

	return Fragment{
		Command:      strings.Join(parts, " "),
		InputFormat:  Raw,
		OutputFormat: Raw,
		TakesFileArg: true,
	}, nil
}

// regexpQuoteMeta escapes extended-regex metacharacters so a literal
// startswith/endswith pattern is matched verbatim except for the anchor
// this emitter adds itself.
func regexpQuoteMeta(s string) string {
	special := `\.+*?()|[]{}^$`
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

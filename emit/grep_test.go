package emit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellspark/shellspark/plan"
	"github.com/shellspark/shellspark/registry"
)

func TestEmitLineFiltersPrefersRipgrep(t *testing.T) {
	tool := registry.GrepInfo{Path: "rg", Variant: "rg"}
	f, err := EmitLineFilters(tool, &plan.LineFilter{FilterKind: plan.LineContains, Pattern: "ERROR"})
	require.NoError(t, err)
	require.Equal(t, "rg --no-filename -F 'ERROR'", f.Command)
	require.Equal(t, Raw, f.InputFormat)
	require.True(t, f.TakesFileArg)
}

func TestEmitLineFiltersFallsBackToGrep(t *testing.T) {
	tool := registry.GrepInfo{Path: "grep", Variant: "grep"}
	f, err := EmitLineFilters(tool, &plan.LineFilter{FilterKind: plan.LineContains, Pattern: "ERROR"})
	require.NoError(t, err)
	require.Equal(t, "grep -F 'ERROR'", f.Command)
}

func TestEmitLineFiltersAnchorsStartsWith(t *testing.T) {
	tool := registry.GrepInfo{Path: "grep", Variant: "grep"}
	f, err := EmitLineFilters(tool, &plan.LineFilter{FilterKind: plan.LineStartsWith, Pattern: "GET "})
	require.NoError(t, err)
	require.Equal(t, "grep -E '^GET '", f.Command)
}

func TestEmitLineFiltersAnchorsEndsWith(t *testing.T) {
	tool := registry.GrepInfo{Path: "grep", Variant: "grep"}
	f, err := EmitLineFilters(tool, &plan.LineFilter{FilterKind: plan.LineEndsWith, Pattern: "200"})
	require.NoError(t, err)
	require.Equal(t, "grep -E '200$'", f.Command)
}

func TestEmitLineFiltersEscapesRegexMetacharsInAnchors(t *testing.T) {
	tool := registry.GrepInfo{Path: "grep", Variant: "grep"}
	f, err := EmitLineFilters(tool, &plan.LineFilter{FilterKind: plan.LineStartsWith, Pattern: "a.b*c"})
	require.NoError(t, err)
	require.Equal(t, "grep -E '^a\\.b\\*c'", f.Command)
}

func TestEmitLineFiltersQuotesShellMetacharacters(t *testing.T) {
	tool := registry.GrepInfo{Path: "grep", Variant: "grep"}
	f, err := EmitLineFilters(tool, &plan.LineFilter{FilterKind: plan.LineContains, Pattern: "a'b;c|d$e`f"})
	require.NoError(t, err)
	require.Contains(t, f.Command, `'a'\''b;c|d$e`+"`"+`f'`)
}

func TestEmitLineFiltersRegexKindUsesPatternVerbatim(t *testing.T) {
	tool := registry.GrepInfo{Path: "grep", Variant: "grep"}
	f, err := EmitLineFilters(tool, &plan.LineFilter{FilterKind: plan.LineRegex, Pattern: "^[0-9]+$"})
	require.NoError(t, err)
	require.Equal(t, "grep -E '^[0-9]+$'", f.Command)
}

func TestEmitLineFiltersRipgrepRegexHasNoExtendedFlag(t *testing.T) {
	// ripgrep has no -E option: its pattern argument is always a regex
	// unless -F is given, so no flag should be emitted here at all.
	tool := registry.GrepInfo{Path: "rg", Variant: "rg"}
	f, err := EmitLineFilters(tool, &plan.LineFilter{FilterKind: plan.LineRegex, Pattern: "^[0-9]+$"})
	require.NoError(t, err)
	require.Equal(t, "rg --no-filename '^[0-9]+$'", f.Command)
}

func TestEmitLineFiltersRipgrepAnchorsStartsWith(t *testing.T) {
	tool := registry.GrepInfo{Path: "rg", Variant: "rg"}
	f, err := EmitLineFilters(tool, &plan.LineFilter{FilterKind: plan.LineStartsWith, Pattern: "GET "})
	require.NoError(t, err)
	require.Equal(t, "rg --no-filename '^GET '", f.Command)
}

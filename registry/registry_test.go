package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeRegistry(paths map[string]string, versions map[string]string, env map[string]string) *Registry {
	r := New()
	r.lookPath = func(name string) (string, error) {
		if p, ok := paths[name]; ok {
			return p, nil
		}
		return "", errors.New("not found: " + name)
	}
	r.run = func(_ context.Context, name string, args ...string) (string, error) {
		if v, ok := versions[name]; ok {
			return v, nil
		}
		return "", errors.New("no version")
	}
	r.getenv = func(key string) string { return env[key] }
	return r
}

func TestResolveAWKPrefersMawk(t *testing.T) {
	r := fakeRegistry(map[string]string{
		"mawk": "/usr/bin/mawk",
		"gawk": "/usr/bin/gawk",
		"awk":  "/usr/bin/awk",
	}, nil, nil)

	info, err := r.ResolveAWK(context.Background())
	require.NoError(t, err)
	require.Equal(t, "mawk", info.Variant)
	require.Equal(t, "/usr/bin/mawk", info.Path)
}

func TestResolveAWKMemoizes(t *testing.T) {
	calls := 0
	r := New()
	r.lookPath = func(name string) (string, error) {
		calls++
		if name == "mawk" {
			return "/usr/bin/mawk", nil
		}
		return "", errors.New("nope")
	}
	r.run = func(context.Context, string, ...string) (string, error) { return "", errors.New("x") }
	r.getenv = func(string) string { return "" }

	ctx := context.Background()
	_, err := r.ResolveAWK(ctx)
	require.NoError(t, err)
	firstCalls := calls
	_, err = r.ResolveAWK(ctx)
	require.NoError(t, err)
	require.Equal(t, firstCalls, calls, "second resolution must not re-probe")
}

func TestResolveAWKMissingIsFatal(t *testing.T) {
	r := fakeRegistry(nil, nil, nil)
	_, err := r.ResolveAWK(context.Background())
	require.Error(t, err)
	require.True(t, ErrUnsupportedEnvironment.Is(err))
}

func TestResolveAWKEnvOverride(t *testing.T) {
	r := fakeRegistry(map[string]string{"mawk": "/usr/bin/mawk"}, nil, map[string]string{"SHELLSPARK_AWK": "/opt/busybox-awk"})
	info, err := r.ResolveAWK(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/opt/busybox-awk", info.Path)
}

func TestResolveGrepFallsBackWhenRipgrepAbsent(t *testing.T) {
	r := fakeRegistry(map[string]string{"grep": "/usr/bin/grep"}, nil, nil)
	info, err := r.ResolveGrep(context.Background())
	require.NoError(t, err)
	require.Equal(t, "grep", info.Variant)
}

func TestResolveGrepPrefersRipgrep(t *testing.T) {
	r := fakeRegistry(map[string]string{"rg": "/usr/bin/rg", "grep": "/usr/bin/grep"}, nil, nil)
	info, err := r.ResolveGrep(context.Background())
	require.NoError(t, err)
	require.Equal(t, "rg", info.Variant)
}

func TestResolveGrepMissingIsFatal(t *testing.T) {
	r := fakeRegistry(nil, nil, nil)
	_, err := r.ResolveGrep(context.Background())
	require.Error(t, err)
	require.True(t, ErrUnsupportedEnvironment.Is(err))
}

func TestResolveSortDetectsGNU(t *testing.T) {
	r := fakeRegistry(map[string]string{"sort": "/usr/bin/sort"}, map[string]string{"/usr/bin/sort": "sort (GNU coreutils) 8.32"}, nil)
	info, err := r.ResolveSort(context.Background())
	require.NoError(t, err)
	require.True(t, info.SupportsParallel)
	require.True(t, info.SupportsBufferSize)
}

func TestResolveSortBSDLacksParallel(t *testing.T) {
	r := fakeRegistry(map[string]string{"sort": "/usr/bin/sort"}, map[string]string{"/usr/bin/sort": "bsd sort"}, nil)
	info, err := r.ResolveSort(context.Background())
	require.NoError(t, err)
	require.False(t, info.SupportsParallel)
}

func TestResolveJQAbsentIsNotFatal(t *testing.T) {
	r := fakeRegistry(nil, nil, nil)
	_, ok := r.ResolveJQ(context.Background())
	require.False(t, ok)
}

func TestResolveJQFound(t *testing.T) {
	r := fakeRegistry(map[string]string{"jq": "/usr/bin/jq"}, nil, nil)
	info, ok := r.ResolveJQ(context.Background())
	require.True(t, ok)
	require.Equal(t, "/usr/bin/jq", info.Path)
}

func TestCPUCountFallsBackToOne(t *testing.T) {
	r := fakeRegistry(nil, nil, nil)
	n := r.CPUCount(context.Background())
	require.Equal(t, 1, n)
}

func TestCPUCountFromNproc(t *testing.T) {
	r := fakeRegistry(nil, map[string]string{"nproc": "8\n"}, nil)
	n := r.CPUCount(context.Background())
	require.Equal(t, 8, n)
}

func TestClearForcesReprobe(t *testing.T) {
	calls := 0
	r := New()
	r.lookPath = func(name string) (string, error) {
		calls++
		return "/usr/bin/" + name, nil
	}
	r.run = func(context.Context, string, ...string) (string, error) { return "", errors.New("x") }
	r.getenv = func(string) string { return "" }

	ctx := context.Background()
	_, _ = r.ResolveAWK(ctx)
	afterFirst := calls
	r.Clear()
	_, _ = r.ResolveAWK(ctx)
	require.Greater(t, calls, afterFirst)
}

func TestFingerprintChangesWithResolution(t *testing.T) {
	r1 := fakeRegistry(map[string]string{"mawk": "/usr/bin/mawk", "grep": "/usr/bin/grep", "sort": "/usr/bin/sort"}, nil, nil)
	fp1, err := r1.Fingerprint(context.Background())
	require.NoError(t, err)

	r2 := fakeRegistry(map[string]string{"gawk": "/usr/bin/gawk", "grep": "/usr/bin/grep", "sort": "/usr/bin/sort"}, nil, nil)
	fp2, err := r2.Fingerprint(context.Background())
	require.NoError(t, err)

	require.NotEqual(t, fp1, fp2)
}

func TestFingerprintStableAcrossRepeatedCalls(t *testing.T) {
	r := fakeRegistry(map[string]string{"mawk": "/usr/bin/mawk", "grep": "/usr/bin/grep", "sort": "/usr/bin/sort"}, nil, nil)
	fp1, err := r.Fingerprint(context.Background())
	require.NoError(t, err)
	fp2, err := r.Fingerprint(context.Background())
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)
}

// resolver_test.go: Tests for dependency ordering, conflicts and version selection
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deps(pairs ...string) map[string]string {
	out := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = pairs[i+1]
	}
	return out
}

func TestResolve(t *testing.T) {
	t.Run("DependenciesComeFirst", func(t *testing.T) {
		plugins := map[string]PluginDescriptor{
			"api":     {Version: "1.0.0", Dependencies: deps("auth", "^1.0.0", "storage", "*")},
			"auth":    {Version: "1.2.0", Dependencies: deps("storage", ">=2.0.0")},
			"storage": {Version: "2.1.0"},
			"metrics": {Version: "0.1.0"},
		}

		order, err := Resolve(plugins)
		require.NoError(t, err)

		position := make(map[string]int, len(order))
		for i, name := range order {
			position[name] = i
		}
		for name, p := range plugins {
			for dep := range p.Dependencies {
				assert.Less(t, position[dep], position[name], "%s must precede %s", dep, name)
			}
		}
		assert.Len(t, order, len(plugins))
	})

	t.Run("TiesBrokenByName", func(t *testing.T) {
		plugins := map[string]PluginDescriptor{
			"zeta":  {},
			"alpha": {},
			"mid":   {Dependencies: deps("zeta", "*")},
			"beta":  {},
		}

		first, err := Resolve(plugins)
		require.NoError(t, err)
		if diff := cmp.Diff([]string{"alpha", "beta", "zeta", "mid"}, first); diff != "" {
			t.Fatalf("order mismatch (-want +got):\n%s", diff)
		}

		for i := 0; i < 20; i++ {
			again, err := Resolve(plugins)
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(first, again), "resolution must be deterministic")
		}
	})

	t.Run("MissingDependency", func(t *testing.T) {
		_, err := Resolve(map[string]PluginDescriptor{
			"auth": {Dependencies: deps("storage", "^1.0.0")},
		})
		require.Error(t, err)
		assert.True(t, HasErrorCode(err, ErrCodeMissingDependency))
	})

	t.Run("CircularDependencyNamesRemainingPlugins", func(t *testing.T) {
		_, err := Resolve(map[string]PluginDescriptor{
			"a":    {Dependencies: deps("b", "*")},
			"b":    {Dependencies: deps("c", "*")},
			"c":    {Dependencies: deps("a", "*")},
			"free": {},
		})
		require.Error(t, err)
		assert.True(t, HasErrorCode(err, ErrCodeCircularDependency))
		assert.Contains(t, err.Error(), "a, b, c")
		assert.NotContains(t, err.Error(), "free")
	})

	t.Run("EmptyInput", func(t *testing.T) {
		order, err := Resolve(map[string]PluginDescriptor{})
		require.NoError(t, err)
		assert.Empty(t, order)
	})
}

func TestIsAcyclic(t *testing.T) {
	assert.True(t, IsAcyclic(map[string]PluginDescriptor{
		"a": {Dependencies: deps("b", "*")},
		"b": {},
	}))
	assert.False(t, IsAcyclic(map[string]PluginDescriptor{
		"a": {Dependencies: deps("b", "*")},
		"b": {Dependencies: deps("a", "*")},
	}))
	assert.False(t, IsAcyclic(map[string]PluginDescriptor{
		"a": {Dependencies: deps("ghost", "*")},
	}))
}

func TestDetectConflicts(t *testing.T) {
	t.Run("VersionMismatch", func(t *testing.T) {
		conflicts := DetectConflicts(map[string]PluginDescriptor{
			"storage": {Version: "1.5.0"},
			"auth":    {Version: "1.0.0", Dependencies: deps("storage", "^2.0.0")},
			"cache":   {Version: "1.0.0", Dependencies: deps("storage", "^1.0.0")},
		})

		require.Len(t, conflicts, 1)
		c := conflicts[0]
		assert.Equal(t, ConflictVersionMismatch, c.Type)
		assert.Equal(t, "storage", c.Dependency)
		assert.Equal(t, "1.5.0", c.Installed)
		assert.Equal(t, []string{"auth"}, c.Plugins)
		assert.Equal(t, map[string]string{"auth": "^2.0.0", "cache": "^1.0.0"}, c.Constraints)
		assert.Equal(t, "upgrade", c.Resolution.Strategy)
		assert.False(t, c.Resolution.Automatic)
	})

	t.Run("UnversionedDependencyIsNotChecked", func(t *testing.T) {
		conflicts := DetectConflicts(map[string]PluginDescriptor{
			"storage": {},
			"auth":    {Dependencies: deps("storage", "^9.0.0")},
		})
		assert.Empty(t, conflicts)
	})

	t.Run("Cycle", func(t *testing.T) {
		conflicts := DetectConflicts(map[string]PluginDescriptor{
			"a": {Version: "1.0.0", Dependencies: deps("b", "*")},
			"b": {Version: "1.0.0", Dependencies: deps("a", "*")},
		})
		require.Len(t, conflicts, 1)
		assert.Equal(t, ConflictCircularDependency, conflicts[0].Type)
		assert.Equal(t, []string{"a", "b"}, conflicts[0].Plugins)
	})

	t.Run("NoConflicts", func(t *testing.T) {
		assert.Empty(t, DetectConflicts(map[string]PluginDescriptor{
			"storage": {Version: "2.3.0"},
			"auth":    {Dependencies: deps("storage", "~2.3.0")},
		}))
	})
}

func TestFindBestVersion(t *testing.T) {
	available := []string{"1.0.0", "1.4.2", "2.0.0-rc.1", "2.0.0", "2.1.0", "bogus"}

	tests := []struct {
		name        string
		constraints []string
		want        string
		found       bool
	}{
		{"NoConstraints", nil, "2.1.0", true},
		{"CaretOne", []string{"^1.0.0"}, "1.4.2", true},
		{"Intersection", []string{">=1.2.0", "<2.1.0"}, "2.0.0", true},
		{"Unsatisfiable", []string{"^3.0.0"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindBestVersion(available, tt.constraints)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDependencyGraph(t *testing.T) {
	graph := BuildDependencyGraph(map[string]PluginDescriptor{
		"api":     {Dependencies: deps("auth", "*", "storage", "*")},
		"auth":    {Dependencies: deps("storage", "*")},
		"storage": {},
	})

	assert.Equal(t, []string{"auth", "storage"}, graph.Dependencies("api"))
	assert.Equal(t, []string{"api", "auth"}, graph.Dependents("storage"))
	assert.Empty(t, graph.Dependents("api"))
	assert.Equal(t, []string{"api", "auth", "storage"}, graph.Nodes())
}

// version_test.go: Tests for semantic version parsing, ordering and constraints
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	t.Run("ParsesAllComponents", func(t *testing.T) {
		v, err := ParseVersion("1.2.3-rc.1+build.42")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), v.Major)
		assert.Equal(t, uint64(2), v.Minor)
		assert.Equal(t, uint64(3), v.Patch)
		assert.Equal(t, "rc.1", v.PreRelease)
		assert.Equal(t, "build.42", v.Build)
		assert.Equal(t, "1.2.3-rc.1+build.42", v.String())
	})

	t.Run("RejectsMalformedInput", func(t *testing.T) {
		for _, input := range []string{"", "1", "1.2", "1.2.x", "v1.2.3", "1.2.3-", "1.2.3+", "01.2.3.4", "a.b.c"} {
			_, err := ParseVersion(input)
			require.Error(t, err, "input %q", input)
			assert.True(t, HasErrorCode(err, ErrCodeInvalidVersion), "input %q", input)
		}
	})

	t.Run("MustParseVersionPanicsOnGarbage", func(t *testing.T) {
		assert.Panics(t, func() { MustParseVersion("not-a-version") })
		assert.NotPanics(t, func() { MustParseVersion("0.0.1") })
	})
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"2.1.0", "2.0.9", 1},
		{"1.0.10", "1.0.9", 1},
		{"1.0.0", "1.0.0-rc.1", 1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
		{"1.0.0+build.1", "1.0.0+build.2", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			a, b := MustParseVersion(tt.a), MustParseVersion(tt.b)
			assert.Equal(t, tt.want, CompareVersions(a, b))
			assert.Equal(t, -tt.want, CompareVersions(b, a), "comparison must be antisymmetric")
		})
	}
}

func TestCompareVersions_Transitive(t *testing.T) {
	ascending := []string{
		"0.9.9",
		"1.0.0-alpha",
		"1.0.0-alpha.1",
		"1.0.0-beta",
		"1.0.0-rc.1",
		"1.0.0",
		"1.0.1",
		"1.1.0",
		"2.0.0",
	}
	versions := make([]*Version, len(ascending))
	for i, s := range ascending {
		versions[i] = MustParseVersion(s)
	}

	for i := range versions {
		for j := i + 1; j < len(versions); j++ {
			require.Equal(t, -1, CompareVersions(versions[i], versions[j]), "%s < %s", ascending[i], ascending[j])
			for k := j + 1; k < len(versions); k++ {
				assert.Equal(t, -1, CompareVersions(versions[i], versions[k]),
					"%s < %s and %s < %s", ascending[i], ascending[j], ascending[j], ascending[k])
			}
		}
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		version    string
		constraint string
		want       bool
	}{
		{"1.4.2", "^1.2.0", true},
		{"2.0.0", "^1.2.0", false},
		{"1.1.9", "^1.2.0", false},
		{"1.2.9", "~1.2.3", true},
		{"1.3.0", "~1.2.3", false},
		{"1.2.2", "~1.2.3", false},
		{"1.5.0", "1.0.0 - 2.0.0", true},
		{"2.0.0", "1.0.0 - 2.0.0", true},
		{"2.0.1", "1.0.0 - 2.0.0", false},
		{"3.0.0", ">=2.0.0", true},
		{"2.0.0", ">2.0.0", false},
		{"1.9.9", "<2.0.0", true},
		{"2.0.0", "<=2.0.0", true},
		{"1.2.3", "=1.2.3", true},
		{"1.2.3", "1.2.3", true},
		{"1.2.4", "1.2.3", false},
		{"0.0.1", "*", true},
		{"0.0.1", "latest", true},
		{"0.0.1", "", true},
		{"1.0.0", "!=1.0.0", false},
		{"1.0.0", "^garbage", false},
		{"garbage", "*", false},
	}

	for _, tt := range tests {
		t.Run(tt.version+"_"+tt.constraint, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, Satisfies(tt.version, tt.constraint))
			})
		})
	}
}

func TestGetCompatibilityLevel(t *testing.T) {
	tests := []struct {
		from, to string
		want     CompatibilityLevel
	}{
		{"1.2.3", "1.2.3", CompatibilityFull},
		{"1.2.3", "1.2.9", CompatibilityFull},
		{"1.2.3", "1.3.0", CompatibilityBackward},
		{"1.2.3", "2.0.0", CompatibilityBreaking},
		{"2.0.0", "1.9.9", CompatibilityNone},
		{"1.2.3", "1.2.2", CompatibilityNone},
	}

	for _, tt := range tests {
		t.Run(tt.from+"_to_"+tt.to, func(t *testing.T) {
			level, err := GetCompatibilityLevel(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}

	t.Run("MalformedInput", func(t *testing.T) {
		_, err := GetCompatibilityLevel("1.0", "1.0.0")
		assert.True(t, HasErrorCode(err, ErrCodeInvalidVersion))
	})
}

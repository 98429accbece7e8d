// version.go: Semantic version parsing, comparison and constraint matching
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed semantic version.
//
// Example usage:
//
//	v, err := ParseVersion("1.2.3-beta.1+build.123")
//	if err != nil {
//	    return err
//	}
//	if Satisfies(v.String(), "^1.0.0") {
//	    // same major, not older than 1.0.0
//	}
type Version struct {
	Major      uint64 `json:"major"`
	Minor      uint64 `json:"minor"`
	Patch      uint64 `json:"patch"`
	PreRelease string `json:"prerelease,omitempty"`
	Build      string `json:"build,omitempty"`
}

// CompatibilityLevel classifies the jump between two versions.
type CompatibilityLevel string

const (
	CompatibilityFull     CompatibilityLevel = "fully-compatible"
	CompatibilityBackward CompatibilityLevel = "backward-compatible"
	CompatibilityBreaking CompatibilityLevel = "breaking-changes"
	CompatibilityNone     CompatibilityLevel = "incompatible"
)

var versionPattern = regexp.MustCompile(
	`^(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)

// ParseVersion parses a strict MAJOR.MINOR.PATCH version with optional
// -prerelease and +build suffixes.
func ParseVersion(s string) (*Version, error) {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, NewInvalidVersionError(s)
	}

	var parts [3]uint64
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseUint(m[i+1], 10, 64)
		if err != nil {
			return nil, NewInvalidVersionError(s)
		}
		parts[i] = n
	}

	return &Version{
		Major:      parts[0],
		Minor:      parts[1],
		Patch:      parts[2],
		PreRelease: m[4],
		Build:      m[5],
	}, nil
}

// MustParseVersion is like ParseVersion but panics on malformed input.
func MustParseVersion(s string) *Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version back to its canonical form.
func (v *Version) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(v.Major, 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(v.Minor, 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(v.Patch, 10))
	if v.PreRelease != "" {
		b.WriteByte('-')
		b.WriteString(v.PreRelease)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// Compare compares two versions. Returns -1, 0, or 1.
// Build metadata does not take part in ordering.
func (v *Version) Compare(other *Version) int {
	if result := compareComponent(v.Major, other.Major); result != 0 {
		return result
	}
	if result := compareComponent(v.Minor, other.Minor); result != 0 {
		return result
	}
	if result := compareComponent(v.Patch, other.Patch); result != 0 {
		return result
	}
	return comparePreRelease(v.PreRelease, other.PreRelease)
}

// CompareVersions compares a and b. Returns -1, 0, or 1.
func CompareVersions(a, b *Version) int {
	return a.Compare(b)
}

func compareComponent(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// comparePreRelease orders a release above any prerelease of the same
// numbers; two prereleases compare lexically.
func comparePreRelease(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	default:
		return strings.Compare(a, b)
	}
}

// Satisfies reports whether version satisfies constraint.
//
// Supported constraint forms:
//   - "1.2.3" or "=1.2.3" - exact match
//   - "*", "latest" or "" - any version
//   - "^1.2.3" - same major, >= 1.2.3
//   - "~1.2.3" - same major and minor, >= 1.2.3
//   - ">=1.2.3", ">1.2.3", "<=1.2.3", "<1.2.3"
//   - "1.0.0 - 2.0.0" - closed range
//
// Malformed versions and unsupported syntax yield false.
func Satisfies(version, constraint string) bool {
	v, err := ParseVersion(version)
	if err != nil {
		return false
	}
	return v.Satisfies(constraint)
}

// Satisfies reports whether the version satisfies constraint.
func (v *Version) Satisfies(constraint string) bool {
	c := strings.TrimSpace(constraint)

	if c == "" || c == "*" || c == "latest" {
		return true
	}

	if lower, upper, ok := strings.Cut(c, " - "); ok {
		return v.satisfiesRange(lower, upper)
	}

	for _, op := range []string{">=", "<=", ">", "<", "=", "^", "~"} {
		if strings.HasPrefix(c, op) {
			target, err := ParseVersion(strings.TrimSpace(strings.TrimPrefix(c, op)))
			if err != nil {
				return false
			}
			return v.satisfiesOperator(op, target)
		}
	}

	target, err := ParseVersion(c)
	if err != nil {
		return false
	}
	return v.Compare(target) == 0
}

func (v *Version) satisfiesOperator(op string, target *Version) bool {
	cmp := v.Compare(target)
	switch op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case "=":
		return cmp == 0
	case "^":
		return v.Major == target.Major && cmp >= 0
	case "~":
		return v.Major == target.Major && v.Minor == target.Minor && cmp >= 0
	default:
		return false
	}
}

func (v *Version) satisfiesRange(lower, upper string) bool {
	lo, err := ParseVersion(lower)
	if err != nil {
		return false
	}
	hi, err := ParseVersion(upper)
	if err != nil {
		return false
	}
	return v.Compare(lo) >= 0 && v.Compare(hi) <= 0
}

// GetCompatibilityLevel classifies the move from one version to another.
func GetCompatibilityLevel(from, to string) (CompatibilityLevel, error) {
	f, err := ParseVersion(from)
	if err != nil {
		return "", err
	}
	t, err := ParseVersion(to)
	if err != nil {
		return "", err
	}

	cmp := t.Compare(f)
	switch {
	case cmp == 0:
		return CompatibilityFull, nil
	case cmp < 0:
		return CompatibilityNone, nil
	case t.Major != f.Major:
		return CompatibilityBreaking, nil
	case t.Minor != f.Minor:
		return CompatibilityBackward, nil
	default:
		return CompatibilityFull, nil
	}
}

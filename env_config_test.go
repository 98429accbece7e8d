// env_config_test.go: Tests for environment variable expansion in configuration files
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"strings"
	"testing"
)

// TestExpandEnvironmentVariables_ResolutionOrder tests prefixed, bare, inline and fallback resolution
func TestExpandEnvironmentVariables_ResolutionOrder(t *testing.T) {
	t.Setenv("MICROKERNEL_MK_TEST_HOST", "prefixed.local")
	t.Setenv("MK_TEST_HOST", "bare.local")
	t.Setenv("MK_TEST_PORT", "6380")

	options := DefaultEnvConfigOptions()
	options.Defaults["MK_TEST_DB"] = "3"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"PrefixedWins", "${MK_TEST_HOST}", "prefixed.local"},
		{"BareVariable", "${MK_TEST_PORT}", "6380"},
		{"EnvironmentBeatsInlineDefault", "${MK_TEST_PORT:-6379}", "6380"},
		{"InlineDefault", "${MK_TEST_UNSET:-fallback}", "fallback"},
		{"EmptyInlineDefault", "x${MK_TEST_UNSET:-}y", "xy"},
		{"OptionsDefault", "db=${MK_TEST_DB}", "db=3"},
		{"MissingIsEmpty", "[${MK_TEST_UNSET}]", "[]"},
		{"NoPlaceholders", "plain: value", "plain: value"},
		{"Mixed", "${MK_TEST_HOST}:${MK_TEST_PORT}", "prefixed.local:6380"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnvironmentVariables(tt.input, options)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestExpandEnvironmentVariables_EmptyValueFallsThrough tests that empty variables count as unset
func TestExpandEnvironmentVariables_EmptyValueFallsThrough(t *testing.T) {
	t.Setenv("MK_TEST_EMPTY", "")

	got, err := ExpandEnvironmentVariables("${MK_TEST_EMPTY:-default}", DefaultEnvConfigOptions())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "default" {
		t.Errorf("Expected inline default for an empty variable, got %q", got)
	}
}

// TestExpandEnvironmentVariables_FailOnMissing tests required variables
func TestExpandEnvironmentVariables_FailOnMissing(t *testing.T) {
	options := DefaultEnvConfigOptions()
	options.FailOnMissing = true

	_, err := ExpandEnvironmentVariables("addr: ${MK_TEST_REQUIRED}", options)
	if err == nil {
		t.Fatal("Expected error for a missing required variable")
	}
	if !HasErrorCode(err, ErrCodeConfigValidation) {
		t.Errorf("Expected config validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "MK_TEST_REQUIRED") {
		t.Errorf("Error does not describe the missing variable: %v", err)
	}

	got, err := ExpandEnvironmentVariables("${MK_TEST_REQUIRED:-ok}", options)
	if err != nil || got != "ok" {
		t.Errorf("Expected inline default to satisfy FailOnMissing, got %q, %v", got, err)
	}
}

// TestExpandEnvironmentVariables_Validation tests rejection of unsafe values
func TestExpandEnvironmentVariables_Validation(t *testing.T) {
	t.Setenv("MK_TEST_LONG", strings.Repeat("a", maxEnvValueLength+1))
	t.Setenv("MK_TEST_CONTROL", "line1\nline2")
	t.Setenv("MK_TEST_TAB", "a\tb")

	options := DefaultEnvConfigOptions()

	for _, name := range []string{"MK_TEST_LONG", "MK_TEST_CONTROL"} {
		t.Run(name, func(t *testing.T) {
			_, err := ExpandEnvironmentVariables("${"+name+"}", options)
			if !HasErrorCode(err, ErrCodeConfigValidation) {
				t.Errorf("Expected config validation error, got %v", err)
			}
		})
	}

	t.Run("TabAllowed", func(t *testing.T) {
		got, err := ExpandEnvironmentVariables("${MK_TEST_TAB}", options)
		if err != nil || got != "a\tb" {
			t.Errorf("Expected tab to pass validation, got %q, %v", got, err)
		}
	})

	t.Run("ValidationDisabled", func(t *testing.T) {
		options.ValidateValues = false
		got, err := ExpandEnvironmentVariables("${MK_TEST_CONTROL}", options)
		if err != nil || got != "line1\nline2" {
			t.Errorf("Expected raw value with validation off, got %q, %v", got, err)
		}
	})
}

// errors_test.go: test coverage for structured error definitions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/agilira/go-errors"
)

// TestKernelErrorConstructors tests the kernel state and registry errors
func TestKernelErrorConstructors(t *testing.T) {
	t.Run("NewInvalidStateError", func(t *testing.T) {
		err := NewInvalidStateError("use", StateRunning)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeInvalidState) {
			t.Errorf("Expected error code %s, got %s", ErrCodeInvalidState, err.ErrorCode())
		}
		if err.Context["operation"] != "use" {
			t.Errorf("Expected operation context 'use', got %v", err.Context["operation"])
		}
		if err.Context["state"] != "running" {
			t.Errorf("Expected state context 'running', got %v", err.Context["state"])
		}
		if err.IsRetryable() {
			t.Error("Expected error to not be retryable")
		}
	})

	t.Run("NewInvalidPluginNameError", func(t *testing.T) {
		err := NewInvalidPluginNameError("")

		if err.Context["provided_name"] != "" {
			t.Errorf("Expected empty provided_name context, got %v", err.Context["provided_name"])
		}

		expectedMsg := "Plugin name is required and cannot be empty"
		if err.UserMessage() != expectedMsg {
			t.Errorf("Expected user message %q, got %q", expectedMsg, err.UserMessage())
		}
		if err.Severity != "error" {
			t.Errorf("Expected severity 'error', got %q", err.Severity)
		}
	})

	t.Run("NewDependencyInUseError", func(t *testing.T) {
		err := NewDependencyInUseError("storage", []string{"api", "auth"})

		if err.Context["dependents"] != "api,auth" {
			t.Errorf("Expected dependents 'api,auth', got %v", err.Context["dependents"])
		}
	})

	t.Run("NewLifecycleFailedError", func(t *testing.T) {
		cause := fmt.Errorf("connection reset")
		err := NewLifecycleFailedError("auth", "destroy", cause)

		if err.Cause == nil {
			t.Error("Expected error to carry its cause")
		}
		if err.Context["phase"] != "destroy" {
			t.Errorf("Expected phase 'destroy', got %v", err.Context["phase"])
		}
		if !strings.Contains(err.Error(), "Plugin destroy failed") {
			t.Errorf("Expected message to name the phase, got %q", err.Error())
		}
	})

	t.Run("NewPluginDisabledError", func(t *testing.T) {
		err := NewPluginDisabledError("legacy")

		if err.Severity != "warning" {
			t.Errorf("Expected severity 'warning', got %q", err.Severity)
		}
	})
}

// TestResolutionErrorConstructors tests the dependency resolution errors
func TestResolutionErrorConstructors(t *testing.T) {
	t.Run("NewCircularDependencyError", func(t *testing.T) {
		err := NewCircularDependencyError([]string{"a", "b", "c"})

		if !strings.Contains(err.Error(), "Circular dependency detected: a, b, c") {
			t.Errorf("Expected message to list the cycle, got %q", err.Error())
		}
		if err.Context["plugins"] != "a,b,c" {
			t.Errorf("Expected plugins context 'a,b,c', got %v", err.Context["plugins"])
		}
	})

	t.Run("NewVersionMismatchError", func(t *testing.T) {
		err := NewVersionMismatchError("storage", "1.5.0", "^2.0.0", "auth")

		expected := map[string]string{
			"dependency":  "storage",
			"installed":   "1.5.0",
			"constraint":  "^2.0.0",
			"required_by": "auth",
		}
		for key, want := range expected {
			if err.Context[key] != want {
				t.Errorf("Expected %s context %q, got %v", key, want, err.Context[key])
			}
		}
	})

	t.Run("NewMissingDependencyError", func(t *testing.T) {
		err := NewMissingDependencyError("auth", "storage")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeMissingDependency) {
			t.Errorf("Expected error code %s, got %s", ErrCodeMissingDependency, err.ErrorCode())
		}
		if err.Context["dependency"] != "storage" {
			t.Errorf("Expected dependency 'storage', got %v", err.Context["dependency"])
		}
	})
}

// TestHealthErrorConstructors tests the health supervision errors
func TestHealthErrorConstructors(t *testing.T) {
	t.Run("NewHealthCheckTimeoutError", func(t *testing.T) {
		err := NewHealthCheckTimeoutError("db", 5*time.Second)

		if !err.IsRetryable() {
			t.Error("Expected timeout error to be retryable")
		}
		if err.Context["timeout"] != 5*time.Second {
			t.Errorf("Expected timeout context 5s, got %v", err.Context["timeout"])
		}
	})

	t.Run("NewRestartFailedError", func(t *testing.T) {
		err := NewRestartFailedError("worker", 2, fmt.Errorf("port still bound"))

		if err.Cause == nil {
			t.Error("Expected error to carry its cause")
		}
		if err.Context["attempt"] != 2 {
			t.Errorf("Expected attempt context 2, got %v", err.Context["attempt"])
		}
	})

	t.Run("NewHealthCheckPanicError", func(t *testing.T) {
		err := NewHealthCheckPanicError("db", "nil pointer")

		if err.Context["panic"] != "nil pointer" {
			t.Errorf("Expected panic context, got %v", err.Context["panic"])
		}
	})
}

// TestSandboxErrorConstructors tests the sandbox errors
func TestSandboxErrorConstructors(t *testing.T) {
	err := NewSandboxViolationError("auth", ResourceNetwork, "https://evil.org", "host evil.org is not in allowed hosts")

	if err.ErrorCode() != errors.ErrorCode(ErrCodeSandboxViolation) {
		t.Errorf("Expected error code %s, got %s", ErrCodeSandboxViolation, err.ErrorCode())
	}
	if err.Context["resource"] != "network" {
		t.Errorf("Expected resource 'network', got %v", err.Context["resource"])
	}
	if err.Context["target"] != "https://evil.org" {
		t.Errorf("Expected target context, got %v", err.Context["target"])
	}

	invalid := NewInvalidPolicyError("auth", "unknown sandbox level")
	if !strings.Contains(invalid.Error(), "unknown sandbox level") {
		t.Errorf("Expected message to carry the policy problem, got %q", invalid.Error())
	}
}

// TestConfigErrorConstructors tests the configuration errors
func TestConfigErrorConstructors(t *testing.T) {
	t.Run("NewConfigWatcherErrorWithoutCause", func(t *testing.T) {
		err := NewConfigWatcherError("watcher already stopped", nil)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeConfigWatcher) {
			t.Errorf("Expected error code %s, got %s", ErrCodeConfigWatcher, err.ErrorCode())
		}
		if err.Cause != nil {
			t.Errorf("Expected no cause, got %v", err.Cause)
		}
	})

	t.Run("NewConfigWatcherErrorWithCause", func(t *testing.T) {
		err := NewConfigWatcherError("failed to watch", fmt.Errorf("too many files"))

		if err.Cause == nil {
			t.Error("Expected error to carry its cause")
		}
	})

	t.Run("NewStorageUnavailableError", func(t *testing.T) {
		err := NewStorageUnavailableError("redis", fmt.Errorf("dial tcp: refused"))

		if !err.IsRetryable() {
			t.Error("Expected storage unavailability to be retryable")
		}
		if err.Context["backend"] != "redis" {
			t.Errorf("Expected backend 'redis', got %v", err.Context["backend"])
		}
	})
}

// TestHasErrorCode tests code matching through plain and wrapped errors
func TestHasErrorCode(t *testing.T) {
	structured := NewPluginNotFoundError("ghost")

	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
		want bool
	}{
		{"Direct", structured, ErrCodePluginNotFound, true},
		{"OtherCode", structured, ErrCodeAlreadyRegistered, false},
		{"WrappedByFmt", fmt.Errorf("deactivate: %w", structured), ErrCodePluginNotFound, true},
		{"PlainError", stderrors.New("boom"), ErrCodePluginNotFound, false},
		{"Nil", nil, ErrCodePluginNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasErrorCode(tt.err, tt.code); got != tt.want {
				t.Errorf("HasErrorCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

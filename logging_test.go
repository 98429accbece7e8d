// logging_test.go: logging interface tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	"sync"
	"testing"
)

// TestLogger_BasicMessageCapture tests Debug(), Info(), Warn() and Error() capture
func TestLogger_BasicMessageCapture(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(*TestLogger, string, ...any)
		level   string
	}{
		{"Debug", (*TestLogger).Debug, "DEBUG"},
		{"Info", (*TestLogger).Info, "INFO"},
		{"Warn", (*TestLogger).Warn, "WARN"},
		{"Error", (*TestLogger).Error, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewTestLogger()
			tt.logFunc(logger, "message", "key", "value")

			messages := logger.Messages()
			if len(messages) != 1 {
				t.Fatalf("Expected 1 message, got %d", len(messages))
			}
			if messages[0].Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, messages[0].Level)
			}
			if !logger.HasMessage(tt.level, "message") {
				t.Error("HasMessage did not find the captured message")
			}
			if len(messages[0].Args) != 2 || messages[0].Args[1] != "value" {
				t.Errorf("Unexpected args %v", messages[0].Args)
			}
		})
	}
}

// TestLogger_WithSharesSink tests that derived loggers record into the parent
func TestLogger_WithSharesSink(t *testing.T) {
	root := NewTestLogger()
	scoped := root.With("kernel_id", "k1").With("plugin", "auth")

	scoped.Info("auth init", "realm", "internal")

	messages := root.Messages()
	if len(messages) != 1 {
		t.Fatalf("Expected scoped message on the root logger, got %d", len(messages))
	}

	want := []any{"kernel_id", "k1", "plugin", "auth", "realm", "internal"}
	if len(messages[0].Args) != len(want) {
		t.Fatalf("Expected args %v, got %v", want, messages[0].Args)
	}
	for i := range want {
		if messages[0].Args[i] != want[i] {
			t.Errorf("Arg %d: expected %v, got %v", i, want[i], messages[0].Args[i])
		}
	}

	root.Clear()
	if len(root.Messages()) != 0 {
		t.Error("Clear did not remove messages")
	}
}

// TestLogger_Concurrent tests concurrent logging from derived loggers
func TestLogger_Concurrent(t *testing.T) {
	root := NewTestLogger()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l := root.With("worker", n)
			for j := 0; j < 50; j++ {
				l.Debug("tick")
			}
		}(i)
	}
	wg.Wait()

	if got := len(root.Messages()); got != 400 {
		t.Errorf("Expected 400 messages, got %d", got)
	}
}

// TestNewLogger tests logger normalization
func TestNewLogger(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		if _, ok := NewLogger(nil).(*NoOpLogger); !ok {
			t.Error("Expected NoOpLogger for nil")
		}
	})

	t.Run("Logger", func(t *testing.T) {
		logger := NewTestLogger()
		if NewLogger(logger) != Logger(logger) {
			t.Error("Expected the same logger back")
		}
	})

	t.Run("UnsupportedTypePanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Expected panic for unsupported logger type")
			}
		}()
		NewLogger("stdout")
	})

	t.Run("NoOpWithReturnsItself", func(t *testing.T) {
		noop := NewNoOpLogger()
		if noop.With("a", 1) != Logger(noop) {
			t.Error("Expected NoOpLogger.With to return the same logger")
		}
		noop.Info("ignored")
	})
}

// TestLoggerContext tests logger propagation through context
func TestLoggerContext(t *testing.T) {
	if _, ok := LoggerFromContext(context.Background()).(*NoOpLogger); !ok {
		t.Error("Expected NoOpLogger when the context carries none")
	}

	logger := NewTestLogger()
	ctx := ContextWithLogger(context.Background(), logger)
	LoggerFromContext(ctx).Warn("from context")

	if !logger.HasMessage("WARN", "from context") {
		t.Error("Expected message logged through the context logger")
	}
}

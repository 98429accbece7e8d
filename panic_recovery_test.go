// panic_recovery_test.go: panic recovery tests for goroutines and guarded callbacks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestPanicRecovery_WithStackRecover tests basic panic recovery with logging
func TestPanicRecovery_WithStackRecover(t *testing.T) {
	t.Run("RecoversPanic_WithStackTrace", func(t *testing.T) {
		logger := NewTestLogger()

		func() {
			defer withStackRecover(logger)()
			panic("test panic message")
		}()

		messages := logger.Messages()
		if len(messages) != 1 {
			t.Fatalf("Expected 1 log message, got %d", len(messages))
		}

		logMsg := messages[0]
		if logMsg.Level != "ERROR" {
			t.Errorf("Expected ERROR level, got %s", logMsg.Level)
		}
		if logMsg.Message != "Panic recovered in goroutine" {
			t.Errorf("Expected 'Panic recovered in goroutine', got %s", logMsg.Message)
		}

		var panicValue interface{}
		var stackTrace string
		for i := 0; i < len(logMsg.Args)-1; i += 2 {
			key, ok := logMsg.Args[i].(string)
			if !ok {
				continue
			}
			switch key {
			case "panic":
				panicValue = logMsg.Args[i+1]
			case "stack":
				stackTrace, _ = logMsg.Args[i+1].(string)
			}
		}

		if panicValue != "test panic message" {
			t.Errorf("Expected panic value 'test panic message', got %v", panicValue)
		}
		if !strings.Contains(stackTrace, "goroutine") {
			t.Error("Expected stack trace in log arguments")
		}
	})

	t.Run("NoPanic_NoLog", func(t *testing.T) {
		logger := NewTestLogger()

		func() {
			defer withStackRecover(logger)()
		}()

		if len(logger.Messages()) != 0 {
			t.Errorf("Expected no log messages, got %d", len(logger.Messages()))
		}
	})
}

// TestSafeGo tests goroutine launching with panic recovery
func TestSafeGo(t *testing.T) {
	t.Run("RunsFunction", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)
		ran := false

		SafeGo(NewNoOpLogger(), func() {
			defer wg.Done()
			ran = true
		})
		wg.Wait()

		if !ran {
			t.Error("Expected function to run")
		}
	})

	t.Run("RecoversPanic", func(t *testing.T) {
		logger := NewTestLogger()
		done := make(chan struct{})

		SafeGo(logger, func() {
			defer close(done)
			panic("background failure")
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Goroutine did not finish")
		}

		deadline := time.Now().Add(time.Second)
		for !logger.HasMessage("ERROR", "Panic recovered in goroutine") {
			if time.Now().After(deadline) {
				t.Fatal("Expected panic to be logged")
			}
			time.Sleep(time.Millisecond)
		}
	})
}

// TestCallGuarded tests conversion of callback panics into errors
func TestCallGuarded(t *testing.T) {
	t.Run("ReturnsCallbackError", func(t *testing.T) {
		want := stderrors.New("init failed")
		if err := callGuarded(func() error { return want }); err != want {
			t.Errorf("Expected the callback error unchanged, got %v", err)
		}
	})

	t.Run("NilOnSuccess", func(t *testing.T) {
		if err := callGuarded(func() error { return nil }); err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
	})

	t.Run("PanicBecomesPanicError", func(t *testing.T) {
		err := callGuarded(func() error {
			panic("invariant broken")
		})

		var panicErr *PanicError
		if !stderrors.As(err, &panicErr) {
			t.Fatalf("Expected *PanicError, got %T", err)
		}
		if panicErr.Value != "invariant broken" {
			t.Errorf("Expected panic value 'invariant broken', got %v", panicErr.Value)
		}
		if len(panicErr.Stack) == 0 {
			t.Error("Expected captured stack")
		}
		if err.Error() != "panic: invariant broken" {
			t.Errorf("Unexpected message %q", err.Error())
		}
	})
}

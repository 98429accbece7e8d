// hooks.go: Named event hooks shared by the kernel and its plugins
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
)

// Kernel hook names.
const (
	// HookKernelReady fires once, after every plugin's Start has returned.
	HookKernelReady = "kernel:ready"
	// HookKernelShutdown fires before any plugin's Destroy runs.
	HookKernelShutdown = "kernel:shutdown"
	// HookConfigChanged fires after ApplyConfig swapped in a new configuration.
	HookConfigChanged = "kernel:config-changed"
	// HookPluginDeactivated fires after a plugin was torn down by Deactivate.
	HookPluginDeactivated = "plugin:deactivated"
	// HookPluginHealthChanged fires when a monitored plugin changes status.
	HookPluginHealthChanged = "plugin:health-changed"
	// HookPluginRestarted fires after the health monitor restarted a plugin.
	HookPluginRestarted = "plugin:restarted"
)

// HookHandler handles a hook event. payload is event specific.
type HookHandler func(ctx context.Context, payload any) error

// HookBus dispatches named events to subscribed handlers.
//
// Handlers for an event run sequentially in subscription order. A handler
// that fails or panics does not stop the others; all failures are joined
// into the error returned by Trigger.
type HookBus struct {
	mu       sync.RWMutex
	handlers map[string][]hookEntry
	logger   Logger
}

// hookEntry is a subscribed handler and the plugin that subscribed it;
// owner is empty for handlers added outside of a plugin.
type hookEntry struct {
	owner   string
	handler HookHandler
}

// NewHookBus creates an empty hook bus.
func NewHookBus(logger Logger) *HookBus {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &HookBus{
		handlers: make(map[string][]hookEntry),
		logger:   logger,
	}
}

// Hook subscribes handler to event. Nil handlers are ignored.
func (b *HookBus) Hook(event string, handler HookHandler) {
	b.HookOwned("", event, handler)
}

// HookOwned subscribes handler to event on behalf of owner, so the
// subscription can later be dropped with RemoveOwnedBy.
func (b *HookBus) HookOwned(owner, event string, handler HookHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], hookEntry{owner: owner, handler: handler})
}

// RemoveOwnedBy drops every handler subscribed by owner and returns how
// many were removed.
func (b *HookBus) RemoveOwnedBy(owner string) int {
	if owner == "" {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for event, entries := range b.handlers {
		kept := make([]hookEntry, 0, len(entries))
		for _, entry := range entries {
			if entry.owner == owner {
				removed++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(b.handlers, event)
		} else {
			b.handlers[event] = kept
		}
	}
	return removed
}

// Handlers returns the number of handlers subscribed to event.
func (b *HookBus) Handlers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}

// Trigger invokes every handler of event with payload.
func (b *HookBus) Trigger(ctx context.Context, event string, payload any) error {
	b.mu.RLock()
	entries := make([]hookEntry, len(b.handlers[event]))
	copy(entries, b.handlers[event])
	b.mu.RUnlock()

	var errs []error
	for i, entry := range entries {
		handler := entry.handler
		err := callGuarded(func() error { return handler(ctx, payload) })
		if err == nil {
			continue
		}

		var panicErr *PanicError
		if stderrors.As(err, &panicErr) {
			b.logger.Error("Hook handler panicked",
				"event", event,
				"handler", i,
				"panic", panicErr.Value,
				"stack", string(panicErr.Stack))
		} else {
			b.logger.Warn("Hook handler failed",
				"event", event,
				"handler", i,
				"error", err)
		}
		errs = append(errs, fmt.Errorf("hook %s handler %d: %w", event, i, err))
	}

	return stderrors.Join(errs...)
}

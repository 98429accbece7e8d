// plugin_context.go: The kernel surface handed to plugin lifecycle callbacks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
)

// PluginContext is what a plugin sees of the kernel: service registration
// and lookup, hook subscription, a logger scoped to the plugin, a storage
// namespace of its own and its configured settings.
type PluginContext struct {
	name    string
	kernel  *Kernel
	logger  Logger
	storage Storage
}

func newPluginContext(k *Kernel, name string) *PluginContext {
	return &PluginContext{
		name:    name,
		kernel:  k,
		logger:  k.logger.With("plugin", name),
		storage: newScopedStorage(k.storage, name),
	}
}

// Name returns the plugin's name.
func (c *PluginContext) Name() string {
	return c.name
}

// KernelID returns the owning kernel's instance id.
func (c *PluginContext) KernelID() string {
	return c.kernel.ID()
}

// RegisterService publishes impl under name, owned by this plugin.
func (c *PluginContext) RegisterService(name string, impl any) error {
	if err := c.kernel.services.Register(c.name, name, impl); err != nil {
		return err
	}
	c.logger.Debug("Service registered", "service", name)
	return nil
}

// GetService looks up a service registered by any plugin.
func (c *PluginContext) GetService(name string) (any, error) {
	return c.kernel.services.Get(name)
}

// Hook subscribes handler to a kernel or plugin event. The subscription
// belongs to the plugin and is dropped when the plugin is restarted or
// deactivated.
func (c *PluginContext) Hook(event string, handler HookHandler) {
	c.kernel.hooks.HookOwned(c.name, event, handler)
}

// Trigger fires a custom event on the kernel's hook bus.
func (c *PluginContext) Trigger(ctx context.Context, event string, payload any) error {
	return c.kernel.hooks.Trigger(ctx, event, payload)
}

// Logger returns a logger tagged with the plugin's name.
func (c *PluginContext) Logger() Logger {
	return c.logger
}

// Storage returns the plugin's private key namespace.
func (c *PluginContext) Storage() Storage {
	return c.storage
}

// Config returns a copy of the plugin's current settings. Settings follow
// configuration reloads.
func (c *PluginContext) Config() map[string]interface{} {
	return c.kernel.pluginSettings(c.name).Settings
}

// CheckAccess asks the sandbox runtime whether the plugin may access target.
// A plugin without a sandbox is unrestricted.
func (c *PluginContext) CheckAccess(kind ResourceKind, target string) AccessDecision {
	if _, err := c.kernel.sandboxes.GetSandbox(c.name); err != nil {
		return AccessDecision{Allowed: true, Reason: "plugin is not sandboxed"}
	}
	return c.kernel.sandboxes.CheckResourceAccess(c.name, kind, target)
}

// RequireAccess is CheckAccess returning a SandboxViolation error on denial.
func (c *PluginContext) RequireAccess(kind ResourceKind, target string) error {
	decision := c.CheckAccess(kind, target)
	if decision.Allowed {
		return nil
	}
	return NewSandboxViolationError(c.name, kind, target, decision.Reason)
}

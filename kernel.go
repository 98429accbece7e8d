// kernel.go: Plugin microkernel orchestration and lifecycle
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// KernelState is the lifecycle state of a kernel. Transitions only move
// forward: idle, initializing, running, stopping, stopped.
type KernelState int32

const (
	StateIdle KernelState = iota
	StateInitializing
	StateRunning
	StateStopping
	StateStopped
)

// String returns a human-readable representation of the kernel state.
func (s KernelState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Kernel owns the plugin registry and drives plugin lifecycles.
//
// Plugins are registered with Use while the kernel is idle. Bootstrap
// resolves the dependency order, runs every Init in that order, then every
// Start in the same order and finally fires HookKernelReady. Shutdown fires
// HookKernelShutdown and runs Destroy in reverse order.
//
// Lifecycle operations are serialized; plugin callbacks never run
// concurrently with each other. Health checks and sandbox sampling run in
// the background, one goroutine per plugin.
//
// Example usage:
//
//	kernel, err := microkernel.NewKernel(microkernel.DefaultKernelConfig(), logger)
//	if err != nil {
//	    return err
//	}
//	_ = kernel.Use(storagePlugin)
//	_ = kernel.Use(authPlugin)
//
//	if err := kernel.Bootstrap(ctx); err != nil {
//	    _ = kernel.Shutdown(ctx)
//	    return err
//	}
//	defer kernel.Shutdown(context.Background())
type Kernel struct {
	id     string
	logger Logger

	// lifecycleMu serializes Bootstrap, Shutdown, Deactivate and restarts.
	// It is never held while hooks run.
	lifecycleMu sync.Mutex
	state       atomic.Int32

	// regMu guards the registry fields below; it is never held while
	// plugin code runs.
	regMu        sync.RWMutex
	plugins      map[string]*Plugin
	registered   []string
	resolved     []string
	initialized  []string
	contexts     map[string]*PluginContext
	deactivating map[string]bool

	configMu sync.RWMutex
	config   KernelConfig

	services  *ServiceRegistry
	hooks     *HookBus
	health    *HealthMonitor
	sandboxes *SandboxRuntime
	storage   Storage
	events    *EventBridge
}

// NewKernel creates an idle kernel. The plugin state backend is built from
// config.Storage and, when config.Events is enabled, an AMQP event bridge is
// connected and attached; logger may be a Logger or nil.
func NewKernel(config KernelConfig, logger any) (*Kernel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	id := uuid.NewString()
	log := NewLogger(logger).With("kernel_id", id)

	storage, err := NewStorage(context.Background(), config.Storage)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		id:           id,
		logger:       log,
		plugins:      make(map[string]*Plugin),
		contexts:     make(map[string]*PluginContext),
		deactivating: make(map[string]bool),
		config:       config,
		services:     NewServiceRegistry(),
		hooks:        NewHookBus(log),
		health:       NewHealthMonitor(config.Health, log),
		sandboxes:    NewSandboxRuntime(config.Sandbox, log),
		storage:      storage,
	}
	k.state.Store(int32(StateIdle))
	k.health.SetUsageReporter(k.sandboxes)
	k.health.OnStatusChange(k.onHealthChange)

	if config.Events.Enabled {
		bridge, err := NewAMQPEventBridge(config.Events, log)
		if err != nil {
			_ = storage.Close()
			k.sandboxes.Shutdown()
			k.health.Shutdown()
			return nil, err
		}
		bridge.Attach(k)
		k.events = bridge
	}

	return k, nil
}

// Events returns the attached event bridge, or nil when events are disabled.
func (k *Kernel) Events() *EventBridge {
	return k.events
}

// ID returns the kernel's instance id.
func (k *Kernel) ID() string {
	return k.id
}

// State returns the current lifecycle state.
func (k *Kernel) State() KernelState {
	return KernelState(k.state.Load())
}

func (k *Kernel) setState(s KernelState) {
	previous := KernelState(k.state.Swap(int32(s)))
	k.logger.Debug("Kernel state changed", "from", previous.String(), "to", s.String())
}

// Logger returns the kernel logger.
func (k *Kernel) Logger() Logger { return k.logger }

// Hooks returns the kernel's hook bus.
func (k *Kernel) Hooks() *HookBus { return k.hooks }

// Services returns the kernel's service registry.
func (k *Kernel) Services() *ServiceRegistry { return k.services }

// HealthMonitor returns the kernel's health monitor.
func (k *Kernel) HealthMonitor() *HealthMonitor { return k.health }

// SandboxRuntime returns the kernel's sandbox runtime.
func (k *Kernel) SandboxRuntime() *SandboxRuntime { return k.sandboxes }

// Storage returns the shared plugin state backend.
func (k *Kernel) Storage() Storage {
	k.regMu.RLock()
	defer k.regMu.RUnlock()
	return k.storage
}

// Config returns a copy of the current configuration.
func (k *Kernel) Config() KernelConfig {
	k.configMu.RLock()
	defer k.configMu.RUnlock()
	return k.config.Clone()
}

func (k *Kernel) pluginSettings(name string) PluginSettings {
	k.configMu.RLock()
	defer k.configMu.RUnlock()
	return k.config.Plugins[name].clone()
}

// UseStorage replaces the plugin state backend. Only legal while idle; the
// previous backend is closed.
func (k *Kernel) UseStorage(storage Storage) error {
	k.lifecycleMu.Lock()
	defer k.lifecycleMu.Unlock()

	if state := k.State(); state != StateIdle {
		return NewInvalidStateError("use_storage", state)
	}
	if storage == nil {
		return NewConfigValidationError("storage must not be nil")
	}

	k.regMu.Lock()
	previous := k.storage
	k.storage = storage
	k.regMu.Unlock()

	if previous != nil && previous != storage {
		if err := previous.Close(); err != nil {
			k.logger.Warn("Failed to close previous storage", "error", err)
		}
	}
	return nil
}

// Use registers a plugin. Only legal while idle.
func (k *Kernel) Use(p *Plugin) error {
	k.lifecycleMu.Lock()
	defer k.lifecycleMu.Unlock()

	if state := k.State(); state != StateIdle {
		return NewInvalidStateError("use", state)
	}
	if p == nil {
		return NewInvalidPluginNameError("")
	}
	if err := p.validate(); err != nil {
		return err
	}
	if k.pluginSettings(p.Name).Disabled {
		return NewPluginDisabledError(p.Name)
	}

	k.regMu.Lock()
	defer k.regMu.Unlock()

	if _, exists := k.plugins[p.Name]; exists {
		return NewAlreadyRegisteredError(p.Name)
	}
	k.plugins[p.Name] = p
	k.registered = append(k.registered, p.Name)

	k.logger.Info("Plugin registered",
		"plugin", p.Name,
		"version", p.Version,
		"dependencies", len(p.Dependencies))
	return nil
}

// Bootstrap resolves the plugin order, initializes and starts every plugin
// and fires HookKernelReady. It may run once per kernel.
//
// Missing or circular dependencies, version mismatches and invalid sandbox
// policies fail before any plugin code runs. The first Init or Start error aborts bootstrap and is
// returned as is; plugins already initialized are not rolled back, call
// Shutdown to unwind them.
func (k *Kernel) Bootstrap(ctx context.Context) error {
	if err := k.bootstrap(ctx); err != nil {
		return err
	}

	if err := k.hooks.Trigger(ctx, HookKernelReady, k.id); err != nil {
		k.logger.Warn("kernel:ready handlers reported errors", "error", err)
	}
	k.logger.Info("Kernel ready", "plugins", len(k.ResolvedOrder()))
	return nil
}

func (k *Kernel) bootstrap(ctx context.Context) error {
	k.lifecycleMu.Lock()
	defer k.lifecycleMu.Unlock()

	if state := k.State(); state != StateIdle {
		return NewInvalidStateError("bootstrap", state)
	}
	k.setState(StateInitializing)

	order, err := k.resolve()
	if err != nil {
		k.logger.Error("Dependency resolution failed", "error", err)
		return err
	}

	k.regMu.Lock()
	k.resolved = order
	k.regMu.Unlock()

	for _, name := range order {
		if err := k.initPlugin(ctx, name); err != nil {
			return err
		}
	}

	k.setState(StateRunning)

	for _, name := range order {
		if err := k.startPlugin(ctx, name); err != nil {
			return err
		}
	}

	k.startHealthMonitoring(order)
	return nil
}

// resolve computes the init order and rejects version mismatches and
// invalid sandbox policies.
func (k *Kernel) resolve() ([]string, error) {
	descriptors := k.descriptors()

	order, err := Resolve(descriptors)
	if err != nil {
		return nil, err
	}

	for _, conflict := range DetectConflicts(descriptors) {
		if conflict.Type != ConflictVersionMismatch {
			continue
		}
		requester := conflict.Plugins[0]
		return nil, NewVersionMismatchError(
			conflict.Dependency,
			conflict.Installed,
			conflict.Constraints[requester],
			requester)
	}

	for _, name := range order {
		p, _ := k.plugin(name)
		policy := k.sandboxPolicy(p)
		if policy == nil {
			continue
		}
		if err := policy.Validate(); err != nil {
			return nil, NewInvalidPolicyError(name, err.Error())
		}
	}
	return order, nil
}

func (k *Kernel) descriptors() map[string]PluginDescriptor {
	k.regMu.RLock()
	defer k.regMu.RUnlock()

	descriptors := make(map[string]PluginDescriptor, len(k.plugins))
	for name, p := range k.plugins {
		descriptors[name] = p.descriptor()
	}
	return descriptors
}

func (k *Kernel) plugin(name string) (*Plugin, *PluginContext) {
	k.regMu.RLock()
	defer k.regMu.RUnlock()
	return k.plugins[name], k.contexts[name]
}

// sandboxPolicy picks the configured override, then the plugin's own
// policy, then the kernel default.
func (k *Kernel) sandboxPolicy(p *Plugin) *SandboxPolicy {
	if settings := k.pluginSettings(p.Name); settings.Sandbox != nil {
		return settings.Sandbox
	}
	if p.Sandbox != nil {
		return p.Sandbox
	}
	return k.Config().Sandbox.DefaultPolicy
}

func (k *Kernel) initPlugin(ctx context.Context, name string) error {
	p, _ := k.plugin(name)

	if policy := k.sandboxPolicy(p); policy != nil {
		if _, err := k.sandboxes.CreateSandbox(name, *policy); err != nil {
			k.logger.Error("Sandbox creation failed", "plugin", name, "error", err)
			return err
		}
	}

	pctx := newPluginContext(k, name)
	k.regMu.Lock()
	k.contexts[name] = pctx
	k.regMu.Unlock()

	if p.Init != nil {
		err := callGuarded(func() error {
			return p.Init(ContextWithLogger(ctx, pctx.logger), pctx)
		})
		if err != nil {
			k.logger.Error("Plugin init failed", "plugin", name, "error", err)
			return err
		}
	}

	k.regMu.Lock()
	k.initialized = append(k.initialized, name)
	k.regMu.Unlock()

	k.logger.Debug("Plugin initialized", "plugin", name)
	return nil
}

func (k *Kernel) startPlugin(ctx context.Context, name string) error {
	p, pctx := k.plugin(name)
	if p.Start == nil {
		return nil
	}

	err := callGuarded(func() error {
		return p.Start(ContextWithLogger(ctx, pctx.logger), pctx)
	})
	if err != nil {
		k.logger.Error("Plugin start failed", "plugin", name, "error", err)
		return err
	}

	k.logger.Debug("Plugin started", "plugin", name)
	return nil
}

func (k *Kernel) startHealthMonitoring(order []string) {
	if k.Config().Health.Disabled {
		return
	}
	for _, name := range order {
		if k.pluginSettings(name).DisableHealthCheck {
			continue
		}
		p, _ := k.plugin(name)
		k.health.Register(name, p.HealthCheck, k.restartFunc(name))
		if err := k.health.StartMonitoring(name); err != nil {
			k.logger.Warn("Failed to start health monitoring", "plugin", name, "error", err)
		}
	}
}

// restartFunc returns the restart used by the health monitor: Destroy,
// drop the plugin's services and hook subscriptions, then Init and Start
// again.
func (k *Kernel) restartFunc(name string) RestartFunc {
	return func(ctx context.Context) error {
		if err := k.restart(ctx, name); err != nil {
			return err
		}
		if err := k.hooks.Trigger(ctx, HookPluginRestarted, name); err != nil {
			k.logger.Warn("plugin:restarted handlers reported errors", "error", err)
		}
		return nil
	}
}

func (k *Kernel) restart(ctx context.Context, name string) error {
	k.lifecycleMu.Lock()
	defer k.lifecycleMu.Unlock()

	if state := k.State(); state != StateRunning {
		return NewInvalidStateError("restart", state)
	}

	k.regMu.RLock()
	deactivating := k.deactivating[name]
	p, pctx := k.plugins[name], k.contexts[name]
	k.regMu.RUnlock()

	if deactivating || p == nil || pctx == nil {
		return NewPluginNotFoundError(name)
	}

	if p.Destroy != nil {
		if err := callGuarded(func() error { return p.Destroy(ctx) }); err != nil {
			k.logger.Warn("Plugin destroy failed during restart", "plugin", name, "error", err)
		}
	}
	if removed := k.services.RemoveOwnedBy(name); len(removed) > 0 {
		k.logger.Debug("Services dropped for restart", "plugin", name, "services", removed)
	}
	if removed := k.hooks.RemoveOwnedBy(name); removed > 0 {
		k.logger.Debug("Hooks dropped for restart", "plugin", name, "hooks", removed)
	}

	lctx := ContextWithLogger(ctx, pctx.logger)
	if p.Init != nil {
		if err := callGuarded(func() error { return p.Init(lctx, pctx) }); err != nil {
			return NewLifecycleFailedError(name, "init", err)
		}
	}
	if p.Start != nil {
		if err := callGuarded(func() error { return p.Start(lctx, pctx) }); err != nil {
			return NewLifecycleFailedError(name, "start", err)
		}
	}

	k.logger.Info("Plugin restarted", "plugin", name)
	return nil
}

// onHealthChange forwards health transitions to the hook bus. Dispatch is
// asynchronous so hook handlers may call back into the kernel.
func (k *Kernel) onHealthChange(change StatusChange) {
	SafeGo(k.logger, func() {
		if err := k.hooks.Trigger(context.Background(), HookPluginHealthChanged, change); err != nil {
			k.logger.Warn("plugin:health-changed handlers reported errors", "error", err)
		}
	})
}

// Deactivate tears down a single running plugin. Plugins that depend on it
// and are still active make it fail with DependencyInUse.
func (k *Kernel) Deactivate(ctx context.Context, name string) error {
	if err := k.beginDeactivate(name); err != nil {
		return err
	}

	// The health loop may be waiting for lifecycleMu inside a restart, so
	// it is stopped without holding the lock.
	k.health.Unregister(name)

	err := k.finishDeactivate(ctx, name)

	if hookErr := k.hooks.Trigger(ctx, HookPluginDeactivated, name); hookErr != nil {
		k.logger.Warn("plugin:deactivated handlers reported errors", "error", hookErr)
	}
	return err
}

func (k *Kernel) beginDeactivate(name string) error {
	k.lifecycleMu.Lock()
	defer k.lifecycleMu.Unlock()

	if state := k.State(); state != StateRunning {
		return NewInvalidStateError("deactivate", state)
	}

	graph := BuildDependencyGraph(k.descriptors())

	k.regMu.Lock()
	defer k.regMu.Unlock()

	if _, exists := k.plugins[name]; !exists || k.deactivating[name] {
		return NewPluginNotFoundError(name)
	}

	active := make(map[string]bool, len(k.initialized))
	for _, n := range k.initialized {
		active[n] = true
	}
	var dependents []string
	for _, dependent := range graph.Dependents(name) {
		if active[dependent] {
			dependents = append(dependents, dependent)
		}
	}
	if len(dependents) > 0 {
		return NewDependencyInUseError(name, dependents)
	}

	k.deactivating[name] = true
	return nil
}

func (k *Kernel) finishDeactivate(ctx context.Context, name string) error {
	k.lifecycleMu.Lock()
	defer k.lifecycleMu.Unlock()

	p, _ := k.plugin(name)

	var destroyErr error
	if p != nil && p.Destroy != nil {
		if err := callGuarded(func() error { return p.Destroy(ctx) }); err != nil {
			k.logger.Error("Plugin destroy failed", "plugin", name, "error", err)
			destroyErr = NewLifecycleFailedError(name, "destroy", err)
		}
	}

	k.services.RemoveOwnedBy(name)
	k.hooks.RemoveOwnedBy(name)
	k.sandboxes.DestroySandbox(name)

	k.regMu.Lock()
	delete(k.plugins, name)
	delete(k.contexts, name)
	delete(k.deactivating, name)
	k.registered = removeName(k.registered, name)
	k.resolved = removeName(k.resolved, name)
	k.initialized = removeName(k.initialized, name)
	k.regMu.Unlock()

	k.logger.Info("Plugin deactivated", "plugin", name)
	return destroyErr
}

// Shutdown fires HookKernelShutdown, destroys every initialized plugin in
// reverse order and releases the health monitor, the sandboxes and the
// storage backend. Destroy failures are logged and do not stop the
// remaining plugins. Calling Shutdown on a stopped kernel is a no-op.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.lifecycleMu.Lock()
	if state := k.State(); state == StateStopping || state == StateStopped {
		k.lifecycleMu.Unlock()
		return nil
	}
	k.setState(StateStopping)
	k.lifecycleMu.Unlock()

	// Loops blocked on lifecycleMu in a restart observe the stopping state
	// and return, so this cannot wait forever.
	k.health.Shutdown()

	if err := k.hooks.Trigger(ctx, HookKernelShutdown, k.id); err != nil {
		k.logger.Warn("kernel:shutdown handlers reported errors", "error", err)
	}

	k.lifecycleMu.Lock()
	defer k.lifecycleMu.Unlock()

	k.regMu.RLock()
	initialized := append([]string(nil), k.initialized...)
	k.regMu.RUnlock()

	for i := len(initialized) - 1; i >= 0; i-- {
		name := initialized[i]
		p, _ := k.plugin(name)
		if p == nil || p.Destroy == nil {
			continue
		}
		if err := callGuarded(func() error { return p.Destroy(ctx) }); err != nil {
			k.logger.Error("Plugin destroy failed", "plugin", name, "error", err)
			continue
		}
		k.logger.Debug("Plugin destroyed", "plugin", name)
	}

	k.sandboxes.Shutdown()
	k.services.Clear()

	k.regMu.Lock()
	k.initialized = nil
	storage := k.storage
	k.regMu.Unlock()

	if storage != nil {
		if err := storage.Close(); err != nil {
			k.logger.Warn("Failed to close storage", "error", err)
		}
	}
	if k.events != nil {
		if err := k.events.Close(); err != nil {
			k.logger.Warn("Failed to close event bridge", "error", err)
		}
	}

	k.setState(StateStopped)
	k.logger.Info("Kernel stopped", "destroyed", len(initialized))
	return nil
}

// Destroy is an alias of Shutdown.
func (k *Kernel) Destroy(ctx context.Context) error {
	return k.Shutdown(ctx)
}

// GetService returns the service registered under name.
func (k *Kernel) GetService(name string) (any, error) {
	return k.services.Get(name)
}

// ResolvedOrder returns the initialization order computed by Bootstrap.
func (k *Kernel) ResolvedOrder() []string {
	k.regMu.RLock()
	defer k.regMu.RUnlock()
	return append([]string(nil), k.resolved...)
}

// Plugins returns a summary of every registered plugin, in resolved order
// once bootstrapped and in registration order before.
func (k *Kernel) Plugins() []PluginInfo {
	k.regMu.RLock()
	order := k.resolved
	if len(order) == 0 {
		order = k.registered
	}
	initialized := make(map[string]bool, len(k.initialized))
	for _, name := range k.initialized {
		initialized[name] = true
	}
	infos := make([]PluginInfo, 0, len(order))
	for _, name := range order {
		p := k.plugins[name]
		if p == nil {
			continue
		}
		infos = append(infos, PluginInfo{
			Name:         p.Name,
			Version:      p.Version,
			Dependencies: p.descriptor().Dependencies,
			Initialized:  initialized[name],
		})
	}
	k.regMu.RUnlock()

	for i := range infos {
		_, err := k.sandboxes.GetSandbox(infos[i].Name)
		infos[i].Sandboxed = err == nil
		infos[i].Health = k.health.GetStatus(infos[i].Name)
	}
	return infos
}

// ApplyConfig swaps in a new configuration at runtime. Health settings and
// plugin settings take effect immediately; storage and sandbox settings
// only apply to kernels created afterwards.
func (k *Kernel) ApplyConfig(ctx context.Context, config KernelConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	config.ApplyDefaults()

	k.configMu.Lock()
	previous := k.config
	k.config = config.Clone()
	k.configMu.Unlock()

	if err := k.health.UpdateConfig(config.Health); err != nil {
		return err
	}
	if previous.Storage != config.Storage {
		k.logger.Warn("Storage configuration changed; restart the kernel to apply it")
	}

	if err := k.hooks.Trigger(ctx, HookConfigChanged, config.Clone()); err != nil {
		k.logger.Warn("kernel:config-changed handlers reported errors", "error", err)
	}
	k.logger.Info("Kernel configuration applied")
	return nil
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// service_registry.go: Kernel-owned name to implementation service lookup
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// serviceEntry pairs a registered implementation with the plugin that
// registered it, so a plugin's services can be dropped on restart or
// deactivation.
type serviceEntry struct {
	impl  any
	owner string
}

// ServiceRegistry maps service names to plugin-provided implementations.
//
// Each Kernel owns exactly one registry; there is no process-wide instance.
// Plugins populate it from Init through their PluginContext and adapters
// outside the kernel read it through Kernel.GetService.
//
// Example usage:
//
//	// inside a plugin Init
//	if err := pctx.RegisterService("object-query", engine); err != nil {
//	    return err
//	}
//
//	// elsewhere
//	engine, err := microkernel.GetServiceAs[*QueryEngine](kernel, "object-query")
type ServiceRegistry struct {
	entries *cmap.ConcurrentMap[string, serviceEntry]
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	m := cmap.New[serviceEntry]()
	return &ServiceRegistry{entries: &m}
}

// Register adds impl under name on behalf of owner. Names are unique;
// registering a taken name fails with ServiceAlreadyRegistered.
func (r *ServiceRegistry) Register(owner, name string, impl any) error {
	if name == "" {
		return NewInvalidServiceNameError(owner)
	}
	if !r.entries.SetIfAbsent(name, serviceEntry{impl: impl, owner: owner}) {
		existing, _ := r.entries.Get(name)
		return NewServiceAlreadyRegisteredError(name, existing.owner)
	}
	return nil
}

// Get returns the implementation registered under name.
func (r *ServiceRegistry) Get(name string) (any, error) {
	entry, ok := r.entries.Get(name)
	if !ok {
		return nil, NewServiceNotFoundError(name)
	}
	return entry.impl, nil
}

// Has reports whether a service is registered under name.
func (r *ServiceRegistry) Has(name string) bool {
	return r.entries.Has(name)
}

// Owner returns the plugin that registered name.
func (r *ServiceRegistry) Owner(name string) (string, bool) {
	entry, ok := r.entries.Get(name)
	if !ok {
		return "", false
	}
	return entry.owner, true
}

// Unregister removes name. Removing an unknown name is a no-op.
func (r *ServiceRegistry) Unregister(name string) {
	r.entries.Remove(name)
}

// RemoveOwnedBy drops every service registered by owner and returns the
// removed names, sorted.
func (r *ServiceRegistry) RemoveOwnedBy(owner string) []string {
	var removed []string
	for name, entry := range r.entries.Items() {
		if entry.owner != owner {
			continue
		}
		gone := r.entries.RemoveCb(name, func(_ string, current serviceEntry, exists bool) bool {
			return exists && current.owner == owner
		})
		if gone {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}

// Names returns the registered service names, sorted.
func (r *ServiceRegistry) Names() []string {
	names := r.entries.Keys()
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the name to implementation mapping.
func (r *ServiceRegistry) Snapshot() map[string]any {
	items := r.entries.Items()
	result := make(map[string]any, len(items))
	for name, entry := range items {
		result[name] = entry.impl
	}
	return result
}

// Count returns the number of registered services.
func (r *ServiceRegistry) Count() int {
	return r.entries.Count()
}

// Clear removes all services.
func (r *ServiceRegistry) Clear() {
	r.entries.Clear()
}

// GetServiceAs looks up name on the kernel's registry and asserts it to T.
// A registered service of another type is reported as not found.
func GetServiceAs[T any](k *Kernel, name string) (T, error) {
	var zero T
	impl, err := k.GetService(name)
	if err != nil {
		return zero, err
	}
	typed, ok := impl.(T)
	if !ok {
		return zero, NewServiceNotFoundError(name).
			WithContext("reason", "type mismatch")
	}
	return typed, nil
}

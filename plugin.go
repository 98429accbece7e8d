// plugin.go: Plugin contract and per-plugin settings
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	"strings"
)

// Plugin is a named, versioned unit of extension code.
//
// Every lifecycle callback is optional. The kernel calls Init for all
// plugins in dependency order, then Start for all plugins in the same
// order, and on shutdown Destroy in reverse order. Callbacks of different
// plugins never run concurrently.
//
// Example:
//
//	auth := &microkernel.Plugin{
//	    Name:    "auth",
//	    Version: "1.4.0",
//	    Dependencies: map[string]string{
//	        "storage": "^2.0.0",
//	    },
//	    Init: func(ctx context.Context, pctx *microkernel.PluginContext) error {
//	        return pctx.RegisterService("auth.tokens", newTokenService())
//	    },
//	    HealthCheck: microkernel.BoolHealthCheck(func(ctx context.Context) bool {
//	        return tokensReachable(ctx)
//	    }),
//	}
type Plugin struct {
	// Unique name within a kernel
	Name string

	// Semantic version; empty means unversioned
	Version string

	// Dependency name to version constraint
	Dependencies map[string]string

	Init    func(ctx context.Context, pctx *PluginContext) error
	Start   func(ctx context.Context, pctx *PluginContext) error
	Destroy func(ctx context.Context) error

	// Optional; nil counts as an implicit pass
	HealthCheck HealthCheckFunc

	// Optional; nil uses the kernel's default policy, if any
	Sandbox *SandboxPolicy
}

// descriptor returns the resolver's view of the plugin.
func (p *Plugin) descriptor() PluginDescriptor {
	deps := make(map[string]string, len(p.Dependencies))
	for name, constraint := range p.Dependencies {
		deps[name] = constraint
	}
	return PluginDescriptor{Version: p.Version, Dependencies: deps}
}

// validate checks the name and, when present, the declared version.
func (p *Plugin) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewInvalidPluginNameError(p.Name)
	}
	// ':' separates the name from the key in scoped storage.
	if strings.Contains(p.Name, ":") {
		return NewInvalidPluginNameError(p.Name)
	}
	if p.Version != "" {
		if _, err := ParseVersion(p.Version); err != nil {
			return err
		}
	}
	for dep := range p.Dependencies {
		if strings.TrimSpace(dep) == "" {
			return NewMissingDependencyError(p.Name, dep)
		}
	}
	return nil
}

// PluginInfo is a read-only summary of a registered plugin.
type PluginInfo struct {
	Name         string            `json:"name"`
	Version      string            `json:"version,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Initialized  bool              `json:"initialized"`
	Sandboxed    bool              `json:"sandboxed"`
	Health       HealthStatus      `json:"health"`
}

// PluginSettings is the per-plugin section of the kernel configuration.
type PluginSettings struct {
	// Disabled plugins are rejected by Use
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// Free-form settings exposed through PluginContext.Config
	Settings map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Overrides the plugin's own sandbox policy
	Sandbox *SandboxPolicy `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`

	// Turns off health supervision for the plugin
	DisableHealthCheck bool `json:"disable_health_check,omitempty" yaml:"disable_health_check,omitempty"`
}

func (s PluginSettings) clone() PluginSettings {
	out := s
	if s.Settings != nil {
		out.Settings = make(map[string]interface{}, len(s.Settings))
		for k, v := range s.Settings {
			out.Settings[k] = v
		}
	}
	if s.Sandbox != nil {
		policy := s.Sandbox.Clone()
		out.Sandbox = &policy
	}
	return out
}

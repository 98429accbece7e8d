// sandbox_policy.go: Declarative per-plugin sandbox policies
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"fmt"
	"strings"
)

// SandboxLevel is the isolation level of a policy.
type SandboxLevel string

const (
	SandboxLevelNone     SandboxLevel = "none"
	SandboxLevelStandard SandboxLevel = "standard"
	SandboxLevelStrict   SandboxLevel = "strict"
)

// ResourceKind is the kind of resource an access check is about.
type ResourceKind string

const (
	ResourceFilesystem ResourceKind = "filesystem"
	ResourceNetwork    ResourceKind = "network"
	ResourceProcess    ResourceKind = "process"
	ResourceEnv        ResourceKind = "env"
)

// Access modes for filesystem and network policies.
const (
	AccessModeNone       = "none"
	AccessModeReadOnly   = "read-only"
	AccessModeReadWrite  = "read-write"
	AccessModeRestricted = "restricted"
	AccessModeFull       = "full"
)

// FilesystemPolicy restricts path access. Entries are normalized before
// comparison, so "/data/../etc" never matches "/data".
type FilesystemPolicy struct {
	Mode         string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowedPaths []string `json:"allowed_paths,omitempty" yaml:"allowed_paths,omitempty"`
	DeniedPaths  []string `json:"denied_paths,omitempty" yaml:"denied_paths,omitempty"`
}

// NetworkPolicy restricts outbound hosts. Entries are hostnames, "*" or
// "*.suffix" wildcards.
type NetworkPolicy struct {
	Mode         string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowedHosts []string `json:"allowed_hosts,omitempty" yaml:"allowed_hosts,omitempty"`
	DeniedHosts  []string `json:"denied_hosts,omitempty" yaml:"denied_hosts,omitempty"`
}

// ProcessPolicy controls process spawning and, coarsely, environment access.
type ProcessPolicy struct {
	AllowSpawn bool `json:"allow_spawn" yaml:"allow_spawn"`
}

// MemoryPolicy caps heap growth attributed to the plugin, in bytes.
type MemoryPolicy struct {
	MaxHeap uint64 `json:"max_heap,omitempty" yaml:"max_heap,omitempty"`
}

// ResourceLimits are runtime ceilings. MaxCPU is a percentage of one core.
type ResourceLimits struct {
	MaxCPU         float64 `json:"max_cpu,omitempty" yaml:"max_cpu,omitempty"`
	MaxConnections int     `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
}

// RuntimePolicy groups runtime ceilings.
type RuntimePolicy struct {
	ResourceLimits ResourceLimits `json:"resource_limits" yaml:"resource_limits"`
}

// SandboxPolicy is the declarative sandbox input of a plugin.
//
// Example:
//
//	policy := &microkernel.SandboxPolicy{
//	    Level: microkernel.SandboxLevelStandard,
//	    Filesystem: &microkernel.FilesystemPolicy{
//	        Mode:         microkernel.AccessModeReadOnly,
//	        AllowedPaths: []string{"/var/lib/reports"},
//	        DeniedPaths:  []string{"/var/lib/reports/private"},
//	    },
//	    Network: &microkernel.NetworkPolicy{
//	        AllowedHosts: []string{"*.example.com"},
//	    },
//	    Memory: &microkernel.MemoryPolicy{MaxHeap: 64 << 20},
//	}
type SandboxPolicy struct {
	Level      SandboxLevel      `json:"level" yaml:"level"`
	Filesystem *FilesystemPolicy `json:"filesystem,omitempty" yaml:"filesystem,omitempty"`
	Network    *NetworkPolicy    `json:"network,omitempty" yaml:"network,omitempty"`
	Process    *ProcessPolicy    `json:"process,omitempty" yaml:"process,omitempty"`
	Memory     *MemoryPolicy     `json:"memory,omitempty" yaml:"memory,omitempty"`
	Runtime    *RuntimePolicy    `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// Validate checks levels and modes.
func (p SandboxPolicy) Validate() error {
	switch p.Level {
	case "", SandboxLevelNone, SandboxLevelStandard, SandboxLevelStrict:
	default:
		return fmt.Errorf("unknown sandbox level %q", p.Level)
	}

	if p.Filesystem != nil {
		switch p.Filesystem.Mode {
		case "", AccessModeNone, AccessModeReadOnly, AccessModeReadWrite:
		default:
			return fmt.Errorf("unknown filesystem mode %q", p.Filesystem.Mode)
		}
		for _, entry := range append(append([]string(nil), p.Filesystem.AllowedPaths...), p.Filesystem.DeniedPaths...) {
			if strings.TrimSpace(entry) == "" {
				return fmt.Errorf("empty filesystem path entry")
			}
		}
	}

	if p.Network != nil {
		switch p.Network.Mode {
		case "", AccessModeNone, AccessModeRestricted, AccessModeFull:
		default:
			return fmt.Errorf("unknown network mode %q", p.Network.Mode)
		}
	}

	if p.Runtime != nil {
		if p.Runtime.ResourceLimits.MaxCPU < 0 || p.Runtime.ResourceLimits.MaxConnections < 0 {
			return fmt.Errorf("resource limits must not be negative")
		}
	}
	return nil
}

// Clone returns a deep copy of the policy.
func (p SandboxPolicy) Clone() SandboxPolicy {
	out := SandboxPolicy{Level: p.Level}
	if p.Filesystem != nil {
		fs := *p.Filesystem
		fs.AllowedPaths = append([]string(nil), p.Filesystem.AllowedPaths...)
		fs.DeniedPaths = append([]string(nil), p.Filesystem.DeniedPaths...)
		out.Filesystem = &fs
	}
	if p.Network != nil {
		n := *p.Network
		n.AllowedHosts = append([]string(nil), p.Network.AllowedHosts...)
		n.DeniedHosts = append([]string(nil), p.Network.DeniedHosts...)
		out.Network = &n
	}
	if p.Process != nil {
		pr := *p.Process
		out.Process = &pr
	}
	if p.Memory != nil {
		m := *p.Memory
		out.Memory = &m
	}
	if p.Runtime != nil {
		r := *p.Runtime
		out.Runtime = &r
	}
	return out
}

// AccessDecision is the result of an access check. Reason is set on denials
// and on allowances that are worth logging.
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() AccessDecision { return AccessDecision{Allowed: true} }

func deny(reason string) AccessDecision { return AccessDecision{Reason: reason} }

// ResourceViolation is a ceiling exceeded by a sandbox's usage snapshot.
type ResourceViolation struct {
	Resource string  `json:"resource"`
	Limit    float64 `json:"limit"`
	Actual   float64 `json:"actual"`
}

func (v ResourceViolation) String() string {
	return fmt.Sprintf("%s %.2f exceeds limit %.2f", v.Resource, v.Actual, v.Limit)
}

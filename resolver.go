// resolver.go: Dependency resolution, conflict detection and load ordering
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"sort"
)

// PluginDescriptor is the resolver's view of a plugin: its installed
// version and its dependency constraints keyed by dependency name.
type PluginDescriptor struct {
	Version      string            `json:"version,omitempty" yaml:"version,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// ConflictType identifies the kind of a dependency conflict.
type ConflictType string

const (
	ConflictVersionMismatch    ConflictType = "version-mismatch"
	ConflictCircularDependency ConflictType = "circular-dependency"
)

// ConflictResolution is a suggested, never automatically applied, fix.
type ConflictResolution struct {
	Strategy  string `json:"strategy"`
	Automatic bool   `json:"automatic"`
	Message   string `json:"message,omitempty"`
}

// Conflict describes a problem found by DetectConflicts.
type Conflict struct {
	Type       ConflictType `json:"type"`
	Dependency string       `json:"dependency,omitempty"`
	Installed  string       `json:"installed,omitempty"`
	// Constraints maps each requesting plugin to the constraint it declared.
	Constraints map[string]string  `json:"constraints,omitempty"`
	Plugins     []string           `json:"plugins"`
	Resolution  ConflictResolution `json:"resolution"`
}

// Resolve computes an initialization order in which every dependency comes
// before all of its dependents.
//
// Edges point from a dependency to its dependent and the order is produced
// with Kahn's algorithm. Among nodes that are ready at the same time the
// lexically smallest name goes first, so the result is deterministic.
//
// A dependency on an unregistered plugin fails immediately with
// MissingDependency; a cycle fails with CircularDependency naming every
// plugin that could not be ordered.
func Resolve(plugins map[string]PluginDescriptor) ([]string, error) {
	names := sortedNames(plugins)

	for _, name := range names {
		for _, dep := range sortedKeys(plugins[name].Dependencies) {
			if _, exists := plugins[dep]; !exists {
				return nil, NewMissingDependencyError(name, dep)
			}
		}
	}

	order, remaining := kahnOrder(plugins)
	if len(remaining) > 0 {
		return nil, NewCircularDependencyError(remaining)
	}

	return order, nil
}

// IsAcyclic reports whether plugins can be ordered, i.e. whether Resolve
// succeeds. A missing dependency also yields false.
func IsAcyclic(plugins map[string]PluginDescriptor) bool {
	_, err := Resolve(plugins)
	return err == nil
}

// DetectConflicts reports version mismatches between installed versions and
// the constraints their dependents declare, plus any dependency cycle.
//
// Dependencies that are not registered or that declare no version are not
// checked for mismatches.
func DetectConflicts(plugins map[string]PluginDescriptor) []Conflict {
	var conflicts []Conflict

	requested := make(map[string]map[string]string)
	for _, name := range sortedNames(plugins) {
		for dep, constraint := range plugins[name].Dependencies {
			if requested[dep] == nil {
				requested[dep] = make(map[string]string)
			}
			requested[dep][name] = constraint
		}
	}

	for _, dep := range sortedKeys(requested) {
		target, exists := plugins[dep]
		if !exists || target.Version == "" {
			continue
		}

		constraints := requested[dep]
		var failing []string
		for _, requester := range sortedKeys(constraints) {
			if !Satisfies(target.Version, constraints[requester]) {
				failing = append(failing, requester)
			}
		}
		if len(failing) == 0 {
			continue
		}

		conflicts = append(conflicts, Conflict{
			Type:        ConflictVersionMismatch,
			Dependency:  dep,
			Installed:   target.Version,
			Constraints: constraints,
			Plugins:     failing,
			Resolution: ConflictResolution{
				Strategy:  "upgrade",
				Automatic: false,
				Message:   "install a version of " + dep + " that satisfies every dependent",
			},
		})
	}

	if _, cycle := kahnOrder(plugins); len(cycle) > 0 {
		conflicts = append(conflicts, Conflict{
			Type:    ConflictCircularDependency,
			Plugins: cycle,
			Resolution: ConflictResolution{
				Strategy:  "remove-dependency",
				Automatic: false,
				Message:   "break the cycle by removing one of the dependencies",
			},
		})
	}

	return conflicts
}

// kahnOrder runs Kahn's algorithm over plugins and returns the ordered
// names plus those left unvisited because they sit on or behind a cycle.
// Edges to unregistered dependencies are ignored.
func kahnOrder(plugins map[string]PluginDescriptor) (order, remaining []string) {
	names := sortedNames(plugins)

	inDegree := make(map[string]int, len(plugins))
	dependents := make(map[string][]string, len(plugins))
	for _, name := range names {
		for _, dep := range sortedKeys(plugins[name].Dependencies) {
			if _, exists := plugins[dep]; !exists {
				continue
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	order = make([]string, 0, len(plugins))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Strings(queue)
	}

	return order, unvisited(names, order)
}

// FindBestVersion returns the highest of the available versions that
// satisfies every constraint. Malformed candidates are skipped.
func FindBestVersion(available []string, constraints []string) (string, bool) {
	candidates := make([]*Version, 0, len(available))
	raw := make(map[*Version]string, len(available))
	for _, s := range available {
		v, err := ParseVersion(s)
		if err != nil {
			continue
		}
		candidates = append(candidates, v)
		raw[v] = s
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Compare(candidates[j]) > 0
	})

	for _, v := range candidates {
		ok := true
		for _, c := range constraints {
			if !v.Satisfies(c) {
				ok = false
				break
			}
		}
		if ok {
			return raw[v], true
		}
	}
	return "", false
}

// DependencyGraph is an immutable snapshot of the dependency relation
// between registered plugins.
type DependencyGraph struct {
	dependencies map[string][]string
	dependents   map[string][]string
}

// BuildDependencyGraph builds a snapshot graph from plugin descriptors.
// Edges to unregistered plugins are kept so callers can inspect them.
func BuildDependencyGraph(plugins map[string]PluginDescriptor) *DependencyGraph {
	dg := &DependencyGraph{
		dependencies: make(map[string][]string, len(plugins)),
		dependents:   make(map[string][]string, len(plugins)),
	}

	for _, name := range sortedNames(plugins) {
		deps := sortedKeys(plugins[name].Dependencies)
		dg.dependencies[name] = deps
		for _, dep := range deps {
			dg.dependents[dep] = append(dg.dependents[dep], name)
		}
	}
	return dg
}

// Dependencies returns the direct dependencies of name, sorted.
func (dg *DependencyGraph) Dependencies(name string) []string {
	return append([]string(nil), dg.dependencies[name]...)
}

// Dependents returns the plugins that directly depend on name, sorted.
func (dg *DependencyGraph) Dependents(name string) []string {
	return append([]string(nil), dg.dependents[name]...)
}

// Nodes returns every plugin name in the graph, sorted.
func (dg *DependencyGraph) Nodes() []string {
	return sortedKeys(dg.dependencies)
}

func unvisited(names, order []string) []string {
	seen := make(map[string]struct{}, len(order))
	for _, n := range order {
		seen[n] = struct{}{}
	}
	var rest []string
	for _, n := range names {
		if _, ok := seen[n]; !ok {
			rest = append(rest, n)
		}
	}
	return rest
}

func sortedNames(plugins map[string]PluginDescriptor) []string {
	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

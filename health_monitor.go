// health_monitor.go: Supervision of every monitored plugin
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/agilira/go-timecache"
)

// HealthMonitor runs periodic liveness checks per plugin and drives
// automatic restarts with backoff.
//
// Each plugin gets its own checker goroutine once monitoring is started.
// Reports returned to callers are copies; the monitor never hands out
// references to its internal state.
//
// Usage example:
//
//	monitor := NewHealthMonitor(DefaultHealthMonitorConfig(), logger)
//	monitor.Register("cache", plugin.HealthCheck, restartCache)
//	_ = monitor.StartMonitoring("cache")
//
//	report, _ := monitor.GetReport("cache")
//	if report.Status != StatusHealthy {
//	    logger.Warn("cache degraded", "message", report.Message)
//	}
//
//	monitor.Shutdown()
type HealthMonitor struct {
	mu        sync.RWMutex
	checkers  map[string]*healthChecker
	config    HealthMonitorConfig
	usage     UsageReporter
	listeners []StatusChangeHandler
	logger    Logger
}

// NewHealthMonitor creates a monitor. Zero config values take defaults.
func NewHealthMonitor(config HealthMonitorConfig, logger Logger) *HealthMonitor {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	config.ApplyDefaults()
	return &HealthMonitor{
		checkers: make(map[string]*healthChecker),
		config:   config,
		logger:   logger.With("component", "health_monitor"),
	}
}

// Config returns the current configuration.
func (hm *HealthMonitor) Config() HealthMonitorConfig {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.config
}

// UpdateConfig swaps the configuration. Running loops pick up the new
// interval after their next tick and the new thresholds on their next check.
func (hm *HealthMonitor) UpdateConfig(config HealthMonitorConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	config.ApplyDefaults()

	hm.mu.Lock()
	hm.config = config
	hm.mu.Unlock()

	hm.logger.Info("Health monitor configuration updated",
		"interval", config.Interval,
		"failure_threshold", config.FailureThreshold,
		"success_threshold", config.SuccessThreshold)
	return nil
}

// SetUsageReporter attaches the source of the "resources" sub-check.
func (hm *HealthMonitor) SetUsageReporter(reporter UsageReporter) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.usage = reporter
}

// OnStatusChange subscribes handler to status transitions.
func (hm *HealthMonitor) OnStatusChange(handler StatusChangeHandler) {
	if handler == nil {
		return
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.listeners = append(hm.listeners, handler)
}

// Register adds a plugin with its optional check and restart function.
// A nil check counts as an implicit pass. Registering a name again replaces
// and stops the previous checker.
func (hm *HealthMonitor) Register(name string, check HealthCheckFunc, restart RestartFunc) {
	checker := newHealthChecker(name, check, restart, hm)

	hm.mu.Lock()
	existing := hm.checkers[name]
	hm.checkers[name] = checker
	hm.mu.Unlock()

	if existing != nil {
		existing.stop()
	}
	hm.logger.Debug("Plugin registered for health monitoring", "plugin", name)
}

// StartMonitoring starts the periodic loop for name.
func (hm *HealthMonitor) StartMonitoring(name string) error {
	checker, err := hm.checker(name)
	if err != nil {
		return err
	}
	checker.start()
	return nil
}

// StopMonitoring stops the loop for name but keeps its record.
// Stopping an already stopped plugin is a no-op.
func (hm *HealthMonitor) StopMonitoring(name string) error {
	checker, err := hm.checker(name)
	if err != nil {
		return err
	}
	checker.stop()
	return nil
}

// IsMonitoring reports whether the loop for name is running.
func (hm *HealthMonitor) IsMonitoring(name string) bool {
	checker, err := hm.checker(name)
	if err != nil {
		return false
	}
	return checker.isRunning()
}

// Unregister stops monitoring name and discards its record.
func (hm *HealthMonitor) Unregister(name string) {
	hm.mu.Lock()
	checker := hm.checkers[name]
	delete(hm.checkers, name)
	hm.mu.Unlock()

	if checker != nil {
		checker.stop()
	}
}

// CheckNow runs a check for name immediately, serialized with the loop.
func (hm *HealthMonitor) CheckNow(ctx context.Context, name string) (HealthReport, error) {
	checker, err := hm.checker(name)
	if err != nil {
		return HealthReport{}, err
	}
	return checker.checkOnce(ctx), nil
}

// GetReport returns the latest report for name.
func (hm *HealthMonitor) GetReport(name string) (HealthReport, error) {
	checker, err := hm.checker(name)
	if err != nil {
		return HealthReport{}, err
	}
	return checker.snapshot(), nil
}

// GetStatus returns the current status of name, StatusUnknown if unmonitored.
func (hm *HealthMonitor) GetStatus(name string) HealthStatus {
	checker, err := hm.checker(name)
	if err != nil {
		return StatusUnknown
	}
	return checker.currentStatus()
}

// GetAllReports returns a snapshot of every plugin's latest report.
func (hm *HealthMonitor) GetAllReports() map[string]HealthReport {
	hm.mu.RLock()
	checkers := make([]*healthChecker, 0, len(hm.checkers))
	for _, c := range hm.checkers {
		checkers = append(checkers, c)
	}
	hm.mu.RUnlock()

	result := make(map[string]HealthReport, len(checkers))
	for _, c := range checkers {
		result[c.name] = c.snapshot()
	}
	return result
}

// GetOverallHealth aggregates every plugin's status:
//   - StatusUnhealthy: any plugin is unhealthy or failed
//   - StatusDegraded: any plugin is degraded or recovering
//   - StatusUnknown: any plugin has not been checked yet
//   - StatusHealthy: otherwise
func (hm *HealthMonitor) GetOverallHealth() HealthReport {
	reports := hm.GetAllReports()

	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := StatusHealthy
	rank := map[HealthStatus]int{StatusHealthy: 0, StatusUnknown: 1, StatusDegraded: 2, StatusUnhealthy: 3}
	var issues []string
	var checks []HealthCheckOutcome

	for _, name := range names {
		r := reports[name]
		effective := r.Status
		switch r.Status {
		case StatusFailed:
			effective = StatusUnhealthy
		case StatusRecovering:
			effective = StatusDegraded
		}
		if rank[effective] > rank[overall] {
			overall = effective
		}

		outcome := CheckPassed
		switch effective {
		case StatusUnhealthy:
			outcome = CheckFailed
			issues = append(issues, name+": "+string(r.Status))
		case StatusDegraded, StatusUnknown:
			outcome = CheckWarning
			issues = append(issues, name+": "+string(r.Status))
		}
		checks = append(checks, HealthCheckOutcome{Name: name, Status: outcome, Message: r.Message})
	}

	message := "All plugins healthy"
	if len(issues) > 0 {
		message = "Issues detected: " + strings.Join(issues, "; ")
	}

	return HealthReport{
		Status:    overall,
		Timestamp: timecache.CachedTime(),
		Message:   message,
		Checks:    checks,
	}
}

// Shutdown stops every loop and clears all records.
func (hm *HealthMonitor) Shutdown() {
	hm.mu.Lock()
	checkers := hm.checkers
	hm.checkers = make(map[string]*healthChecker)
	hm.mu.Unlock()

	for _, checker := range checkers {
		checker.stop()
	}
}

func (hm *HealthMonitor) checker(name string) (*healthChecker, error) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	checker, ok := hm.checkers[name]
	if !ok {
		return nil, NewNotMonitoredError(name)
	}
	return checker, nil
}

// resourceOutcome builds the "resources" sub-check from the usage reporter.
// Plugins without a sandbox get no sub-check.
func (hm *HealthMonitor) resourceOutcome(name string) *HealthCheckOutcome {
	hm.mu.RLock()
	reporter := hm.usage
	hm.mu.RUnlock()

	if reporter == nil {
		return nil
	}
	violations, err := reporter.CheckResourceLimits(name)
	if err != nil {
		return nil
	}
	if len(violations) == 0 {
		return &HealthCheckOutcome{Name: "resources", Status: CheckPassed}
	}
	return &HealthCheckOutcome{
		Name:    "resources",
		Status:  CheckWarning,
		Message: describeViolations(violations),
	}
}

func (hm *HealthMonitor) notify(change *StatusChange) {
	if change == nil {
		return
	}

	hm.mu.RLock()
	listeners := make([]StatusChangeHandler, len(hm.listeners))
	copy(listeners, hm.listeners)
	hm.mu.RUnlock()

	hm.logger.Info("Plugin health status changed",
		"plugin", change.Plugin,
		"previous", string(change.Previous),
		"current", string(change.Current))

	for _, listener := range listeners {
		func() {
			defer withStackRecover(hm.logger)()
			listener(*change)
		}()
	}
}

// health_checker.go: Per-plugin health check loop and hysteresis state machine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// healthChecker supervises a single plugin.
//
// runMu serializes check execution so the ticker loop and CheckNow never
// interleave on the same plugin; mu guards the counters and the latest
// report and is never held while plugin code runs.
type healthChecker struct {
	name    string
	check   HealthCheckFunc
	restart RestartFunc
	monitor *HealthMonitor
	logger  Logger

	runMu sync.Mutex
	// inFlight is set while a check goroutine runs, including one abandoned
	// after a timeout; no new check starts until it returns.
	inFlight atomic.Bool

	mu                   sync.RWMutex
	status               HealthStatus
	consecutiveFailures  int
	consecutiveSuccesses int
	restartAttempts      int
	exhausted            bool
	report               HealthReport

	// Control channels
	loopMu   sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

func newHealthChecker(name string, check HealthCheckFunc, restart RestartFunc, monitor *HealthMonitor) *healthChecker {
	return &healthChecker{
		name:    name,
		check:   check,
		restart: restart,
		monitor: monitor,
		logger:  monitor.logger.With("plugin", name),
		status:  StatusUnknown,
		report: HealthReport{
			Plugin:    name,
			Status:    StatusUnknown,
			Timestamp: timecache.CachedTime(),
		},
	}
}

// start launches the periodic loop. It is a no-op when already running.
func (hc *healthChecker) start() {
	hc.loopMu.Lock()
	defer hc.loopMu.Unlock()

	if hc.running {
		return
	}
	hc.running = true
	hc.stopChan = make(chan struct{})
	hc.doneChan = make(chan struct{})
	go hc.run(hc.stopChan, hc.doneChan)
}

// stop halts the loop and waits for an in-flight check to finish.
// Safe to call multiple times.
func (hc *healthChecker) stop() {
	hc.loopMu.Lock()
	if !hc.running {
		hc.loopMu.Unlock()
		return
	}
	hc.running = false
	stopChan, doneChan := hc.stopChan, hc.doneChan
	close(stopChan)
	hc.loopMu.Unlock()

	<-doneChan
}

func (hc *healthChecker) isRunning() bool {
	hc.loopMu.Lock()
	defer hc.loopMu.Unlock()
	return hc.running
}

// run is the main health checking loop. A tick fires every interval
// regardless of how long the previous check took, so slow checks can run
// back to back but never overlap.
func (hc *healthChecker) run(stopChan <-chan struct{}, doneChan chan<- struct{}) {
	defer close(doneChan)
	defer withStackRecover(hc.logger)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	interval := hc.monitor.Config().Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Perform initial health check
	hc.checkOnce(ctx)

	for {
		select {
		case <-ticker.C:
			hc.checkOnce(ctx)

			if current := hc.monitor.Config().Interval; current != interval {
				interval = current
				ticker.Reset(interval)
			}

		case <-stopChan:
			return
		}
	}
}

// checkResult is the classified outcome of one check execution.
type checkResult struct {
	result   HealthCheckResult
	err      error
	panicked bool
	timedOut bool
	skipped  bool
}

// execute runs the plugin's check under the configured hard timeout. A
// check that outlives its timeout keeps the plugin's slot: later executions
// fail without calling the check again until it returns.
func (hc *healthChecker) execute(ctx context.Context, timeout time.Duration) checkResult {
	if hc.check == nil {
		return checkResult{result: HealthCheckResult{Status: StatusHealthy, Message: "plugin loaded"}}
	}

	if !hc.inFlight.CompareAndSwap(false, true) {
		return checkResult{
			skipped: true,
			err:     NewHealthCheckTimeoutError(hc.name, timeout).WithContext("reason", "previous check still running"),
		}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan checkResult, 1)
	go func() {
		out := hc.invoke(cctx)
		hc.inFlight.Store(false)
		done <- out
	}()

	select {
	case out := <-done:
		return out
	case <-cctx.Done():
		return checkResult{timedOut: true, err: NewHealthCheckTimeoutError(hc.name, timeout)}
	}
}

// invoke calls the check and converts a panic into a result.
func (hc *healthChecker) invoke(ctx context.Context) (out checkResult) {
	defer func() {
		if r := recover(); r != nil {
			out = checkResult{panicked: true, err: NewHealthCheckPanicError(hc.name, r)}
		}
	}()
	res, err := hc.check(ctx)
	return checkResult{result: res, err: err}
}

// checkOnce runs one check, applies the state machine and, when the failure
// threshold is reached, drives a restart.
func (hc *healthChecker) checkOnce(ctx context.Context) HealthReport {
	hc.runMu.Lock()
	defer hc.runMu.Unlock()

	cfg := hc.monitor.Config()

	start := time.Now()
	out := hc.execute(ctx, cfg.Timeout)
	responseTime := time.Since(start)

	// Monitoring was stopped mid-check; the result says nothing about the plugin.
	if ctx.Err() != nil {
		return hc.snapshot()
	}

	checks := []HealthCheckOutcome{primaryOutcome(out)}
	checks = append(checks, out.result.Checks...)
	if usage := hc.monitor.resourceOutcome(hc.name); usage != nil {
		checks = append(checks, *usage)
	}

	needsRestart, change := hc.apply(cfg, out, checks, responseTime)
	hc.monitor.notify(change)

	if needsRestart {
		hc.attemptRestart(ctx, cfg)
	}

	return hc.snapshot()
}

func primaryOutcome(out checkResult) HealthCheckOutcome {
	switch {
	case out.panicked:
		return HealthCheckOutcome{Name: "health-check", Status: CheckFailed, Message: out.err.Error()}
	case out.timedOut:
		return HealthCheckOutcome{Name: "health-check", Status: CheckFailed, Message: "timed out"}
	case out.skipped:
		return HealthCheckOutcome{Name: "health-check", Status: CheckFailed, Message: "previous check still running"}
	case out.err != nil:
		return HealthCheckOutcome{Name: "health-check", Status: CheckFailed, Message: out.err.Error()}
	case !isPassing(out.result.Status):
		return HealthCheckOutcome{Name: "health-check", Status: CheckFailed, Message: out.result.Message}
	default:
		return HealthCheckOutcome{Name: "health-check", Status: CheckPassed, Message: out.result.Message}
	}
}

func isPassing(status HealthStatus) bool {
	return status == "" || status == StatusHealthy
}

// apply updates counters and status for one check result. It returns
// whether a restart should be attempted and the status change, if any.
func (hc *healthChecker) apply(cfg HealthMonitorConfig, out checkResult, checks []HealthCheckOutcome, responseTime time.Duration) (bool, *StatusChange) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	previous := hc.status
	needsRestart := false
	message := out.result.Message

	switch {
	case out.panicked:
		hc.consecutiveSuccesses = 0
		hc.consecutiveFailures++
		hc.status = StatusFailed
		message = out.err.Error()
		hc.logger.Error("Health check panicked",
			"failures", hc.consecutiveFailures,
			"error", out.err)

	case out.err != nil || !isPassing(out.result.Status):
		hc.consecutiveSuccesses = 0
		hc.consecutiveFailures++
		if out.err != nil {
			message = out.err.Error()
		}

		switch {
		case hc.exhausted:
			hc.status = StatusFailed
		case hc.consecutiveFailures >= cfg.FailureThreshold:
			hc.status = StatusUnhealthy
			needsRestart = cfg.AutoRestart && hc.restart != nil
		default:
			hc.status = StatusDegraded
		}
		hc.logger.Warn("Health check failed",
			"failures", hc.consecutiveFailures,
			"status", string(hc.status),
			"timed_out", out.timedOut,
			"message", message)

	default:
		hc.consecutiveFailures = 0
		hc.consecutiveSuccesses++

		// Unhealthy, degraded and recovering plugins climb back through
		// recovering. Restart attempts accumulate over the plugin's lifetime.
		switch {
		case hc.exhausted:
			hc.status = StatusFailed
		case previous != StatusUnhealthy && previous != StatusDegraded && previous != StatusRecovering:
			hc.status = StatusHealthy
		case hc.consecutiveSuccesses >= cfg.SuccessThreshold:
			hc.status = StatusHealthy
		default:
			hc.status = StatusRecovering
		}
	}

	hc.report = HealthReport{
		Plugin:               hc.name,
		Status:               hc.status,
		Timestamp:            timecache.CachedTime(),
		Message:              message,
		Checks:               checks,
		ResponseTime:         responseTime,
		ConsecutiveFailures:  hc.consecutiveFailures,
		ConsecutiveSuccesses: hc.consecutiveSuccesses,
		RestartAttempts:      hc.restartAttempts,
	}

	return needsRestart, hc.changeLocked(previous)
}

func (hc *healthChecker) changeLocked(previous HealthStatus) *StatusChange {
	if previous == hc.status {
		return nil
	}
	return &StatusChange{
		Plugin:   hc.name,
		Previous: previous,
		Current:  hc.status,
		Report:   hc.report.clone(),
	}
}

// attemptRestart waits out the backoff delay and restarts the plugin. Once
// MaxRestartAttempts restarts have been made the plugin is marked failed
// and never restarted again.
func (hc *healthChecker) attemptRestart(ctx context.Context, cfg HealthMonitorConfig) {
	hc.mu.Lock()
	if hc.restartAttempts >= cfg.MaxRestartAttempts {
		previous := hc.status
		hc.exhausted = true
		hc.status = StatusFailed
		hc.report.Status = StatusFailed
		hc.report.Message = fmt.Sprintf("restart attempts exhausted (%d)", hc.restartAttempts)
		change := hc.changeLocked(previous)
		hc.mu.Unlock()

		hc.logger.Error("Plugin marked failed, restart attempts exhausted",
			"attempts", cfg.MaxRestartAttempts)
		hc.monitor.notify(change)
		return
	}
	attempt := hc.restartAttempts
	hc.mu.Unlock()

	delay := Backoff(cfg.RestartBackoff, attempt, cfg.RestartBaseDelay)
	if cfg.MaxRestartDelay > 0 && delay > cfg.MaxRestartDelay {
		delay = cfg.MaxRestartDelay
	}

	hc.logger.Info("Restarting plugin", "attempt", attempt+1, "delay", delay)

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	hc.mu.Lock()
	hc.restartAttempts++
	hc.report.RestartAttempts = hc.restartAttempts
	hc.mu.Unlock()

	if err := callGuarded(func() error { return hc.restart(ctx) }); err != nil {
		hc.logger.Warn("Plugin restart failed",
			"error", NewRestartFailedError(hc.name, attempt+1, err))
		return
	}

	hc.mu.Lock()
	previous := hc.status
	hc.consecutiveFailures = 0
	hc.consecutiveSuccesses = 0
	hc.status = StatusRecovering
	hc.report.Status = StatusRecovering
	hc.report.Message = "restarted"
	hc.report.ConsecutiveFailures = 0
	hc.report.ConsecutiveSuccesses = 0
	change := hc.changeLocked(previous)
	hc.mu.Unlock()

	hc.logger.Info("Plugin restarted", "attempt", attempt+1)
	hc.monitor.notify(change)
}

func (hc *healthChecker) snapshot() HealthReport {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.report.clone()
}

func (hc *healthChecker) currentStatus() HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.status
}

func describeViolations(violations []ResourceViolation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "; ")
}

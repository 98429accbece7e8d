// health_types.go: Health statuses, reports, check contract and monitor configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	"time"
)

// HealthStatus is the supervised state of a monitored plugin.
//
// Status levels:
//   - StatusHealthy: checks pass
//   - StatusDegraded: checks fail but the failure threshold is not reached yet
//   - StatusUnhealthy: the failure threshold was reached
//   - StatusRecovering: checks pass again but not yet successThreshold times in a row
//   - StatusFailed: the check itself panicked, or restarts were exhausted
//   - StatusUnknown: no check has completed yet
type HealthStatus string

const (
	StatusHealthy    HealthStatus = "healthy"
	StatusDegraded   HealthStatus = "degraded"
	StatusUnhealthy  HealthStatus = "unhealthy"
	StatusRecovering HealthStatus = "recovering"
	StatusFailed     HealthStatus = "failed"
	StatusUnknown    HealthStatus = "unknown"
)

// CheckOutcome is the result of a named sub-check inside a report.
type CheckOutcome string

const (
	CheckPassed  CheckOutcome = "passed"
	CheckFailed  CheckOutcome = "failed"
	CheckWarning CheckOutcome = "warning"
)

// HealthCheckOutcome is one named sub-check of a HealthReport.
type HealthCheckOutcome struct {
	Name    string       `json:"name"`
	Status  CheckOutcome `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthReport is the latest snapshot of a plugin's health.
type HealthReport struct {
	Plugin               string               `json:"plugin"`
	Status               HealthStatus         `json:"status"`
	Timestamp            time.Time            `json:"timestamp"`
	Message              string               `json:"message,omitempty"`
	Checks               []HealthCheckOutcome `json:"checks,omitempty"`
	ResponseTime         time.Duration        `json:"response_time"`
	ConsecutiveFailures  int                  `json:"consecutive_failures"`
	ConsecutiveSuccesses int                  `json:"consecutive_successes"`
	RestartAttempts      int                  `json:"restart_attempts"`
}

func (r HealthReport) clone() HealthReport {
	if r.Checks != nil {
		checks := make([]HealthCheckOutcome, len(r.Checks))
		copy(checks, r.Checks)
		r.Checks = checks
	}
	return r
}

// HealthCheckResult is what a plugin's health check reports.
// An empty Status counts as healthy.
type HealthCheckResult struct {
	Status  HealthStatus
	Message string
	Checks  []HealthCheckOutcome
}

// HealthCheckFunc is the optional health check of a plugin. Returning an
// error, or a non-healthy status, counts as a failed check.
//
// Example usage:
//
//	plugin := &microkernel.Plugin{
//	    Name: "db",
//	    HealthCheck: func(ctx context.Context) (microkernel.HealthCheckResult, error) {
//	        if err := pool.PingContext(ctx); err != nil {
//	            return microkernel.HealthCheckResult{}, err
//	        }
//	        return microkernel.HealthCheckResult{Status: microkernel.StatusHealthy}, nil
//	    },
//	}
type HealthCheckFunc func(ctx context.Context) (HealthCheckResult, error)

// BoolHealthCheck adapts a plain boolean check.
func BoolHealthCheck(check func(ctx context.Context) bool) HealthCheckFunc {
	return func(ctx context.Context) (HealthCheckResult, error) {
		if check(ctx) {
			return HealthCheckResult{Status: StatusHealthy}, nil
		}
		return HealthCheckResult{Status: StatusUnhealthy, Message: "health check returned false"}, nil
	}
}

// RestartFunc restarts a plugin on behalf of the health monitor.
type RestartFunc func(ctx context.Context) error

// StatusChange describes a status transition of a monitored plugin.
type StatusChange struct {
	Plugin   string       `json:"plugin"`
	Previous HealthStatus `json:"previous"`
	Current  HealthStatus `json:"current"`
	Report   HealthReport `json:"report"`
}

// StatusChangeHandler is notified of every status transition.
type StatusChangeHandler func(change StatusChange)

// UsageReporter supplies resource ceiling violations for the "resources"
// sub-check of a report. The sandbox runtime implements it.
type UsageReporter interface {
	CheckResourceLimits(pluginID string) ([]ResourceViolation, error)
}

// BackoffStrategy defines the delay progression between restart attempts.
type BackoffStrategy string

const (
	BackoffStrategyFixed       BackoffStrategy = "fixed"
	BackoffStrategyLinear      BackoffStrategy = "linear"
	BackoffStrategyExponential BackoffStrategy = "exponential"
)

// Backoff returns the delay before restart attempt number attempt (zero based):
//   - fixed: base
//   - linear: attempt * base
//   - exponential: base * 2^attempt
//
// Unknown strategies fall back to fixed.
func Backoff(strategy BackoffStrategy, attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	switch strategy {
	case BackoffStrategyLinear:
		return time.Duration(attempt) * base
	case BackoffStrategyExponential:
		delay := base
		for i := 0; i < attempt; i++ {
			delay *= 2
		}
		return delay
	default:
		return base
	}
}

// HealthMonitorConfig configures the supervisory loop.
type HealthMonitorConfig struct {
	// Turns supervision off for every plugin of a kernel
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// How often each plugin is checked
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Hard timeout of a single check
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Consecutive failures before a plugin is unhealthy
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`

	// Consecutive successes before a recovering plugin is healthy
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold"`

	// Restart unhealthy plugins automatically
	AutoRestart bool `json:"auto_restart" yaml:"auto_restart"`

	// Restarts allowed before the plugin is marked failed for good
	MaxRestartAttempts int `json:"max_restart_attempts" yaml:"max_restart_attempts"`

	RestartBackoff   BackoffStrategy `json:"restart_backoff" yaml:"restart_backoff"`
	RestartBaseDelay time.Duration   `json:"restart_base_delay" yaml:"restart_base_delay"`

	// Upper bound for a single backoff delay, zero means unbounded
	MaxRestartDelay time.Duration `json:"max_restart_delay" yaml:"max_restart_delay"`
}

// DefaultHealthMonitorConfig returns the default supervision settings.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		Interval:           30 * time.Second,
		Timeout:            5 * time.Second,
		FailureThreshold:   3,
		SuccessThreshold:   2,
		AutoRestart:        true,
		MaxRestartAttempts: 3,
		RestartBackoff:     BackoffStrategyExponential,
		RestartBaseDelay:   time.Second,
		MaxRestartDelay:    5 * time.Minute,
	}
}

// ApplyDefaults fills zero values with the defaults.
func (c *HealthMonitorConfig) ApplyDefaults() {
	defaults := DefaultHealthMonitorConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = defaults.SuccessThreshold
	}
	if c.MaxRestartAttempts < 0 {
		c.MaxRestartAttempts = 0
	}
	// Auto restart with no attempts would give up on the first failure.
	if c.AutoRestart && c.MaxRestartAttempts == 0 {
		c.MaxRestartAttempts = defaults.MaxRestartAttempts
	}
	if c.RestartBackoff == "" {
		c.RestartBackoff = defaults.RestartBackoff
	}
	if c.RestartBaseDelay <= 0 {
		c.RestartBaseDelay = defaults.RestartBaseDelay
	}
}

// Validate checks the configuration for values ApplyDefaults cannot fix.
func (c HealthMonitorConfig) Validate() error {
	switch c.RestartBackoff {
	case "", BackoffStrategyFixed, BackoffStrategyLinear, BackoffStrategyExponential:
	default:
		return NewConfigValidationError("unknown restart backoff strategy: " + string(c.RestartBackoff))
	}
	if c.Interval < 0 || c.Timeout < 0 || c.RestartBaseDelay < 0 || c.MaxRestartDelay < 0 {
		return NewConfigValidationError("health durations must not be negative")
	}
	if c.FailureThreshold < 0 || c.SuccessThreshold < 0 || c.MaxRestartAttempts < 0 {
		return NewConfigValidationError("health thresholds must not be negative")
	}
	return nil
}

// errors.go: structured error definitions for the microkernel
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	stderrors "errors"
	"strings"

	"github.com/agilira/go-errors"
)

// Error codes for the microkernel
const (
	// Kernel state and registry errors (1000-1099)
	ErrCodeInvalidState      = "KERNEL_1001"
	ErrCodeAlreadyRegistered = "KERNEL_1002"
	ErrCodeInvalidPluginName = "KERNEL_1003"
	ErrCodePluginNotFound    = "KERNEL_1004"
	ErrCodeDependencyInUse   = "KERNEL_1005"
	ErrCodeLifecycleFailed   = "KERNEL_1006"
	ErrCodePluginDisabled    = "KERNEL_1007"

	// Resolution errors (2000-2099)
	ErrCodeInvalidVersion     = "RESOLVE_2001"
	ErrCodeMissingDependency  = "RESOLVE_2002"
	ErrCodeCircularDependency = "RESOLVE_2003"
	ErrCodeVersionMismatch    = "RESOLVE_2004"

	// Health errors (3000-3099)
	ErrCodeHealthCheckTimeout = "HEALTH_3001"
	ErrCodeHealthCheckFailed  = "HEALTH_3002"
	ErrCodeHealthCheckPanic   = "HEALTH_3003"
	ErrCodeRestartFailed      = "HEALTH_3004"
	ErrCodeNotMonitored       = "HEALTH_3005"

	// Sandbox errors (4000-4099)
	ErrCodeDuplicateSandbox = "SANDBOX_4001"
	ErrCodeSandboxNotFound  = "SANDBOX_4002"
	ErrCodeSandboxViolation = "SANDBOX_4003"
	ErrCodeInvalidPolicy    = "SANDBOX_4004"

	// Service registry errors (5000-5099)
	ErrCodeServiceNotFound          = "SERVICE_5001"
	ErrCodeServiceAlreadyRegistered = "SERVICE_5002"
	ErrCodeInvalidServiceName       = "SERVICE_5003"

	// Configuration errors (6000-6099)
	ErrCodeConfigNotFound   = "CONFIG_6001"
	ErrCodeConfigParse      = "CONFIG_6002"
	ErrCodeConfigValidation = "CONFIG_6003"
	ErrCodeConfigWatcher    = "CONFIG_6004"

	// Storage errors (7000-7099)
	ErrCodeStorageUnavailable = "STORAGE_7001"
	ErrCodeStorageOperation   = "STORAGE_7002"

	// Event bridge errors (8000-8099)
	ErrCodeEventPublish = "EVENTS_8001"
)

// Kernel error constructors

func NewInvalidStateError(operation string, current KernelState) *errors.Error {
	return errors.New(ErrCodeInvalidState, "Invalid kernel state for "+operation).
		WithUserMessage("The operation is not allowed in the current kernel state").
		WithContext("operation", operation).
		WithContext("state", current.String()).
		WithSeverity("error")
}

func NewAlreadyRegisteredError(name string) *errors.Error {
	return errors.New(ErrCodeAlreadyRegistered, "Plugin already registered").
		WithUserMessage("A plugin with the same name is already registered").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

func NewInvalidPluginNameError(name string) *errors.Error {
	return errors.New(ErrCodeInvalidPluginName, "Invalid plugin name").
		WithUserMessage("Plugin name is required and cannot be empty").
		WithContext("provided_name", name).
		WithSeverity("error")
}

func NewPluginNotFoundError(name string) *errors.Error {
	return errors.New(ErrCodePluginNotFound, "Plugin not found").
		WithUserMessage("The requested plugin is not registered with the kernel").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

func NewDependencyInUseError(name string, dependents []string) *errors.Error {
	return errors.New(ErrCodeDependencyInUse, "Plugin is required by active dependents").
		WithUserMessage("Deactivate the dependent plugins first").
		WithContext("plugin_name", name).
		WithContext("dependents", strings.Join(dependents, ",")).
		WithSeverity("error")
}

func NewLifecycleFailedError(name, phase string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeLifecycleFailed, "Plugin "+phase+" failed").
		WithUserMessage("A plugin lifecycle hook returned an error").
		WithContext("plugin_name", name).
		WithContext("phase", phase).
		WithSeverity("error")
}

func NewPluginDisabledError(name string) *errors.Error {
	return errors.New(ErrCodePluginDisabled, "Plugin disabled by configuration").
		WithUserMessage("The plugin is disabled in the kernel configuration").
		WithContext("plugin_name", name).
		WithSeverity("warning")
}

// Resolution error constructors

func NewInvalidVersionError(version string) *errors.Error {
	return errors.New(ErrCodeInvalidVersion, "Invalid version").
		WithUserMessage("Version must be MAJOR.MINOR.PATCH with optional -prerelease and +build").
		WithContext("version", version).
		WithSeverity("error")
}

func NewMissingDependencyError(plugin, dependency string) *errors.Error {
	return errors.New(ErrCodeMissingDependency, "Missing dependency").
		WithUserMessage("A declared dependency is not registered").
		WithContext("plugin_name", plugin).
		WithContext("dependency", dependency).
		WithSeverity("error")
}

func NewCircularDependencyError(plugins []string) *errors.Error {
	return errors.New(ErrCodeCircularDependency, "Circular dependency detected: "+strings.Join(plugins, ", ")).
		WithUserMessage("Plugin dependencies must form an acyclic graph").
		WithContext("plugins", strings.Join(plugins, ",")).
		WithSeverity("error")
}

func NewVersionMismatchError(dependency, installed, constraint, requiredBy string) *errors.Error {
	return errors.New(ErrCodeVersionMismatch, "Version mismatch").
		WithUserMessage("An installed plugin version does not satisfy a dependency constraint").
		WithContext("dependency", dependency).
		WithContext("installed", installed).
		WithContext("constraint", constraint).
		WithContext("required_by", requiredBy).
		WithSeverity("error")
}

// Health error constructors

func NewHealthCheckTimeoutError(pluginName string, timeout interface{}) *errors.Error {
	return errors.New(ErrCodeHealthCheckTimeout, "Health check timeout").
		WithUserMessage("Plugin health check timed out").
		WithContext("plugin_name", pluginName).
		WithContext("timeout", timeout).
		WithSeverity("warning").
		AsRetryable()
}

func NewHealthCheckFailedError(pluginName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeHealthCheckFailed, "Health check failed").
		WithUserMessage("Plugin health check failed").
		WithContext("plugin_name", pluginName).
		WithSeverity("warning")
}

func NewHealthCheckPanicError(pluginName string, recovered interface{}) *errors.Error {
	return errors.New(ErrCodeHealthCheckPanic, "Health check panicked").
		WithUserMessage("Plugin health check raised an exception").
		WithContext("plugin_name", pluginName).
		WithContext("panic", recovered).
		WithSeverity("error")
}

func NewRestartFailedError(pluginName string, attempt int, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeRestartFailed, "Plugin restart failed").
		WithUserMessage("Automatic plugin restart failed").
		WithContext("plugin_name", pluginName).
		WithContext("attempt", attempt).
		WithSeverity("warning")
}

func NewNotMonitoredError(pluginName string) *errors.Error {
	return errors.New(ErrCodeNotMonitored, "Plugin not monitored").
		WithUserMessage("The plugin is not registered with the health monitor").
		WithContext("plugin_name", pluginName).
		WithSeverity("warning")
}

// Sandbox error constructors

func NewDuplicateSandboxError(pluginID string) *errors.Error {
	return errors.New(ErrCodeDuplicateSandbox, "Sandbox already exists").
		WithUserMessage("A sandbox already exists for this plugin").
		WithContext("plugin_name", pluginID).
		WithSeverity("error")
}

func NewSandboxNotFoundError(pluginID string) *errors.Error {
	return errors.New(ErrCodeSandboxNotFound, "Sandbox not found").
		WithUserMessage("No sandbox exists for this plugin").
		WithContext("plugin_name", pluginID).
		WithSeverity("warning")
}

func NewSandboxViolationError(pluginID string, kind ResourceKind, target, reason string) *errors.Error {
	return errors.New(ErrCodeSandboxViolation, "Sandbox violation").
		WithUserMessage("The plugin attempted an operation its sandbox policy denies").
		WithContext("plugin_name", pluginID).
		WithContext("resource", string(kind)).
		WithContext("target", target).
		WithContext("reason", reason).
		WithSeverity("warning")
}

func NewInvalidPolicyError(pluginID, message string) *errors.Error {
	return errors.New(ErrCodeInvalidPolicy, "Invalid sandbox policy: "+message).
		WithUserMessage("The sandbox policy is malformed").
		WithContext("plugin_name", pluginID).
		WithSeverity("error")
}

// Service registry error constructors

func NewServiceNotFoundError(name string) *errors.Error {
	return errors.New(ErrCodeServiceNotFound, "Service not found").
		WithUserMessage("No service is registered under this name").
		WithContext("service_name", name).
		WithSeverity("error")
}

func NewServiceAlreadyRegisteredError(name, owner string) *errors.Error {
	return errors.New(ErrCodeServiceAlreadyRegistered, "Service already registered").
		WithUserMessage("A service with the same name is already registered").
		WithContext("service_name", name).
		WithContext("owner", owner).
		WithSeverity("error")
}

func NewInvalidServiceNameError(owner string) *errors.Error {
	return errors.New(ErrCodeInvalidServiceName, "Invalid service name").
		WithUserMessage("Service name is required and cannot be empty").
		WithContext("owner", owner).
		WithSeverity("error")
}

// Configuration error constructors

func NewConfigNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The configuration file could not be found").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParse, "Configuration parse error").
		WithUserMessage("Failed to parse configuration file").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string) *errors.Error {
	return errors.New(ErrCodeConfigValidation, "Configuration validation error: "+message).
		WithUserMessage("Configuration validation failed").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	var err *errors.Error
	if cause == nil {
		err = errors.New(ErrCodeConfigWatcher, "Configuration watcher error: "+message)
	} else {
		err = errors.Wrap(cause, ErrCodeConfigWatcher, "Configuration watcher error: "+message)
	}
	return err.
		WithUserMessage("Configuration monitoring failed").
		WithSeverity("error")
}

// Storage error constructors

func NewStorageUnavailableError(backend string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStorageUnavailable, "Storage backend unavailable").
		WithUserMessage("Failed to connect to the plugin state backend").
		WithContext("backend", backend).
		WithSeverity("error").
		AsRetryable()
}

func NewStorageOperationError(operation, key string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStorageOperation, "Storage operation failed: "+operation).
		WithUserMessage("Plugin state operation failed").
		WithContext("operation", operation).
		WithContext("key", key).
		WithSeverity("error")
}

// Event bridge error constructors

func NewEventPublishError(event string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeEventPublish, "Event publish failed").
		WithUserMessage("Failed to publish kernel event").
		WithContext("event", event).
		WithSeverity("warning").
		AsRetryable()
}

// HasErrorCode reports whether err, or any error it wraps, is a structured
// error carrying the given code.
func HasErrorCode(err error, code errors.ErrorCode) bool {
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return structured.Code == code
	}
	return false
}

// argus_config_watcher.go: Kernel configuration hot reload with Argus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// ConfigWatcherOptions configures a ConfigWatcher.
type ConfigWatcherOptions struct {
	// How often Argus polls the file
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Stat cache lifetime; should be <= PollInterval
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`

	// Environment expansion applied on every load
	Env EnvConfigOptions `json:"env" yaml:"env"`

	// Argus audit trail of configuration changes
	AuditConfig argus.AuditConfig `json:"audit_config" yaml:"audit_config"`
}

// DefaultConfigWatcherOptions returns defaults suited to config files.
func DefaultConfigWatcherOptions() ConfigWatcherOptions {
	return ConfigWatcherOptions{
		PollInterval: 5 * time.Second,
		CacheTTL:     2 * time.Second,
		Env:          DefaultEnvConfigOptions(),
		AuditConfig: argus.AuditConfig{
			Enabled:       false,
			MinLevel:      argus.AuditInfo,
			BufferSize:    1000,
			FlushInterval: 5 * time.Second,
		},
	}
}

// ConfigWatcher keeps a kernel in sync with its configuration file.
//
// On every change Argus reports, the file is reloaded, validated and passed
// to Kernel.ApplyConfig. A reload that fails to load or apply is logged and
// the previous configuration stays in effect.
//
// Example usage:
//
//	watcher, err := microkernel.NewConfigWatcher(kernel, "kernel.yaml",
//	    microkernel.DefaultConfigWatcherOptions(), logger)
//	if err != nil {
//	    return err
//	}
//	if err := watcher.Start(ctx); err != nil {
//	    return err
//	}
//	defer watcher.Stop()
type ConfigWatcher struct {
	kernel     *Kernel
	watcher    *argus.Watcher
	configPath string
	options    ConfigWatcherOptions
	logger     Logger

	mu       sync.Mutex
	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once

	current       atomic.Pointer[KernelConfig]
	reloads       atomic.Int64
	failedReloads atomic.Int64
}

// NewConfigWatcher creates a watcher for configPath bound to kernel.
func NewConfigWatcher(kernel *Kernel, configPath string, options ConfigWatcherOptions, logger any) (*ConfigWatcher, error) {
	if kernel == nil {
		return nil, NewConfigWatcherError("kernel must not be nil", nil)
	}
	if configPath == "" {
		return nil, NewConfigNotFoundError(configPath)
	}

	defaults := DefaultConfigWatcherOptions()
	if options.PollInterval <= 0 {
		options.PollInterval = defaults.PollInterval
	}
	if options.CacheTTL <= 0 || options.CacheTTL > options.PollInterval {
		options.CacheTTL = options.PollInterval / 2
	}

	internalLogger := NewLogger(logger).With("component", "config_watcher")

	watcher := argus.New(argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      5,
		Audit:                options.AuditConfig,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			internalLogger.Error("Config file watching error", "error", err, "file", filepath)
		},
	})

	return &ConfigWatcher{
		kernel:     kernel,
		watcher:    watcher,
		configPath: configPath,
		options:    options,
		logger:     internalLogger,
	}, nil
}

// Start loads and applies the current file, then begins watching it.
// A stopped watcher cannot be restarted.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if cw.stopped.Load() {
		return NewConfigWatcherError("config watcher has been stopped and cannot be restarted", nil)
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.enabled.CompareAndSwap(false, true) {
		return NewConfigWatcherError("config watcher is already running", nil)
	}

	if err := cw.reload(ctx, cw.configPath); err != nil {
		cw.enabled.Store(false)
		return err
	}

	if err := cw.watcher.Watch(cw.configPath, cw.handleConfigChange); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to watch config file", err)
	}
	if err := cw.watcher.Start(); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to start Argus watcher", err)
	}

	cw.logger.Info("Configuration watcher started",
		"config_path", cw.configPath,
		"poll_interval", cw.options.PollInterval)
	return nil
}

// Stop stops watching. Safe to call more than once.
func (cw *ConfigWatcher) Stop() error {
	var stopErr error
	cw.stopOnce.Do(func() {
		cw.mu.Lock()
		defer cw.mu.Unlock()

		cw.stopped.Store(true)
		if !cw.enabled.CompareAndSwap(true, false) {
			return
		}
		if err := cw.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop Argus watcher", err)
			return
		}
		cw.logger.Info("Configuration watcher stopped")
	})
	return stopErr
}

// IsRunning reports whether the watcher is active.
func (cw *ConfigWatcher) IsRunning() bool {
	return cw.enabled.Load() && !cw.stopped.Load()
}

// CurrentConfig returns the last configuration applied successfully, or nil.
func (cw *ConfigWatcher) CurrentConfig() *KernelConfig {
	current := cw.current.Load()
	if current == nil {
		return nil
	}
	clone := current.Clone()
	return &clone
}

// Reload reloads the file immediately, outside of the polling schedule.
func (cw *ConfigWatcher) Reload(ctx context.Context) error {
	return cw.reload(ctx, cw.configPath)
}

// Stats returns the number of successful and failed reloads.
func (cw *ConfigWatcher) Stats() (reloads, failed int64) {
	return cw.reloads.Load(), cw.failedReloads.Load()
}

func (cw *ConfigWatcher) reload(ctx context.Context, path string) error {
	config, err := LoadConfigFromFileWithEnv(path, cw.options.Env)
	if err != nil {
		cw.failedReloads.Add(1)
		cw.logger.Error("Failed to load configuration", "error", err, "path", path)
		return err
	}

	if err := cw.kernel.ApplyConfig(ctx, config); err != nil {
		cw.failedReloads.Add(1)
		cw.logger.Error("Failed to apply configuration", "error", err, "path", path)
		return err
	}

	cw.current.Store(&config)
	cw.reloads.Add(1)
	cw.logger.Info("Configuration applied",
		"path", path,
		"plugins", len(config.Plugins))
	return nil
}

func (cw *ConfigWatcher) handleConfigChange(event argus.ChangeEvent) {
	cw.logger.Debug("Configuration file change detected",
		"path", event.Path,
		"mod_time", event.ModTime,
		"size", event.Size,
		"is_delete", event.IsDelete)

	if event.IsDelete {
		cw.logger.Warn("Configuration file was deleted, keeping current configuration", "path", event.Path)
		return
	}

	// Errors are logged by reload; the previous configuration stays active.
	_ = cw.reload(context.Background(), event.Path)
}

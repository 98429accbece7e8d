// sandbox.go: Per-plugin resource accounting and capability checks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// SandboxConfig configures the sandbox runtime.
type SandboxConfig struct {
	// Interval of the per-sandbox usage sampler
	SampleInterval time.Duration `json:"sample_interval" yaml:"sample_interval"`

	// Policy applied to plugins that do not declare one; nil means such
	// plugins get no sandbox
	DefaultPolicy *SandboxPolicy `json:"default_policy,omitempty" yaml:"default_policy,omitempty"`
}

// DefaultSandboxConfig returns the default sandbox settings.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{SampleInterval: 5 * time.Second}
}

// ResourceUsage is a usage snapshot, always relative to the baselines
// captured when the sandbox was created.
type ResourceUsage struct {
	MemoryBytes       uint64    `json:"memory_bytes"`
	PeakMemoryBytes   uint64    `json:"peak_memory_bytes"`
	CPUPercent        float64   `json:"cpu_percent"`
	AverageCPUPercent float64   `json:"average_cpu_percent"`
	Connections       int       `json:"connections"`
	Samples           int       `json:"samples"`
	LastSample        time.Time `json:"last_sample"`
}

// Sandbox is a read-only view of a plugin's sandbox context.
type Sandbox struct {
	ID        string        `json:"id"`
	PluginID  string        `json:"plugin_id"`
	Policy    SandboxPolicy `json:"policy"`
	CreatedAt time.Time     `json:"created_at"`
	Usage     ResourceUsage `json:"usage"`
}

// processSample is a reading of the process-wide counters.
type processSample struct {
	heap uint64
	cpu  time.Duration
	at   time.Time
}

func readProcessSample() processSample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return processSample{heap: ms.HeapAlloc, cpu: processCPUTime(), at: time.Now()}
}

type sandboxContext struct {
	id        string
	pluginID  string
	policy    SandboxPolicy
	createdAt time.Time

	// Captured once at creation, never mutated
	baseline processSample

	mu    sync.Mutex
	usage ResourceUsage
	last  processSample

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func (sc *sandboxContext) view() Sandbox {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return Sandbox{
		ID:        sc.id,
		PluginID:  sc.pluginID,
		Policy:    sc.policy.Clone(),
		CreatedAt: sc.createdAt,
		Usage:     sc.usage,
	}
}

func (sc *sandboxContext) stop() {
	sc.stopOnce.Do(func() {
		close(sc.stopChan)
	})
	<-sc.doneChan
}

// SandboxRuntime creates per-plugin sandboxes and answers access checks.
//
// Memory and CPU usage are derived from process-wide counters (heap
// allocation and process CPU time) as deltas from each sandbox's baseline.
// Plugins share one address space, so the figures are an approximation
// that is only meaningful while a single plugin is active. The runtime is
// a capability checking aid, not a security boundary: it reports
// violations and leaves enforcement to callers.
type SandboxRuntime struct {
	mu        sync.RWMutex
	sandboxes map[string]*sandboxContext
	config    SandboxConfig
	logger    Logger

	// readSample reads the process counters; replaced in tests
	readSample func() processSample
}

// NewSandboxRuntime creates a sandbox runtime.
func NewSandboxRuntime(config SandboxConfig, logger Logger) *SandboxRuntime {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = DefaultSandboxConfig().SampleInterval
	}
	return &SandboxRuntime{
		sandboxes:  make(map[string]*sandboxContext),
		config:     config,
		logger:     logger.With("component", "sandbox_runtime"),
		readSample: readProcessSample,
	}
}

// Config returns the runtime configuration.
func (sr *SandboxRuntime) Config() SandboxConfig {
	return sr.config
}

// CreateSandbox creates the sandbox of pluginID and starts its sampler.
func (sr *SandboxRuntime) CreateSandbox(pluginID string, policy SandboxPolicy) (Sandbox, error) {
	if err := policy.Validate(); err != nil {
		return Sandbox{}, NewInvalidPolicyError(pluginID, err.Error())
	}
	if policy.Level == "" {
		policy.Level = SandboxLevelStandard
	}

	sr.mu.Lock()
	if _, exists := sr.sandboxes[pluginID]; exists {
		sr.mu.Unlock()
		return Sandbox{}, NewDuplicateSandboxError(pluginID)
	}

	baseline := sr.readSample()
	sc := &sandboxContext{
		id:        uuid.NewString(),
		pluginID:  pluginID,
		policy:    policy.Clone(),
		createdAt: timecache.CachedTime(),
		baseline:  baseline,
		last:      baseline,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	sr.sandboxes[pluginID] = sc
	sr.mu.Unlock()

	go sr.sampleLoop(sc)

	sr.logger.Info("Sandbox created",
		"plugin", pluginID,
		"sandbox_id", sc.id,
		"level", string(sc.policy.Level))
	return sc.view(), nil
}

// DestroySandbox stops the sampler of pluginID and discards its state.
// Destroying an unknown sandbox is a no-op.
func (sr *SandboxRuntime) DestroySandbox(pluginID string) {
	sr.mu.Lock()
	sc, exists := sr.sandboxes[pluginID]
	delete(sr.sandboxes, pluginID)
	sr.mu.Unlock()

	if !exists {
		return
	}
	sc.stop()
	sr.logger.Info("Sandbox destroyed", "plugin", pluginID, "sandbox_id", sc.id)
}

// GetSandbox returns a copy of pluginID's sandbox.
func (sr *SandboxRuntime) GetSandbox(pluginID string) (Sandbox, error) {
	sc, err := sr.lookup(pluginID)
	if err != nil {
		return Sandbox{}, err
	}
	return sc.view(), nil
}

// GetAllSandboxes returns a snapshot of every sandbox.
func (sr *SandboxRuntime) GetAllSandboxes() map[string]Sandbox {
	sr.mu.RLock()
	contexts := make([]*sandboxContext, 0, len(sr.sandboxes))
	for _, sc := range sr.sandboxes {
		contexts = append(contexts, sc)
	}
	sr.mu.RUnlock()

	result := make(map[string]Sandbox, len(contexts))
	for _, sc := range contexts {
		result[sc.pluginID] = sc.view()
	}
	return result
}

// GetResourceUsage returns pluginID's latest usage snapshot.
func (sr *SandboxRuntime) GetResourceUsage(pluginID string) (ResourceUsage, error) {
	sc, err := sr.lookup(pluginID)
	if err != nil {
		return ResourceUsage{}, err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.usage, nil
}

// TrackConnection adjusts pluginID's open connection count by delta.
func (sr *SandboxRuntime) TrackConnection(pluginID string, delta int) error {
	sc, err := sr.lookup(pluginID)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.usage.Connections += delta
	if sc.usage.Connections < 0 {
		sc.usage.Connections = 0
	}
	return nil
}

// CheckResourceLimits compares pluginID's usage with its ceilings and
// returns every violated ceiling.
func (sr *SandboxRuntime) CheckResourceLimits(pluginID string) ([]ResourceViolation, error) {
	sc, err := sr.lookup(pluginID)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	usage := sc.usage
	sc.mu.Unlock()

	var violations []ResourceViolation
	if m := sc.policy.Memory; m != nil && m.MaxHeap > 0 && usage.MemoryBytes > m.MaxHeap {
		violations = append(violations, ResourceViolation{
			Resource: "memory",
			Limit:    float64(m.MaxHeap),
			Actual:   float64(usage.MemoryBytes),
		})
	}
	if rt := sc.policy.Runtime; rt != nil {
		limits := rt.ResourceLimits
		if limits.MaxCPU > 0 && usage.CPUPercent > limits.MaxCPU {
			violations = append(violations, ResourceViolation{
				Resource: "cpu",
				Limit:    limits.MaxCPU,
				Actual:   usage.CPUPercent,
			})
		}
		if limits.MaxConnections > 0 && usage.Connections > limits.MaxConnections {
			violations = append(violations, ResourceViolation{
				Resource: "connections",
				Limit:    float64(limits.MaxConnections),
				Actual:   float64(usage.Connections),
			})
		}
	}
	return violations, nil
}

// CheckResourceAccess decides whether pluginID may access target.
// It never fails; denials carry the reason.
func (sr *SandboxRuntime) CheckResourceAccess(pluginID string, kind ResourceKind, target string) AccessDecision {
	sc, err := sr.lookup(pluginID)
	if err != nil {
		return deny("no sandbox for plugin " + pluginID)
	}

	var decision AccessDecision
	switch kind {
	case ResourceFilesystem:
		decision = checkFilesystem(sc.policy, target)
	case ResourceNetwork:
		decision = checkNetwork(sc.policy, target)
	case ResourceProcess:
		if sc.policy.Process != nil && sc.policy.Process.AllowSpawn {
			decision = allow()
		} else {
			decision = deny("process spawning not allowed")
		}
	case ResourceEnv:
		if sc.policy.Process != nil {
			decision = allow()
		} else {
			decision = deny("environment access requires a process policy")
		}
	default:
		decision = deny("unknown resource kind " + string(kind))
	}

	if !decision.Allowed {
		sr.logger.Debug("Sandbox access denied",
			"plugin", pluginID,
			"resource", string(kind),
			"target", target,
			"reason", decision.Reason)
	}
	return decision
}

// RequireAccess is CheckResourceAccess returning a SandboxViolation error
// on denial.
func (sr *SandboxRuntime) RequireAccess(pluginID string, kind ResourceKind, target string) error {
	decision := sr.CheckResourceAccess(pluginID, kind, target)
	if decision.Allowed {
		return nil
	}
	return NewSandboxViolationError(pluginID, kind, target, decision.Reason)
}

// Shutdown destroys every sandbox.
func (sr *SandboxRuntime) Shutdown() {
	sr.mu.Lock()
	contexts := sr.sandboxes
	sr.sandboxes = make(map[string]*sandboxContext)
	sr.mu.Unlock()

	for _, sc := range contexts {
		sc.stop()
	}
}

func (sr *SandboxRuntime) lookup(pluginID string) (*sandboxContext, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	sc, ok := sr.sandboxes[pluginID]
	if !ok {
		return nil, NewSandboxNotFoundError(pluginID)
	}
	return sc, nil
}

func (sr *SandboxRuntime) sampleLoop(sc *sandboxContext) {
	defer close(sc.doneChan)
	defer withStackRecover(sr.logger)()

	ticker := time.NewTicker(sr.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sr.sample(sc)
			if violations, err := sr.CheckResourceLimits(sc.pluginID); err == nil && len(violations) > 0 {
				sr.logger.Warn("Sandbox resource limits exceeded",
					"plugin", sc.pluginID,
					"violations", describeViolations(violations))
			}
		case <-sc.stopChan:
			return
		}
	}
}

// sample refreshes the usage snapshot from the process counters.
func (sr *SandboxRuntime) sample(sc *sandboxContext) {
	now := sr.readSample()

	sc.mu.Lock()
	defer sc.mu.Unlock()

	var memory uint64
	if now.heap > sc.baseline.heap {
		memory = now.heap - sc.baseline.heap
	}
	sc.usage.MemoryBytes = memory
	if memory > sc.usage.PeakMemoryBytes {
		sc.usage.PeakMemoryBytes = memory
	}

	sc.usage.CPUPercent = cpuPercent(now.cpu-sc.last.cpu, now.at.Sub(sc.last.at))
	sc.usage.AverageCPUPercent = cpuPercent(now.cpu-sc.baseline.cpu, now.at.Sub(sc.baseline.at))
	sc.usage.Samples++
	sc.usage.LastSample = now.at
	sc.last = now
}

func cpuPercent(cpu, wall time.Duration) float64 {
	if wall <= 0 || cpu <= 0 {
		return 0
	}
	return float64(cpu) / float64(wall) * 100
}

// checkFilesystem applies the filesystem rules: level none allows anything,
// mode none denies anything, deny entries beat allow entries and an empty
// allow list accepts whatever is not denied.
func checkFilesystem(policy SandboxPolicy, target string) AccessDecision {
	if policy.Level == SandboxLevelNone {
		return allow()
	}
	if strings.TrimSpace(target) == "" {
		return deny("empty path")
	}

	path, err := normalizePath(target)
	if err != nil {
		return deny("cannot resolve path: " + err.Error())
	}

	fs := policy.Filesystem
	if fs == nil {
		return allow()
	}
	if fs.Mode == AccessModeNone {
		return deny("filesystem access disabled")
	}

	for _, entry := range fs.DeniedPaths {
		denied, err := normalizePath(entry)
		if err != nil {
			continue
		}
		if pathWithin(path, denied) {
			return deny("path " + path + " is denied by " + denied)
		}
	}

	if len(fs.AllowedPaths) == 0 {
		return allow()
	}
	for _, entry := range fs.AllowedPaths {
		allowed, err := normalizePath(entry)
		if err != nil {
			continue
		}
		if pathWithin(path, allowed) {
			return allow()
		}
	}
	return deny("path " + path + " is not in allowed paths")
}

func normalizePath(p string) (string, error) {
	return filepath.Abs(filepath.Clean(p))
}

// pathWithin reports whether path equals base or lies beneath it.
func pathWithin(path, base string) bool {
	if path == base {
		return true
	}
	if !strings.HasSuffix(base, string(filepath.Separator)) {
		base += string(filepath.Separator)
	}
	return strings.HasPrefix(path, base)
}

// checkNetwork compares the hostname of target, never the raw string.
func checkNetwork(policy SandboxPolicy, target string) AccessDecision {
	u, err := url.Parse(target)
	if err != nil {
		return deny("invalid URL: " + err.Error())
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return deny("invalid URL: missing host")
	}

	n := policy.Network
	if n == nil {
		return allow()
	}
	if n.Mode == AccessModeNone {
		return deny("network access disabled")
	}

	for _, pattern := range n.DeniedHosts {
		if hostMatches(host, pattern) {
			return deny("host " + host + " is denied")
		}
	}
	if len(n.AllowedHosts) == 0 {
		return allow()
	}
	for _, pattern := range n.AllowedHosts {
		if hostMatches(host, pattern) {
			return allow()
		}
	}
	return deny("host " + host + " is not in allowed hosts")
}

func hostMatches(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	switch {
	case pattern == "":
		return false
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(host, pattern[1:])
	default:
		return host == pattern
	}
}

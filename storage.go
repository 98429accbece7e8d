// storage.go: Plugin state storage abstraction and in-memory backend
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Storage is a key-value store for plugin state. No backend is required by
// the kernel; MemoryStorage is used when none is configured.
type Storage interface {
	// Get returns the value of key and whether it exists
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Keys returns every key starting with prefix, sorted
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources
	Close() error
}

// Storage backend names.
const (
	StorageBackendMemory = "memory"
	StorageBackendRedis  = "redis"
	StorageBackendMySQL  = "mysql"
)

// StorageConfig selects and configures the plugin state backend.
type StorageConfig struct {
	Backend string             `json:"backend" yaml:"backend"`
	Redis   RedisStorageConfig `json:"redis" yaml:"redis"`
	MySQL   MySQLStorageConfig `json:"mysql" yaml:"mysql"`
}

// RedisStorageConfig configures the Redis backend.
type RedisStorageConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// MySQLStorageConfig configures the MySQL backend.
type MySQLStorageConfig struct {
	DSN             string        `json:"dsn" yaml:"dsn"`
	Table           string        `json:"table,omitempty" yaml:"table,omitempty"`
	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
}

// NewStorage builds the backend selected by config. An empty backend
// selects memory.
func NewStorage(ctx context.Context, config StorageConfig) (Storage, error) {
	switch strings.ToLower(config.Backend) {
	case "", StorageBackendMemory:
		return NewMemoryStorage(), nil
	case StorageBackendRedis:
		return NewRedisStorage(ctx, config.Redis)
	case StorageBackendMySQL:
		return NewMySQLStorage(ctx, config.MySQL)
	default:
		return nil, NewConfigValidationError("unknown storage backend: " + config.Backend)
	}
}

var errStorageClosed = stderrors.New("storage closed")

// MemoryStorage is a process-local Storage.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string][]byte)}
}

// Get implements Storage.
func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, NewStorageUnavailableError(StorageBackendMemory, errStorageClosed)
	}
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set implements Storage.
func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageUnavailableError(StorageBackendMemory, errStorageClosed)
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageUnavailableError(StorageBackendMemory, errStorageClosed)
	}
	delete(m.values, key)
	return nil
}

// Keys implements Storage.
func (m *MemoryStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewStorageUnavailableError(StorageBackendMemory, errStorageClosed)
	}
	keys := make([]string, 0)
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Storage.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.values = make(map[string][]byte)
	return nil
}

// scopedStorage confines a plugin to its own key namespace.
type scopedStorage struct {
	base   Storage
	prefix string
}

// pluginStoragePrefix is the namespace of a plugin's keys.
func pluginStoragePrefix(plugin string) string {
	return "plugin:" + plugin + ":"
}

func newScopedStorage(base Storage, plugin string) *scopedStorage {
	return &scopedStorage{base: base, prefix: pluginStoragePrefix(plugin)}
}

func (s *scopedStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.base.Get(ctx, s.prefix+key)
}

func (s *scopedStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.base.Set(ctx, s.prefix+key, value)
}

func (s *scopedStorage) Delete(ctx context.Context, key string) error {
	return s.base.Delete(ctx, s.prefix+key)
}

func (s *scopedStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.base.Keys(ctx, s.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, s.prefix)
	}
	return keys, nil
}

// Close is a no-op; the kernel owns the shared backend.
func (s *scopedStorage) Close() error {
	return nil
}

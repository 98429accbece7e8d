// storage_redis.go: Redis backend for plugin state
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

	"github.com/redis/go-redis/v9"
)

// RedisStorage stores plugin state in Redis string keys.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(ctx context.Context, config RedisStorageConfig) (*RedisStorage, error) {
	if strings.TrimSpace(config.Address) == "" {
		return nil, NewConfigValidationError("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, NewStorageUnavailableError(StorageBackendRedis, err).
			WithContext("address", config.Address)
	}

	return NewRedisStorageWithClient(client, config.KeyPrefix), nil
}

// NewRedisStorageWithClient wraps an existing client. keyPrefix namespaces
// every key, e.g. "microkernel:".
func NewRedisStorageWithClient(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	return &RedisStorage{client: client, keyPrefix: keyPrefix}
}

// Get implements Storage.
func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, NewStorageOperationError("get", key, err)
	}
	return value, true, nil
}

// Set implements Storage.
func (r *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.keyPrefix+key, value, 0).Err(); err != nil {
		return NewStorageOperationError("set", key, err)
	}
	return nil
}

// Delete implements Storage.
func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return NewStorageOperationError("delete", key, err)
	}
	return nil
}

// Keys implements Storage using SCAN so large keyspaces do not block Redis.
func (r *RedisStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeRedisGlob(r.keyPrefix+prefix) + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, NewStorageOperationError("keys", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Storage.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

var redisGlobEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeRedisGlob(s string) string {
	return redisGlobEscaper.Replace(s)
}

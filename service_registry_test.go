// service_registry_test.go: Tests for service registration, lookup and ownership
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRegistry(t *testing.T) {
	t.Run("RegisterAndGet", func(t *testing.T) {
		r := NewServiceRegistry()
		engine := &blobStore{generation: 7}

		require.NoError(t, r.Register("query", "object-query", engine))

		got, err := r.Get("object-query")
		require.NoError(t, err)
		assert.Same(t, engine, got)
		assert.True(t, r.Has("object-query"))

		owner, ok := r.Owner("object-query")
		assert.True(t, ok)
		assert.Equal(t, "query", owner)
	})

	t.Run("NamesAreUnique", func(t *testing.T) {
		r := NewServiceRegistry()
		require.NoError(t, r.Register("a", "cache", 1))

		err := r.Register("b", "cache", 2)
		require.Error(t, err)
		assert.True(t, HasErrorCode(err, ErrCodeServiceAlreadyRegistered))

		got, _ := r.Get("cache")
		assert.Equal(t, 1, got, "first registration wins")
	})

	t.Run("EmptyName", func(t *testing.T) {
		r := NewServiceRegistry()
		err := r.Register("a", "", 1)
		assert.True(t, HasErrorCode(err, ErrCodeInvalidServiceName))
	})

	t.Run("Missing", func(t *testing.T) {
		r := NewServiceRegistry()
		_, err := r.Get("nothing")
		assert.True(t, HasErrorCode(err, ErrCodeServiceNotFound))
		assert.False(t, r.Has("nothing"))
		_, ok := r.Owner("nothing")
		assert.False(t, ok)
		r.Unregister("nothing")
	})

	t.Run("RemoveOwnedBy", func(t *testing.T) {
		r := NewServiceRegistry()
		require.NoError(t, r.Register("auth", "auth.tokens", 1))
		require.NoError(t, r.Register("auth", "auth.sessions", 2))
		require.NoError(t, r.Register("cache", "cache.memory", 3))

		removed := r.RemoveOwnedBy("auth")
		assert.Equal(t, []string{"auth.sessions", "auth.tokens"}, removed)
		assert.Equal(t, []string{"cache.memory"}, r.Names())
		assert.Empty(t, r.RemoveOwnedBy("auth"))
	})

	t.Run("SnapshotIsACopy", func(t *testing.T) {
		r := NewServiceRegistry()
		require.NoError(t, r.Register("a", "x", 1))

		snapshot := r.Snapshot()
		snapshot["y"] = 2
		assert.Equal(t, 1, r.Count())

		r.Clear()
		assert.Equal(t, 0, r.Count())
		assert.Len(t, snapshot, 2)
	})

	t.Run("ConcurrentRegistration", func(t *testing.T) {
		r := NewServiceRegistry()

		var wg sync.WaitGroup
		errs := make(chan error, 100)
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				errs <- r.Register(fmt.Sprintf("p%d", n), fmt.Sprintf("svc-%d", n%10), n)
			}(i)
		}
		wg.Wait()
		close(errs)

		failures := 0
		for err := range errs {
			if err != nil {
				failures++
			}
		}
		assert.Equal(t, 10, r.Count())
		assert.Equal(t, 90, failures)
	})
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package syncx provides typed concurrency helpers.
package syncx

import (
	"iter"
	"sync"
)

// Map is a type-safe wrapper around sync.Map.
type Map[K comparable, V any] struct {
	m sync.Map
}

// Load returns the value stored for key, or the zero value if there is none.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	v, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// LoadOrStore returns the existing value for key if present.
// Otherwise, it stores and returns the given value.
func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	a, loaded := m.m.LoadOrStore(key, value)
	return a.(V), loaded
}

// Delete deletes the value for key.
func (m *Map[K, V]) Delete(key K) {
	m.m.Delete(key)
}

// Keys returns an iterator over the keys in unspecified order.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.m.Range(func(key, _ any) bool {
			return yield(key.(K))
		})
	}
}

// KeyedMutex serializes critical sections per key. Sections for different
// keys run concurrently.
type KeyedMutex[K comparable] struct {
	locks Map[K, *sync.Mutex]
}

// Lock acquires the lock for key and returns its release.
func (k *KeyedMutex[K]) Lock(key K) (unlock func()) {
	mu, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}

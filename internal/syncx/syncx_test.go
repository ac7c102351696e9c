// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package syncx

import (
	"slices"
	"sync"
	"testing"
	"time"
)

func TestMap(t *testing.T) {
	m := &Map[string, int]{}
	if _, ok := m.Load("a"); ok {
		t.Error("Load() on empty map reported a value")
	}
	if v, loaded := m.LoadOrStore("a", 1); loaded || v != 1 {
		t.Errorf("LoadOrStore() = %d, %v, want 1, false", v, loaded)
	}
	if v, loaded := m.LoadOrStore("a", 2); !loaded || v != 1 {
		t.Errorf("LoadOrStore() = %d, %v, want 1, true", v, loaded)
	}
	m.LoadOrStore("b", 3)
	keys := slices.Sorted(m.Keys())
	if !slices.Equal(keys, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", keys)
	}
	m.Delete("a")
	if _, ok := m.Load("a"); ok {
		t.Error("Load() after Delete() reported a value")
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var k KeyedMutex[string]
	var counter int
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("x")
			defer unlock()
			c := counter
			time.Sleep(time.Microsecond)
			counter = c + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	var k KeyedMutex[string]
	unlockA := k.Lock("a")
	defer unlockA()
	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock on b blocked while a was held")
	}
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"config", errors.Wrap(store.ErrNoStoreSource, "in /data"), 2},
		{"io", store.IO("read", "a.yml", errors.New("disk")), 3},
		{"read-only", errors.Wrap(store.ErrReadOnly, "a.yml"), 3},
		{"entity", &store.EntityError{ID: store.Identifier{Type: "services", ID: "a"}, Err: errors.New("bad")}, 4},
		{"other", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

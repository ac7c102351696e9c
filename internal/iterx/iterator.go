// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package iterx adapts pull-style iterators to range-over-func sequences.
package iterx

import (
	"errors"
	"iter"
)

// Nexter is a pull iterator such as the object iterators of cloud SDKs.
type Nexter[T any] interface {
	Next() (T, error)
}

// Seq2 yields the values of it until it returns done. Any other error is
// yielded once and ends the sequence.
func Seq2[T any](it Nexter[T], done error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			val, err := it.Next()
			if errors.Is(err, done) {
				return
			}
			if !yield(val, err) || err != nil {
				return
			}
		}
	}
}

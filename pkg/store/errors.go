// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument marks configuration errors: bad paths, unknown content
	// kinds, malformed identifiers. These are fixed by the operator, not retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoStoreSource indicates no recognizable store structure was found.
	ErrNoStoreSource = errors.Wrap(ErrInvalidArgument, "no store source detected")
	// ErrNotFound indicates a blob or entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrReadOnly indicates a write against a read-only source.
	ErrReadOnly = errors.New("source is read-only")
	// ErrAlreadyStarted is returned when a one-shot lifecycle step is repeated.
	ErrAlreadyStarted = errors.New("already started")
)

// IOError marks an error as an I/O failure of the underlying storage.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IO wraps err as an IOError unless it is nil or already one.
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// EntityError marks a failure tied to a single entity's content, e.g. a file
// that does not decode or a build with missing required fields.
type EntityError struct {
	ID  Identifier
	Err error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("entity %s: %v", e.ID, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// Kind is the coarse classification callers use to decide who has to act.
type Kind int

const (
	// KindInternal is an unexpected failure; a bug report.
	KindInternal Kind = iota
	// KindConfig is a missing or misconfigured store.
	KindConfig
	// KindIO is a storage failure.
	KindIO
	// KindEntity is a failure of one entity's content.
	KindEntity
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindIO:
		return "io"
	case KindEntity:
		return "entity"
	default:
		return "internal"
	}
}

// Classify maps err onto a Kind. Entity errors take precedence over
// everything else so that a failure reports which entity it was for.
func Classify(err error) Kind {
	var ee *EntityError
	var ioe *IOError
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &ee):
		return KindEntity
	case errors.Is(err, ErrInvalidArgument):
		return KindConfig
	case errors.As(err, &ioe), errors.Is(err, ErrNotFound), errors.Is(err, ErrReadOnly):
		return KindIO
	default:
		return KindInternal
	}
}

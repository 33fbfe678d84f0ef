// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"

	"github.com/jcodagnone/geocluster/dataset"
)

// Kind classifies the errors that abort a run.
type Kind int

const (
	// KindUnknown is never produced by the pipeline itself.
	KindUnknown Kind = iota
	// KindSchema reports missing or malformed columns and inconsistent rows.
	KindSchema
	// KindIO reports failures reading the input or writing outputs.
	KindIO
	// KindConfig reports an invalid configuration.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindIO:
		return "io"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is the failure of one pipeline stage.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// ingestError tells schema problems apart from everything else.
func ingestError(stage string, err error) *Error {
	if errors.Is(err, dataset.ErrSchema) {
		return newError(KindSchema, stage, err)
	}

	return newError(KindIO, stage, err)
}

func isKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}

// IsSchemaError reports whether err aborted the run because of the input schema.
func IsSchemaError(err error) bool {
	return isKind(err, KindSchema)
}

// IsIOError reports whether err aborted the run while reading or writing.
func IsIOError(err error) bool {
	return isKind(err, KindIO)
}

// IsConfigError reports whether err comes from an invalid configuration.
func IsConfigError(err error) bool {
	return isKind(err, KindConfig)
}

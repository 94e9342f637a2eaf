// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package poaierr defines the PoAI error taxonomy (spec §7): a fixed set
// of sentinel kinds, each wrapped with call-site context via %w so that
// errors.Is still matches the underlying sentinel. It mirrors the
// teacher's package-level `var errXxx = errors.New(...)` convention
// (consensus/equa/equa.go), extended with a Kind() accessor so callers can
// switch on taxonomy without string-matching.
package poaierr

import (
	"errors"
	"fmt"
)

// Sentinel kinds, one per spec §7 taxonomy entry.
var (
	ErrInvalidBlock              = errors.New("invalid block")
	ErrLowEfficiency             = errors.New("low efficiency")
	ErrPatternRejected           = errors.New("pattern rejected")
	ErrColorTransitionRejected   = errors.New("color transition rejected")
	ErrInsufficientParticipation = errors.New("insufficient participation")
	ErrValidatorNotEligible      = errors.New("validator not eligible")
	ErrAIFailure                 = errors.New("AI oracle failure")
	ErrNetworkTimeout            = errors.New("network timeout")
	ErrStorageError              = errors.New("storage error")
	ErrShutdown                  = errors.New("shutdown")
)

// Error wraps a sentinel kind with call-site context, preserving
// errors.Is/errors.As compatibility via Unwrap.
type Error struct {
	kind    error
	context string
}

// Wrap builds an Error carrying kind with a formatted context message.
func Wrap(kind error, format string, args ...interface{}) *Error {
	return &Error{kind: kind, context: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.context == "" {
		return e.kind.Error()
	}
	return fmt.Sprintf("poai: %s: %s", e.kind.Error(), e.context)
}

// Unwrap exposes the underlying sentinel for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.kind }

// Kind reports a short machine-readable name for e's sentinel, letting
// callers dispatch on taxonomy without string-matching the message.
func (e *Error) Kind() string {
	switch {
	case errors.Is(e.kind, ErrInvalidBlock):
		return "InvalidBlock"
	case errors.Is(e.kind, ErrLowEfficiency):
		return "LowEfficiency"
	case errors.Is(e.kind, ErrPatternRejected):
		return "PatternRejected"
	case errors.Is(e.kind, ErrColorTransitionRejected):
		return "ColorTransitionRejected"
	case errors.Is(e.kind, ErrInsufficientParticipation):
		return "InsufficientParticipation"
	case errors.Is(e.kind, ErrValidatorNotEligible):
		return "ValidatorNotEligible"
	case errors.Is(e.kind, ErrAIFailure):
		return "AIFailure"
	case errors.Is(e.kind, ErrNetworkTimeout):
		return "NetworkTimeout"
	case errors.Is(e.kind, ErrStorageError):
		return "StorageError"
	case errors.Is(e.kind, ErrShutdown):
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Is lets errors.Is(err, poaierr.ErrXxx) see through the wrapper directly,
// in addition to the standard Unwrap-based chain walk.
func (e *Error) Is(target error) bool {
	return errors.Is(e.kind, target)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errs defines the error kinds shared by the prompt workspace.
//
// Every failure surfaced by a registry, the renderer boundary or the session
// carries one Kind. Callers branch on the kind with the Is* helpers, which see
// through wrapping.
package errs

import (
	"errors"
	"strings"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// Kind categorizes an error for handling.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindExecution
	KindConflict
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExecution:
		return "execution"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// Error is a kinded error. Op names the operation that failed, Field the
// offending input when there is one.
type Error struct {
	Kind    Kind
	Op      string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel *Error values by kind and message so that a wrapped
// copy of a sentinel still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message && (t.Op == "" || t.Op == e.Op)
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// Validation reports rejected input. No state was mutated.
func Validation(op, field, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Message: message}
}

// NotFound reports a missing delete/rename/update target.
func NotFound(op, field, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Field: field, Message: message}
}

// Execution wraps a failure of the run executor or of external resolution.
func Execution(op string, err error) *Error {
	return &Error{Kind: KindExecution, Op: op, Message: "execution failed", Err: err}
}

// Conflict reports an operation that is not allowed in the current state.
func Conflict(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

// =============================================================================
// PREDICATES
// =============================================================================

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsExecution reports whether err is an execution error.
func IsExecution(err error) bool { return KindOf(err) == KindExecution }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"full", Validation("rename", "key", "already in use"), "rename: key: already in use"},
		{"no field", NotFound("delete", "", "variable not found"), "delete: variable not found"},
		{"kind only", &Error{Kind: KindConflict}, "conflict"},
		{"wrapped", Execution("run", errors.New("boom")), "run: execution failed: boom"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	base := Validation("rename", "key", "invalid")
	wrapped := fmt.Errorf("dispatch: %w", base)

	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, KindValidation, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestError_IsMatchesSentinel(t *testing.T) {
	sentinel := Conflict("", "run in progress")
	got := Conflict("start run", "run in progress")

	assert.ErrorIs(t, got, sentinel)
	assert.NotErrorIs(t, Conflict("start run", "other"), sentinel)
}

func TestExecution_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Execution("resolve", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsExecution(err))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "execution", KindExecution.String())
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

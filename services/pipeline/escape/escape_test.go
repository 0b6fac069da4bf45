// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package escape

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome_Classification(t *testing.T) {
	tests := []struct {
		name     string
		outcome  Outcome
		cont     bool
		isEscape bool
		failure  bool
		str      string
	}{
		{"zero value", Outcome{}, true, false, false, "continue"},
		{"proceed", Proceed(), true, false, false, "continue"},
		{"redirect", RedirectTo("/app"), false, true, false, "redirect(/app)"},
		{"error code", Code(http.StatusBadRequest, "bad"), false, true, false, "error_code(400)"},
		{"error page", Page(ErrSessionToken), false, true, false, "error_page(session token mismatch)"},
		{"failure", Fail(errors.New("boom")), false, false, true, "failure(boom)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.cont, tt.outcome.IsContinue())
			assert.Equal(t, tt.isEscape, tt.outcome.IsEscape())
			assert.Equal(t, tt.failure, tt.outcome.IsFailure())
			assert.Equal(t, tt.str, tt.outcome.String())
		})
	}
}

func TestFail_NilError(t *testing.T) {
	out := Fail(nil)
	assert.True(t, out.IsFailure())
	assert.Error(t, out.Err)
}

func TestFailf(t *testing.T) {
	out := Failf("component %s: %w", "name", ErrConfiguration)
	assert.ErrorIs(t, out.Err, ErrConfiguration)
	assert.Contains(t, out.Err.Error(), "component name")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "failure", Failure.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestThen(t *testing.T) {
	called := false
	out := Proceed().Then(func() Outcome {
		called = true
		return RedirectTo("/next")
	})
	assert.True(t, called)
	assert.Equal(t, Redirect, out.Kind)

	called = false
	out = Code(http.StatusForbidden, "no").Then(func() Outcome {
		called = true
		return Proceed()
	})
	assert.False(t, called, "an escape short-circuits")
	assert.Equal(t, http.StatusForbidden, out.Code)
}

func TestRecover(t *testing.T) {
	t.Run("passes outcome through", func(t *testing.T) {
		out := Recover(func() Outcome { return RedirectTo("/x") })
		assert.Equal(t, "/x", out.URL)
	})

	t.Run("converts panic value", func(t *testing.T) {
		out := Recover(func() Outcome { panic("kaboom") })
		require.True(t, out.IsFailure())
		assert.ErrorIs(t, out.Err, ErrPanic)
		assert.Contains(t, out.Err.Error(), "kaboom")

		var pe *PanicError
		require.ErrorAs(t, out.Err, &pe)
		assert.NotEmpty(t, pe.Stack)
		assert.Nil(t, pe.Unwrap())
	})

	t.Run("unwraps panicked error", func(t *testing.T) {
		out := Recover(func() Outcome { panic(ErrConfiguration) })
		assert.ErrorIs(t, out.Err, ErrPanic)
		assert.ErrorIs(t, out.Err, ErrConfiguration)
	})
}

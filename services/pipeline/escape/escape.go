// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package escape defines the result type returned by every phase call in the
// request pipeline.
//
// Components and interceptors never unwind the call stack to abort a
// request. Each phase method returns an Outcome and the caller decides
// whether to keep going. The possible outcomes are:
//
//	Continue   normal processing, keep going
//	Redirect   stop and send the client to URL
//	ErrorCode  stop and answer with an HTTP-style status and message
//	ErrorPage  stop and present Err through the error page
//	Failure    something broke; an error interceptor decides what the
//	           client sees
//
// Redirect, ErrorCode and ErrorPage are escapes: expected control flow that
// interceptors must pass upward untouched. Failure is the only kind an
// interceptor may translate.
package escape

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrConfiguration marks an application or wiring mistake, such as an
	// AJAX request without a trigger id or a target that is not targetable.
	ErrConfiguration = errors.New("configuration error")

	// ErrSessionToken is returned when the submitted session token does not
	// match the one held by the context.
	ErrSessionToken = errors.New("session token mismatch")

	// ErrSessionExpired is returned when a token is submitted but the
	// context never issued one, which happens after a session timed out.
	ErrSessionExpired = errors.New("session expired")

	// ErrPanic wraps a recovered panic.
	ErrPanic = errors.New("panic during request processing")
)

// =============================================================================
// Outcome
// =============================================================================

// Kind enumerates the possible outcomes of a phase call.
type Kind int

const (
	// Continue means processing completed normally.
	Continue Kind = iota

	// Redirect short-circuits the request and sends the client to URL.
	Redirect

	// ErrorCode short-circuits the request with an HTTP-style status.
	ErrorCode

	// ErrorPage short-circuits the request and renders Err on the error page.
	ErrorPage

	// Failure carries an unexpected error up to the nearest error
	// interceptor.
	Failure
)

// String returns the lower-case name of the kind, used as a metrics label.
func (k Kind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Redirect:
		return "redirect"
	case ErrorCode:
		return "error_code"
	case ErrorPage:
		return "error_page"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the value returned by every ServiceRequest, PreparePaint and
// Paint call.
//
// The zero value is a Continue outcome.
type Outcome struct {
	// Kind selects which of the other fields are meaningful.
	Kind Kind

	// URL is the redirect destination (Redirect only).
	URL string

	// Code is the HTTP-style status (ErrorCode only).
	Code int

	// Message is a user-presentable, already localized message
	// (ErrorCode only).
	Message string

	// Err is the underlying error (ErrorPage and Failure).
	Err error
}

// Proceed returns a Continue outcome.
func Proceed() Outcome {
	return Outcome{Kind: Continue}
}

// RedirectTo returns a Redirect outcome for url.
func RedirectTo(url string) Outcome {
	return Outcome{Kind: Redirect, URL: url}
}

// Code returns an ErrorCode outcome.
func Code(code int, message string) Outcome {
	return Outcome{Kind: ErrorCode, Code: code, Message: message}
}

// Page returns an ErrorPage outcome presenting err.
func Page(err error) Outcome {
	return Outcome{Kind: ErrorPage, Err: err}
}

// Fail returns a Failure outcome. A nil err is replaced by a generic error
// so that a Failure always carries something to log.
func Fail(err error) Outcome {
	if err == nil {
		err = errors.New("unspecified failure")
	}
	return Outcome{Kind: Failure, Err: err}
}

// Failf is shorthand for Fail(fmt.Errorf(format, args...)).
func Failf(format string, args ...any) Outcome {
	return Fail(fmt.Errorf(format, args...))
}

// IsContinue reports whether processing should carry on.
func (o Outcome) IsContinue() bool {
	return o.Kind == Continue
}

// IsEscape reports whether o is expected control flow that must be passed
// upward untouched.
func (o Outcome) IsEscape() bool {
	return o.Kind == Redirect || o.Kind == ErrorCode || o.Kind == ErrorPage
}

// IsFailure reports whether o carries an unexpected error.
func (o Outcome) IsFailure() bool {
	return o.Kind == Failure
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	switch o.Kind {
	case Redirect:
		return "redirect(" + o.URL + ")"
	case ErrorCode:
		return fmt.Sprintf("error_code(%d)", o.Code)
	case ErrorPage, Failure:
		return fmt.Sprintf("%s(%v)", o.Kind, o.Err)
	default:
		return o.Kind.String()
	}
}

// Then runs next only if o is a Continue outcome, otherwise it returns o.
//
// Useful for sequencing phase calls:
//
//	return child.ServiceRequest(uic, req).Then(func() escape.Outcome {
//	    return sibling.ServiceRequest(uic, req)
//	})
func (o Outcome) Then(next func() Outcome) Outcome {
	if !o.IsContinue() {
		return o
	}
	return next()
}

// =============================================================================
// Panic Recovery
// =============================================================================

// Recover runs fn and converts a panic into a Failure wrapping ErrPanic.
//
// The driver uses this at every phase boundary so that a panicking component
// becomes a regular Failure handled by the error interceptors.
func Recover(fn func() Outcome) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Fail(&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	return fn()
}

// PanicError is the error carried by a Failure created from a recovered
// panic. It matches ErrPanic with errors.Is.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPanic, e.Value)
}

// Is reports whether target is ErrPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrPanic
}

// Unwrap exposes a wrapped error when the panic value was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

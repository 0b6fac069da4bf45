// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package transport defines the narrow request/response surface the
// pipeline consumes from a transport adapter.
//
// The pipeline never touches net/http or gin types directly. An adapter
// (see transport/httpgin) wraps the concrete server types and exposes only
// parameters, session attributes, method, logout flag, headers and a
// response writer.
package transport

import (
	"context"
	"io"
	"net/http"
)

// =============================================================================
// Wire Parameter Names
// =============================================================================

const (
	// ParamSessionToken carries the anti-CSRF session token.
	ParamSessionToken = "wc_t"

	// ParamStep carries the step counter of the page being submitted.
	ParamStep = "wc_s"

	// ParamAjaxTrigger names the component that fired an AJAX request.
	ParamAjaxTrigger = "wc_ajax"

	// ParamTarget names a targetable component for a content request.
	ParamTarget = "wc_target"

	// ParamWindow names a secondary window for a content request.
	ParamWindow = "wc_window"

	// ParamLogout requests that the session context be discarded.
	ParamLogout = "wc_logout"

	// ParamFocus names the component that had focus when submitting.
	ParamFocus = "wc_focus"
)

// =============================================================================
// Interfaces
// =============================================================================

// Request is the read side of one client request.
//
// # Thread Safety
//
// Implementations are used by a single request goroutine and need not be
// safe for concurrent use.
type Request interface {
	// Parameter returns the first value of a request parameter, or "".
	Parameter(name string) string

	// Parameters returns every value of a request parameter.
	Parameters(name string) []string

	// HasParameter reports whether the parameter was sent at all, even
	// with an empty value.
	HasParameter(name string) bool

	// Method returns the HTTP method in upper case.
	Method() string

	// Header returns a request header.
	Header(name string) string

	// SessionAttribute returns a value stored in the user's session.
	SessionAttribute(name string) any

	// SetSessionAttribute stores a value in the user's session. A nil
	// value removes the attribute.
	SetSessionAttribute(name string, value any)

	// IsLogout reports whether the client asked to end its session.
	IsLogout() bool

	// Context returns the request-scoped context used for tracing and
	// cancellation of I/O done by collaborators.
	Context() context.Context
}

// Response is the write side of one client request.
type Response interface {
	// Writer returns the body writer.
	Writer() io.Writer

	// SetHeader sets a response header, replacing existing values.
	SetHeader(name, value string)

	// SetContentType sets the Content-Type header.
	SetContentType(contentType string)

	// Redirect sends the client to url. No body may be written afterwards.
	Redirect(url string) error

	// SendError answers with status code and a short message body.
	SendError(code int, message string) error
}

// =============================================================================
// Request Classes
// =============================================================================

// Class distinguishes the three kinds of request that get different
// interceptor chains and different error presentation.
type Class int

const (
	// ClassPrimary is a full page request.
	ClassPrimary Class = iota

	// ClassAjax is a partial update fired by a trigger component.
	ClassAjax

	// ClassContent is a request for a single targetable component or a
	// secondary window.
	ClassContent
)

// String returns the class name used in logs and metric labels.
func (c Class) String() string {
	switch c {
	case ClassPrimary:
		return "primary"
	case ClassAjax:
		return "ajax"
	case ClassContent:
		return "content"
	default:
		return "unknown"
	}
}

// ClassOf determines the class of req from its parameters.
//
// An AJAX trigger wins over a content target so that an AJAX request fired
// from inside a window is still treated as AJAX.
func ClassOf(req Request) Class {
	switch {
	case req.HasParameter(ParamAjaxTrigger):
		return ClassAjax
	case req.HasParameter(ParamTarget), req.HasParameter(ParamWindow):
		return ClassContent
	default:
		return ClassPrimary
	}
}

// IsSafeMethod reports whether method never carries form submissions.
func IsSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package httpgin adapts gin requests to the pipeline's transport
// interfaces and serves an application through the driver.
package httpgin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianForms/services/pipeline/driver"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
)

// maxFormBytes bounds the body parsed into request parameters.
const maxFormBytes = 10 << 20

// =============================================================================
// Request
// =============================================================================

// Request is a transport.Request backed by a gin context and a server-side
// session.
type Request struct {
	c       *gin.Context
	params  url.Values
	session *Session
}

// NewRequest parses the query string and, for form posts, the body.
//
// # Outputs
//
//   - *Request: The adapted request.
//   - error: Non-nil if the body is not a valid form.
func NewRequest(c *gin.Context, session *Session) (*Request, error) {
	r := c.Request
	r.Body = http.MaxBytesReader(c.Writer, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &Request{c: c, params: r.Form, session: session}, nil
}

func (r *Request) Parameter(name string) string { return r.params.Get(name) }
func (r *Request) Parameters(name string) []string { return r.params[name] }
func (r *Request) HasParameter(name string) bool { return r.params.Has(name) }
func (r *Request) Method() string { return strings.ToUpper(r.c.Request.Method) }
func (r *Request) Header(name string) string { return r.c.GetHeader(name) }
func (r *Request) SessionAttribute(name string) any { return r.session.Get(name) }
func (r *Request) IsLogout() bool { return r.params.Has(transport.ParamLogout) }
func (r *Request) Context() context.Context { return r.c.Request.Context() }

func (r *Request) SetSessionAttribute(name string, value any) {
	r.session.Set(name, value)
}

// =============================================================================
// Response
// =============================================================================

// Response is a transport.Response writing to a gin context.
type Response struct {
	c *gin.Context
}

// NewResponse wraps c.
func NewResponse(c *gin.Context) *Response {
	return &Response{c: c}
}

func (r *Response) Writer() io.Writer { return r.c.Writer }

func (r *Response) SetHeader(name, value string) { r.c.Header(name, value) }

func (r *Response) SetContentType(contentType string) { r.c.Header("Content-Type", contentType) }

func (r *Response) Redirect(url string) error {
	r.c.Redirect(http.StatusFound, url)
	return nil
}

func (r *Response) SendError(code int, message string) error {
	r.c.Data(code, "text/plain; charset=utf-8", []byte(message))
	return nil
}

// Status returns the status written so far.
func (r *Response) Status() int { return r.c.Writer.Status() }

var (
	_ transport.Request  = (*Request)(nil)
	_ transport.Response = (*Response)(nil)
)

// =============================================================================
// Handler
// =============================================================================

// Handler serves an application through the driver. Every GET and POST
// to the mounted path is one pipeline request.
//
// # Description
//
// The handler loads the caller's session, adapts the gin context and runs
// driver.Process. A failure before the pipeline starts (an unparsable
// body or a failing context provider) answers 400 or 500 directly.
func Handler(cfg driver.Config, sessions *Sessions) gin.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		session := sessions.Load(c)
		req, err := NewRequest(c, session)
		if err != nil {
			logger.Warn("rejecting unparsable form", "error", err)
			c.String(http.StatusBadRequest, "bad request")
			return
		}
		resp := NewResponse(c)
		if err := driver.Process(cfg, req, resp); err != nil {
			logger.ErrorContext(c.Request.Context(), "pipeline request failed",
				"class", transport.ClassOf(req).String(),
				"error", err,
			)
			if !c.Writer.Written() {
				c.String(http.StatusInternalServerError, "internal error")
			}
		}
	}
}

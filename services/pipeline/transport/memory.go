// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
)

// MemoryRequest is an in-process Request backed by maps.
//
// It is used by tests and by callers that drive the pipeline without a
// network transport.
type MemoryRequest struct {
	method  string
	params  url.Values
	headers http.Header
	session map[string]any
	logout  bool
	ctx     context.Context
}

// NewMemoryRequest creates a request with the given method and parameters.
// session may be nil, in which case a fresh attribute map is allocated.
func NewMemoryRequest(method string, params url.Values, session map[string]any) *MemoryRequest {
	if params == nil {
		params = url.Values{}
	}
	if session == nil {
		session = map[string]any{}
	}
	return &MemoryRequest{
		method:  method,
		params:  params,
		headers: http.Header{},
		session: session,
		logout:  params.Has(ParamLogout),
		ctx:     context.Background(),
	}
}

// WithContext replaces the request context.
func (r *MemoryRequest) WithContext(ctx context.Context) *MemoryRequest {
	r.ctx = ctx
	return r
}

// SetHeader sets a request header.
func (r *MemoryRequest) SetHeader(name, value string) *MemoryRequest {
	r.headers.Set(name, value)
	return r
}

func (r *MemoryRequest) Parameter(name string) string { return r.params.Get(name) }
func (r *MemoryRequest) Parameters(name string) []string { return r.params[name] }
func (r *MemoryRequest) HasParameter(name string) bool { return r.params.Has(name) }
func (r *MemoryRequest) Method() string { return r.method }
func (r *MemoryRequest) Header(name string) string { return r.headers.Get(name) }
func (r *MemoryRequest) SessionAttribute(name string) any { return r.session[name] }
func (r *MemoryRequest) IsLogout() bool { return r.logout }
func (r *MemoryRequest) Context() context.Context { return r.ctx }

func (r *MemoryRequest) SetSessionAttribute(name string, value any) {
	if value == nil {
		delete(r.session, name)
		return
	}
	r.session[name] = value
}

// MemoryResponse records everything written to it.
type MemoryResponse struct {
	Body        bytes.Buffer
	Headers     http.Header
	StatusCode  int
	RedirectURL string
	ErrorText   string
}

// NewMemoryResponse creates an empty response with status 200.
func NewMemoryResponse() *MemoryResponse {
	return &MemoryResponse{Headers: http.Header{}, StatusCode: http.StatusOK}
}

func (r *MemoryResponse) Writer() io.Writer { return &r.Body }
func (r *MemoryResponse) SetHeader(name, value string) { r.Headers.Set(name, value) }
func (r *MemoryResponse) SetContentType(contentType string) { r.Headers.Set("Content-Type", contentType) }

func (r *MemoryResponse) Redirect(url string) error {
	r.StatusCode = http.StatusFound
	r.RedirectURL = url
	return nil
}

func (r *MemoryResponse) SendError(code int, message string) error {
	r.StatusCode = code
	r.ErrorText = message
	return nil
}

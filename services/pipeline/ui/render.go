// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ui

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
)

const (
	// NamespacePrefix is the element prefix used by every component.
	NamespacePrefix = "ui"

	// Namespace is the XML namespace bound to NamespacePrefix.
	Namespace = "https://aleutian.ai/forms/ns/ui/1.0"

	// XMLPrologue starts every full page response.
	XMLPrologue = `<?xml version="1.0" encoding="UTF-8"?>`
)

// RenderContext is what Paint writes to: an XML writer plus the request's
// context stack and, when painting for a client, its response headers.
type RenderContext struct {
	xml   *XMLWriter
	stack *Stack
	resp  transport.Response
}

// NewRenderContext creates a render context writing to w. A nil stack is
// replaced with an empty one.
func NewRenderContext(w io.Writer, stack *Stack) *RenderContext {
	if stack == nil {
		stack = NewStack()
	}
	return &RenderContext{xml: NewXMLWriter(w), stack: stack}
}

// WithResponse attaches the response whose headers interceptors may set.
func (rc *RenderContext) WithResponse(resp transport.Response) *RenderContext {
	rc.resp = resp
	return rc
}

// SetHeader sets a response header. It does nothing when no response is
// attached.
func (rc *RenderContext) SetHeader(name, value string) {
	if rc.resp != nil {
		rc.resp.SetHeader(name, value)
	}
}

// SetContentType sets the response content type when a response is
// attached.
func (rc *RenderContext) SetContentType(contentType string) {
	if rc.resp != nil {
		rc.resp.SetContentType(contentType)
	}
}

// XML returns the writer components append to.
func (rc *RenderContext) XML() *XMLWriter { return rc.xml }

// Stack returns the request's context stack.
func (rc *RenderContext) Stack() *Stack { return rc.stack }

// Divert returns a render context sharing this one's stack but writing to
// w. Interceptors that post-process output paint into a buffer this way.
func (rc *RenderContext) Divert(w io.Writer) *RenderContext {
	return &RenderContext{xml: NewXMLWriter(w), stack: rc.stack, resp: rc.resp}
}

// XMLWriter appends XML to an io.Writer. The first write error is kept and
// every later call becomes a no-op; check Err once painting is done.
type XMLWriter struct {
	w   io.Writer
	err error
}

// NewXMLWriter wraps w.
func NewXMLWriter(w io.Writer) *XMLWriter {
	return &XMLWriter{w: w}
}

// Err returns the first write error.
func (x *XMLWriter) Err() error { return x.err }

// Open writes "<name" leaving the tag open for attributes.
func (x *XMLWriter) Open(name string) *XMLWriter {
	return x.Raw("<" + name)
}

// Attr writes an escaped attribute.
func (x *XMLWriter) Attr(name, value string) *XMLWriter {
	x.Raw(" " + name + `="`)
	x.escape(value)
	return x.Raw(`"`)
}

// OptAttr writes an attribute only when value is not empty.
func (x *XMLWriter) OptAttr(name, value string) *XMLWriter {
	if value == "" {
		return x
	}
	return x.Attr(name, value)
}

// IntAttr writes an integer attribute.
func (x *XMLWriter) IntAttr(name string, value int) *XMLWriter {
	return x.Attr(name, strconv.Itoa(value))
}

// BoolAttr writes name="true" when value is true and nothing otherwise.
func (x *XMLWriter) BoolAttr(name string, value bool) *XMLWriter {
	if !value {
		return x
	}
	return x.Attr(name, "true")
}

// Close ends an open tag with ">".
func (x *XMLWriter) Close() *XMLWriter {
	return x.Raw(">")
}

// SelfClose ends an open tag with "/>".
func (x *XMLWriter) SelfClose() *XMLWriter {
	return x.Raw("/>")
}

// End writes "</name>".
func (x *XMLWriter) End(name string) *XMLWriter {
	return x.Raw("</" + name + ">")
}

// Text writes escaped character data.
func (x *XMLWriter) Text(s string) *XMLWriter {
	x.escape(s)
	return x
}

// Raw writes s unescaped.
func (x *XMLWriter) Raw(s string) *XMLWriter {
	if x.err != nil {
		return x
	}
	_, x.err = io.WriteString(x.w, s)
	return x
}

func (x *XMLWriter) escape(s string) {
	if x.err != nil {
		return
	}
	x.err = xml.EscapeText(x.w, []byte(s))
}

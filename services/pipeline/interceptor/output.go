// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/AleutianAI/AleutianForms/pkg/extensions"
	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// =============================================================================
// Response Cache
// =============================================================================

// ResponseCache writes cache headers for the response. The class given at
// construction applies unless a targeted component published its own under
// ScratchCacheClass.
type ResponseCache struct {
	Base
	class ui.CacheClass
}

// NewResponseCache creates the cache header interceptor.
func NewResponseCache(class ui.CacheClass) *ResponseCache {
	return &ResponseCache{class: class}
}

// Kind implements Interceptor.
func (r *ResponseCache) Kind() Kind { return KindResponseCache }

// Paint sets the headers, then forwards.
func (r *ResponseCache) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	class := r.class
	if v, ok := uic.PhaseScratch()[ScratchCacheClass].(ui.CacheClass); ok {
		class = v
	}
	for name, value := range CacheHeaders(class) {
		rc.SetHeader(name, value)
	}
	return r.Base.Paint(uic, rc)
}

// CacheHeaders returns the response headers for class.
func CacheHeaders(class ui.CacheClass) map[string]string {
	switch class {
	case ui.CacheLong:
		return map[string]string{"Cache-Control": "public, max-age=31536000, immutable"}
	case ui.CachePrivate:
		return map[string]string{"Cache-Control": "private, max-age=300"}
	default:
		return map[string]string{
			"Cache-Control": "no-cache, no-store, must-revalidate",
			"Pragma":        "no-cache",
			"Expires":       "0",
		}
	}
}

// =============================================================================
// Whitespace Filter
// =============================================================================

// interTagSpace matches line-break indentation between tags. A run without
// a line break, such as the space in `<b>a</b> <i>b</i>`, is content.
var interTagSpace = regexp.MustCompile(`>[ \t\r]*\n\s*<`)

// Whitespace removes indentation between tags from the painted output.
type Whitespace struct {
	Base
}

// NewWhitespace creates the whitespace filter.
func NewWhitespace() *Whitespace { return &Whitespace{} }

// Kind implements Interceptor.
func (w *Whitespace) Kind() Kind { return KindWhitespace }

// Paint filters the backing's output.
func (w *Whitespace) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	var buf bytes.Buffer
	out := w.Base.Paint(uic, rc.Divert(&buf))
	rc.XML().Raw(string(interTagSpace.ReplaceAll(buf.Bytes(), []byte("><"))))
	return out
}

// =============================================================================
// Validation
// =============================================================================

// Validation checks that the painted document is well-formed XML and logs
// the first syntax error. The output is written unchanged.
type Validation struct {
	Base
	logger *slog.Logger
}

// NewValidation creates the validating interceptor.
func NewValidation(logger *slog.Logger) *Validation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validation{logger: logger}
}

// Kind implements Interceptor.
func (v *Validation) Kind() Kind { return KindValidation }

// Paint validates the backing's output.
func (v *Validation) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	var buf bytes.Buffer
	out := v.Base.Paint(uic, rc.Divert(&buf))
	if out.IsContinue() {
		if err := CheckWellFormed(buf.Bytes()); err != nil {
			v.logger.Error("Painted document is not well-formed",
				"session_id", ui.SessionID(uic),
				"error", err,
			)
		}
	}
	rc.XML().Raw(buf.String())
	return out
}

// CheckWellFormed reports the first XML syntax error in doc.
func CheckWellFormed(doc []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// =============================================================================
// Debug
// =============================================================================

// Element written by the debug interceptor.
const (
	ElementDebug     = ui.NamespacePrefix + ":debug"
	ElementDebugInfo = ui.NamespacePrefix + ":debugInfo"
)

// Debug appends a description of every painted component: its rendered id
// and Go type.
type Debug struct {
	Base
}

// NewDebug creates the debug interceptor.
func NewDebug() *Debug { return &Debug{} }

// Kind implements Interceptor.
func (d *Debug) Kind() Kind { return KindDebug }

// Paint forwards and then writes the debug block.
func (d *Debug) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	out := d.Base.Paint(uic, rc)
	if !out.IsContinue() {
		return out
	}
	x := rc.XML()
	x.Open(ElementDebug).Close()
	ui.Walk(uic, uic.UI(), func(cwc ui.ComponentWithContext) bool {
		x.Open(ElementDebugInfo).
			Attr("for", ui.RenderedID(cwc.Context, cwc.Component)).
			Attr("type", fmt.Sprintf("%T", cwc.Component)).
			SelfClose()
		return true
	})
	x.End(ElementDebug)
	return out
}

// =============================================================================
// Template
// =============================================================================

// Template hands the painted tree to a TemplateEngine and writes what it
// returns.
type Template struct {
	Base
	engine extensions.TemplateEngine
	ctx    context.Context
}

// NewTemplate creates the template interceptor.
func NewTemplate(engine extensions.TemplateEngine) *Template {
	if engine == nil {
		engine = &extensions.NopTemplateEngine{}
	}
	return &Template{engine: engine, ctx: context.Background()}
}

// Kind implements Interceptor.
func (t *Template) Kind() Kind { return KindTemplate }

// PreparePaint remembers the request context for Paint.
func (t *Template) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	t.ctx = req.Context()
	return t.Base.PreparePaint(uic, req)
}

// Paint renders the backing through the engine.
func (t *Template) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	var buf bytes.Buffer
	out := t.Base.Paint(uic, rc.Divert(&buf))
	if !out.IsContinue() {
		return out
	}
	rendered, err := t.engine.Render(t.ctx, buf.Bytes())
	if err != nil {
		return escape.Fail(fmt.Errorf("template: %w", err))
	}
	rc.XML().Raw(string(rendered))
	return escape.Proceed()
}

var (
	_ Interceptor = (*ResponseCache)(nil)
	_ Interceptor = (*Whitespace)(nil)
	_ Interceptor = (*Validation)(nil)
	_ Interceptor = (*Debug)(nil)
	_ Interceptor = (*Template)(nil)
)

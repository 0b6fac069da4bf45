// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package interceptor implements the wrappers that sit between the phase
// driver and the component tree.
//
// # Description
//
// An interceptor has the same three-phase contract as a component and
// forwards each phase to its backing, which is either the next interceptor
// or the root component. Interceptors are created per request, so they may
// keep per-request state in their own fields.
//
// A Chain is the ordered, kind-tagged list of interceptors for one request.
// Build assembles the default chain for a request class; Chain.Replace
// swaps one interceptor for another of the same kind.
package interceptor

import (
	"errors"
	"strconv"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// ErrUnattached is returned by an interceptor that has no backing.
var ErrUnattached = errors.New("interceptor has no backing component")

// =============================================================================
// Kinds
// =============================================================================

// Kind tags an interceptor so a chain can find and replace it.
type Kind int

const (
	KindUnknown Kind = iota
	KindMetrics
	KindResponseCache
	KindFatalError
	KindAjaxError
	KindContentError
	KindSessionToken
	KindStep
	KindWindow
	KindTargetable
	KindAjaxSetup
	KindAjaxPaint
	KindAjaxCleanup
	KindSubordinate
	KindValidation
	KindWhitespace
	KindTemplate
	KindPageShell
	KindDebug
)

var kindNames = map[Kind]string{
	KindMetrics:       "metrics",
	KindResponseCache: "response_cache",
	KindFatalError:    "fatal_error",
	KindAjaxError:     "ajax_error",
	KindContentError:  "content_error",
	KindSessionToken:  "session_token",
	KindStep:          "step",
	KindWindow:        "window",
	KindTargetable:    "targetable",
	KindAjaxSetup:     "ajax_setup",
	KindAjaxPaint:     "ajax_paint",
	KindAjaxCleanup:   "ajax_cleanup",
	KindSubordinate:   "subordinate",
	KindValidation:    "validation",
	KindWhitespace:    "whitespace",
	KindTemplate:      "template",
	KindPageShell:     "page_shell",
	KindDebug:         "debug",
}

// String returns the snake_case name of k.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// =============================================================================
// Interceptor Contract
// =============================================================================

// Interceptor wraps a backing Phased value.
type Interceptor interface {
	ui.Phased

	// Kind identifies the interceptor within a chain.
	Kind() Kind

	// Backing returns the next element, or nil when unattached.
	Backing() ui.Phased

	// SetBacking links the interceptor to next.
	SetBacking(next ui.Phased)
}

// Base forwards every phase to the backing. Concrete interceptors embed it
// and override the phases they act on.
type Base struct {
	backing ui.Phased
}

// Backing implements Interceptor.
func (b *Base) Backing() ui.Phased { return b.backing }

// SetBacking implements Interceptor.
func (b *Base) SetBacking(next ui.Phased) { b.backing = next }

// ServiceRequest forwards to the backing.
func (b *Base) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	if b.backing == nil {
		return escape.Fail(ErrUnattached)
	}
	return b.backing.ServiceRequest(uic, req)
}

// PreparePaint forwards to the backing.
func (b *Base) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	if b.backing == nil {
		return escape.Fail(ErrUnattached)
	}
	return b.backing.PreparePaint(uic, req)
}

// Paint forwards to the backing.
func (b *Base) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	if b.backing == nil {
		return escape.Fail(ErrUnattached)
	}
	return b.backing.Paint(uic, rc)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ui holds the component tree contract and the per-user session
// context layered over it.
//
// # Shared Tree, Private State
//
// One component tree is built per application and shared by every user.
// Components never keep per-user data in their own fields. Everything that
// varies by user (field values, visibility, focus, the step counter, the
// AJAX operations registered during the last render) lives in a Context,
// and every phase method receives the Context it must operate on:
//
//	                ┌────────────── shared tree ─────────────┐
//	 Context(A) ──► │ Application ─► Container ─► TextField  │
//	 Context(B) ──► │                         └─► Button     │
//	                └────────────────────────────────────────┘
//
// # Phases
//
// A request runs two phases over the tree:
//
//   - action: ServiceRequest walks the tree and applies submitted input.
//   - render: PreparePaint runs first, then Paint writes XML.
//
// All three calls return an escape.Outcome instead of unwinding.
//
// # Thread Safety
//
// The tree is read-only once built and may be traversed by any number of
// goroutines. A Context is used by one request at a time; the session
// layer serializes requests for the same context with Acquire/Release.
package ui

import (
	"time"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
)

// =============================================================================
// Phase Contract
// =============================================================================

// Phased is the three-call lifecycle shared by components and interceptors.
type Phased interface {
	// ServiceRequest processes submitted input (action phase).
	ServiceRequest(uic Context, req transport.Request) escape.Outcome

	// PreparePaint runs before Paint so components can settle derived
	// state (render phase, before any output is written).
	PreparePaint(uic Context, req transport.Request) escape.Outcome

	// Paint writes the component's XML (render phase).
	Paint(uic Context, rc *RenderContext) escape.Outcome
}

// Component is a node of the shared tree.
type Component interface {
	Phased

	// ID returns the identifier of the component, unique within its
	// naming scope. The id written to the wire is RenderedID(uic, c).
	ID() string

	// Children returns the child components in paint order. The returned
	// slice must not be modified.
	Children() []Component
}

// =============================================================================
// Optional Capabilities
// =============================================================================

// AjaxPoller is implemented by triggers that refire on their own after a
// delay. A positive delay makes the AJAX action phase trigger-only.
type AjaxPoller interface {
	PollDelay() time.Duration
}

// Targetable is implemented by components that can be requested on their
// own through a content request (downloads, images, lazily loaded panels).
type Targetable interface {
	Component

	// ContentType is the MIME type written for a targeted request.
	ContentType() string

	// CacheClass classifies how clients may cache the targeted content.
	CacheClass() CacheClass
}

// Window is a component that renders as a secondary browser window with its
// own post URL.
type Window interface {
	Component

	// WindowContent returns the subtree rendered inside the window.
	WindowContent() Component

	// WindowURL returns the post URL used by forms inside the window.
	WindowURL(uic Context) string
}

// Row is one repetition of a ScopedContainer's children.
type Row struct {
	// Key identifies the row. It becomes part of the rendered ids of the
	// components inside the row.
	Key string

	// Context is the row's own context.
	Context Context
}

// ScopedContainer is implemented by components that repeat their children
// once per row, each row holding its own component state.
type ScopedContainer interface {
	Component

	// Rows returns the rows to process for the given parent context.
	Rows(uic Context) []Row
}

// CacheClass is the caching classification applied by the response cache
// interceptor.
type CacheClass int

const (
	// CacheNone forbids any caching. It is the default.
	CacheNone CacheClass = iota

	// CachePrivate allows the browser, but not shared caches, to keep the
	// response for a short time.
	CachePrivate

	// CacheLong allows any cache to keep the response for a long time. Only
	// suitable for content addressed by an immutable key.
	CacheLong
)

// String returns the class name.
func (c CacheClass) String() string {
	switch c {
	case CachePrivate:
		return "private"
	case CacheLong:
		return "long"
	default:
		return "none"
	}
}

// =============================================================================
// Base Implementation
// =============================================================================

// Base is an embeddable Component with an id and children and default phase
// methods that recurse into the children.
//
// Concrete components embed Base and override Paint (and ServiceRequest when
// they accept input). Base itself writes nothing.
type Base struct {
	id       string
	children []Component
}

// NewBase creates a Base with the given id and children.
func NewBase(id string, children ...Component) Base {
	return Base{id: id, children: children}
}

// ID implements Component.
func (b *Base) ID() string { return b.id }

// Children implements Component.
func (b *Base) Children() []Component { return b.children }

// Add appends children. It is a builder operation and must only be used
// while the tree is being constructed, before it is shared.
func (b *Base) Add(children ...Component) {
	b.children = append(b.children, children...)
}

// ServiceRequest services every child in order, stopping at the first
// outcome that is not Continue.
func (b *Base) ServiceRequest(uic Context, req transport.Request) escape.Outcome {
	for _, child := range b.children {
		if out := child.ServiceRequest(uic, req); !out.IsContinue() {
			return out
		}
	}
	return escape.Proceed()
}

// PreparePaint prepares every child in order.
func (b *Base) PreparePaint(uic Context, req transport.Request) escape.Outcome {
	for _, child := range b.children {
		if out := child.PreparePaint(uic, req); !out.IsContinue() {
			return out
		}
	}
	return escape.Proceed()
}

// Paint paints every child in order.
func (b *Base) Paint(uic Context, rc *RenderContext) escape.Outcome {
	return PaintChildren(uic, rc, b.children)
}

// PaintChildren paints components in order, stopping at the first outcome
// that is not Continue.
func PaintChildren(uic Context, rc *RenderContext, children []Component) escape.Outcome {
	for _, child := range children {
		if out := child.Paint(uic, rc); !out.IsContinue() {
			return out
		}
	}
	return escape.Proceed()
}

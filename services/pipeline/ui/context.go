// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ui

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/text/language"
)

// =============================================================================
// Framework Attribute Keys
// =============================================================================

const (
	// AttrActionFailure holds the error of a failed action phase until the
	// render phase presents it.
	AttrActionFailure = "fwk.action_failure"

	// AttrActionEscape holds an escape raised during the action phase until
	// the render phase acts on it.
	AttrActionEscape = "fwk.action_escape"

	// ScratchTarget is the phase scratch key holding the rendered id of the
	// component a content request targets.
	ScratchTarget = "fwk.target"
)

// =============================================================================
// Context Interface
// =============================================================================

// Context is the per-user state layered over the shared component tree.
//
// # Description
//
// A Context is created on the first request of a session and discarded on
// logout or expiry. It holds everything a component needs to know about the
// user it is working for:
//
//   - the root of the tree it decorates (shared, not owned)
//   - the Environment (session token, step counter, URLs)
//   - focus state
//   - per-component models (values, visibility)
//   - the phase scratch map (cleared at the start of every phase)
//   - per-component scratch maps (cleared after every render)
//   - the AJAX operations registered by the last render
//   - the invoke-later queue
//
// # Implementations
//
//   - *SessionContext: the real per-user context.
//   - *Delegate: overrides the environment or root of another context.
//   - *SubContext: a repeated row with its own models.
//
// # Thread Safety
//
// Not safe for concurrent use. The session layer holds Acquire for the
// whole duration of a request.
type Context interface {
	// UI returns the root of the tree this context decorates.
	UI() Component

	// Environment returns the environment. Delegates may return a copy.
	Environment() *Environment

	// Locale returns the user's locale.
	Locale() language.Tag

	// SetLocale changes the user's locale.
	SetLocale(tag language.Tag)

	// Focused returns the rendered id of the component that should receive
	// focus, or "".
	Focused() string

	// IsFocusRequired reports whether focus must be set on the next render.
	IsFocusRequired() bool

	// SetFocused records the component to focus.
	SetFocused(id string, required bool)

	// Model returns the model for the component with rendered id, creating
	// it on first use.
	Model(id string) *Model

	// HasModel reports whether a model exists for id.
	HasModel(id string) bool

	// RemoveModel drops the model for id, resetting it to defaults.
	RemoveModel(id string)

	// IDPrefix returns the prefix added to component ids rendered under
	// this context. It is empty for a session context.
	IDPrefix() string

	// PhaseScratch returns the map cleared at the start of every phase.
	PhaseScratch() map[string]any

	// ClearPhaseScratch empties the phase scratch map.
	ClearPhaseScratch()

	// ScratchMap returns the render scratch map for a component id.
	ScratchMap(id string) map[string]any

	// ClearScratchMaps empties every render scratch map.
	ClearScratchMaps()

	// InvokeLater queues fn to run when the driver drains the queue.
	InvokeLater(fn func())

	// DrainInvokeLaters runs and removes queued functions, including any
	// queued while draining, and returns how many ran.
	DrainInvokeLaters() int

	// RegisterAjaxOperation adds or replaces the operation for its trigger.
	RegisterAjaxOperation(op AjaxOperation)

	// AjaxOperation returns the operation registered for triggerID.
	AjaxOperation(triggerID string) (AjaxOperation, bool)

	// AjaxOperations returns every registered operation sorted by trigger.
	AjaxOperations() []AjaxOperation

	// RemoveAjaxOperation removes the operation registered for triggerID.
	RemoveAjaxOperation(triggerID string)

	// ClearAjaxOperations removes every registered operation.
	ClearAjaxOperations()

	// CurrentAjax returns the operation bound to the request in progress.
	CurrentAjax() (AjaxBinding, bool)

	// SetCurrentAjax binds an operation to the request in progress.
	SetCurrentAjax(binding AjaxBinding)

	// ClearCurrentAjax removes the binding.
	ClearCurrentAjax()

	// FwkAttribute returns a framework attribute.
	FwkAttribute(name string) any

	// SetFwkAttribute sets a framework attribute; nil removes it.
	SetFwkAttribute(name string, value any)

	// CreationTime returns when the underlying session context was made.
	CreationTime() time.Time
}

// ModelValue is the model key under which input components keep their
// current value.
const ModelValue = "value"

// Model is the per-user state of one component.
type Model struct {
	// Hidden components paint nothing and ignore input.
	Hidden bool

	// Disabled components paint as read-only and ignore input.
	Disabled bool

	values map[string]any
}

// Value returns a stored value, or nil.
func (m *Model) Value(key string) any {
	return m.values[key]
}

// String returns a stored value as a string, or "".
func (m *Model) String(key string) string {
	s, _ := m.values[key].(string)
	return s
}

// SetValue stores a value; nil removes it.
func (m *Model) SetValue(key string, value any) {
	if value == nil {
		delete(m.values, key)
		return
	}
	if m.values == nil {
		m.values = map[string]any{}
	}
	m.values[key] = value
}

// =============================================================================
// SessionContext
// =============================================================================

// SessionContext is the per-user Context.
//
// # Description
//
// One SessionContext exists per logical user session and application. It is
// never shared between users. Acquire and Release serialize the requests of
// a single user (for example a poller firing while a form is submitted).
type SessionContext struct {
	lock sync.Mutex

	id      string
	root    Component
	env     *Environment
	locale  language.Tag
	created time.Time

	focused       string
	focusRequired bool

	models       map[string]*Model
	phaseScratch map[string]any
	scratch      map[string]map[string]any
	invokeLater  []func()

	ajaxOps     map[string]AjaxOperation
	currentAjax *AjaxBinding

	fwk map[string]any
}

// NewSessionContext creates a context with the given id decorating root.
func NewSessionContext(id string, root Component, env *Environment) *SessionContext {
	if env == nil {
		env = NewEnvironment("", "")
	}
	return &SessionContext{
		id:           id,
		root:         root,
		env:          env,
		locale:       language.English,
		created:      time.Now(),
		models:       map[string]*Model{},
		phaseScratch: map[string]any{},
		scratch:      map[string]map[string]any{},
		ajaxOps:      map[string]AjaxOperation{},
		fwk:          map[string]any{},
	}
}

// ID returns the context id (the session id it was created for).
func (c *SessionContext) ID() string { return c.id }

// Acquire blocks until the calling request owns the context.
func (c *SessionContext) Acquire() { c.lock.Lock() }

// TryAcquire takes ownership only if no request holds the context and
// reports whether it did.
func (c *SessionContext) TryAcquire() bool { return c.lock.TryLock() }

// Release gives up ownership taken by Acquire.
func (c *SessionContext) Release() { c.lock.Unlock() }

func (c *SessionContext) UI() Component { return c.root }
func (c *SessionContext) Environment() *Environment { return c.env }
func (c *SessionContext) Locale() language.Tag { return c.locale }
func (c *SessionContext) SetLocale(tag language.Tag) { c.locale = tag }
func (c *SessionContext) Focused() string { return c.focused }
func (c *SessionContext) IsFocusRequired() bool { return c.focusRequired }
func (c *SessionContext) IDPrefix() string { return "" }
func (c *SessionContext) CreationTime() time.Time { return c.created }

func (c *SessionContext) SetFocused(id string, required bool) {
	c.focused = id
	c.focusRequired = required
}

func (c *SessionContext) Model(id string) *Model {
	m, ok := c.models[id]
	if !ok {
		m = &Model{}
		c.models[id] = m
	}
	return m
}

func (c *SessionContext) HasModel(id string) bool {
	_, ok := c.models[id]
	return ok
}

func (c *SessionContext) RemoveModel(id string) { delete(c.models, id) }

func (c *SessionContext) PhaseScratch() map[string]any { return c.phaseScratch }

func (c *SessionContext) ClearPhaseScratch() { clear(c.phaseScratch) }

func (c *SessionContext) ScratchMap(id string) map[string]any {
	m, ok := c.scratch[id]
	if !ok {
		m = map[string]any{}
		c.scratch[id] = m
	}
	return m
}

func (c *SessionContext) ClearScratchMaps() { clear(c.scratch) }

func (c *SessionContext) InvokeLater(fn func()) {
	c.invokeLater = append(c.invokeLater, fn)
}

func (c *SessionContext) DrainInvokeLaters() int {
	ran := 0
	for len(c.invokeLater) > 0 {
		queued := c.invokeLater
		c.invokeLater = nil
		for _, fn := range queued {
			fn()
			ran++
		}
	}
	return ran
}

func (c *SessionContext) RegisterAjaxOperation(op AjaxOperation) {
	c.ajaxOps[op.TriggerID()] = op
}

func (c *SessionContext) AjaxOperation(triggerID string) (AjaxOperation, bool) {
	op, ok := c.ajaxOps[triggerID]
	return op, ok
}

func (c *SessionContext) AjaxOperations() []AjaxOperation {
	ops := make([]AjaxOperation, 0, len(c.ajaxOps))
	for _, op := range c.ajaxOps {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].TriggerID() < ops[j].TriggerID() })
	return ops
}

func (c *SessionContext) RemoveAjaxOperation(triggerID string) { delete(c.ajaxOps, triggerID) }

func (c *SessionContext) ClearAjaxOperations() { clear(c.ajaxOps) }

func (c *SessionContext) CurrentAjax() (AjaxBinding, bool) {
	if c.currentAjax == nil {
		return AjaxBinding{}, false
	}
	return *c.currentAjax, true
}

func (c *SessionContext) SetCurrentAjax(binding AjaxBinding) { c.currentAjax = &binding }

func (c *SessionContext) ClearCurrentAjax() { c.currentAjax = nil }

func (c *SessionContext) FwkAttribute(name string) any { return c.fwk[name] }

func (c *SessionContext) SetFwkAttribute(name string, value any) {
	if value == nil {
		delete(c.fwk, name)
		return
	}
	c.fwk[name] = value
}

var _ Context = (*SessionContext)(nil)

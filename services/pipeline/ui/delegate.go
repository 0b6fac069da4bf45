// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ui

// Delegate stacks over another Context and overrides its environment and/or
// root for the duration of a nested operation, such as rendering a secondary
// window, without mutating the original.
//
// Every method not overridden forwards to the backing context, so models,
// focus, scratch maps and the AJAX registry are shared with it. Changes made
// to an overriding Environment are not copied back.
type Delegate struct {
	Context

	env  *Environment
	root Component
}

// NewDelegate creates a delegate that forwards everything to backing.
func NewDelegate(backing Context) *Delegate {
	return &Delegate{Context: backing}
}

// WithEnvironment overrides the environment.
func (d *Delegate) WithEnvironment(env *Environment) *Delegate {
	d.env = env
	return d
}

// WithUI overrides the root.
func (d *Delegate) WithUI(root Component) *Delegate {
	d.root = root
	return d
}

// Backing returns the context this delegate stacks over.
func (d *Delegate) Backing() Context {
	return d.Context
}

// Environment returns the overriding environment, or the backing one.
func (d *Delegate) Environment() *Environment {
	if d.env != nil {
		return d.env
	}
	return d.Context.Environment()
}

// UI returns the overriding root, or the backing one.
func (d *Delegate) UI() Component {
	if d.root != nil {
		return d.root
	}
	return d.Context.UI()
}

// RowModels is the model storage of one repeated row. A ScopedContainer
// keeps one per row in its own model so rows survive between requests.
type RowModels map[string]*Model

// SubContext is the context of one repeated row. It owns the models of the
// components inside the row and forwards everything else to the parent.
type SubContext struct {
	Context

	prefix string
	models RowModels
}

// NewSubContext creates a row context. prefix is appended to the parent's
// prefix to form the rendered ids of components in the row; models is the
// row's persistent model storage.
func NewSubContext(parent Context, prefix string, models RowModels) *SubContext {
	if models == nil {
		models = RowModels{}
	}
	return &SubContext{
		Context: parent,
		prefix:  parent.IDPrefix() + prefix,
		models:  models,
	}
}

// Parent returns the context the row belongs to.
func (s *SubContext) Parent() Context { return s.Context }

// IDPrefix returns the row prefix including the parent's.
func (s *SubContext) IDPrefix() string { return s.prefix }

// Model returns the row-local model for id.
func (s *SubContext) Model(id string) *Model {
	m, ok := s.models[id]
	if !ok {
		m = &Model{}
		s.models[id] = m
	}
	return m
}

// HasModel reports whether the row has a model for id.
func (s *SubContext) HasModel(id string) bool {
	_, ok := s.models[id]
	return ok
}

// RemoveModel drops the row-local model for id.
func (s *SubContext) RemoveModel(id string) {
	delete(s.models, id)
}

// SessionID returns the id of the SessionContext behind uic, unwrapping
// delegates and row contexts, or "" if there is none.
func SessionID(uic Context) string {
	for uic != nil {
		switch c := uic.(type) {
		case *SessionContext:
			return c.ID()
		case *Delegate:
			uic = c.Backing()
		case *SubContext:
			uic = c.Parent()
		default:
			return ""
		}
	}
	return ""
}

var (
	_ Context = (*Delegate)(nil)
	_ Context = (*SubContext)(nil)
)

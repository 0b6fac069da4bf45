// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ui

import "strings"

// ComponentWithContext pairs a component with the context it must be
// processed in. Inside a repeated row that is the row's SubContext.
type ComponentWithContext struct {
	Component Component
	Context   Context
}

// RenderedID returns the id written to the wire for c under uic.
func RenderedID(uic Context, c Component) string {
	return uic.IDPrefix() + c.ID()
}

// RowPrefix returns the id prefix used for one row of a scoped container.
func RowPrefix(container Component, key string) string {
	return container.ID() + "-" + key + "-"
}

// Walk visits root and its descendants depth first, each with the context
// it belongs to. Children of a ScopedContainer are visited once per row with
// the row's context. Returning false from fn skips the node's descendants.
func Walk(uic Context, root Component, fn func(ComponentWithContext) bool) {
	if root == nil {
		return
	}
	if !fn(ComponentWithContext{Component: root, Context: uic}) {
		return
	}
	if scoped, ok := root.(ScopedContainer); ok {
		for _, row := range scoped.Rows(uic) {
			for _, child := range root.Children() {
				Walk(row.Context, child, fn)
			}
		}
		return
	}
	for _, child := range root.Children() {
		Walk(uic, child, fn)
	}
}

// FindByID locates the component whose rendered id is id, searching from
// root under uic. Rows whose prefix cannot lead to id are not entered.
func FindByID(uic Context, root Component, id string) (ComponentWithContext, bool) {
	var found ComponentWithContext
	ok := false
	Walk(uic, root, func(cwc ComponentWithContext) bool {
		if ok {
			return false
		}
		prefix := cwc.Context.IDPrefix()
		if !strings.HasPrefix(id, prefix) {
			return false
		}
		if prefix+cwc.Component.ID() == id {
			found, ok = cwc, true
			return false
		}
		return true
	})
	return found, ok
}

// Count returns the number of component visits Walk makes from root.
func Count(uic Context, root Component) int {
	n := 0
	Walk(uic, root, func(ComponentWithContext) bool {
		n++
		return true
	})
	return n
}

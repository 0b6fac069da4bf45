// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"slices"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// Chain is an ordered list of interceptors ending in a root component.
//
// # Description
//
// Element i is backed by element i+1 and the last element is backed by the
// root once Attach is called. A Chain is itself ui.Phased: calling a phase
// on it enters at the head.
//
// # Thread Safety
//
// A Chain and its interceptors belong to a single request and are not safe
// for concurrent use.
type Chain struct {
	items []Interceptor
	root  ui.Component
}

// NewChain links items in order. Nil items are dropped.
func NewChain(items ...Interceptor) *Chain {
	c := &Chain{}
	for _, it := range items {
		if it != nil {
			c.items = append(c.items, it)
		}
	}
	c.link()
	return c
}

func (c *Chain) link() {
	for i := 0; i+1 < len(c.items); i++ {
		c.items[i].SetBacking(c.items[i+1])
	}
	if n := len(c.items); n > 0 {
		if c.root != nil {
			c.items[n-1].SetBacking(c.root)
		} else {
			c.items[n-1].SetBacking(nil)
		}
	}
}

// Attach sets root as the backing of the last interceptor and returns c.
func (c *Chain) Attach(root ui.Component) *Chain {
	c.root = root
	c.link()
	return c
}

// Replace substitutes the first interceptor of the given kind with repl.
//
// # Description
//
// The result keeps the length and order of c with repl in the replaced
// position and the same root. When no interceptor has that kind, c itself
// is returned unchanged.
//
// The interceptors are shared and relinked, so after a successful replace
// only the returned chain may be used.
func (c *Chain) Replace(kind Kind, repl Interceptor) *Chain {
	idx := slices.IndexFunc(c.items, func(it Interceptor) bool { return it.Kind() == kind })
	if idx < 0 || repl == nil {
		return c
	}
	next := &Chain{items: slices.Clone(c.items), root: c.root}
	next.items[idx] = repl
	next.link()
	return next
}

// Find returns the first interceptor of the given kind.
func (c *Chain) Find(kind Kind) (Interceptor, bool) {
	for _, it := range c.items {
		if it.Kind() == kind {
			return it, true
		}
	}
	return nil, false
}

// Root follows the backing links from the head to the first element that
// is not an interceptor.
func (c *Chain) Root() ui.Component {
	var cur ui.Phased = c.Head()
	for cur != nil {
		it, ok := cur.(Interceptor)
		if !ok {
			comp, _ := cur.(ui.Component)
			return comp
		}
		cur = it.Backing()
	}
	return nil
}

// Head returns the entry point: the first interceptor, or the root when
// the chain is empty.
func (c *Chain) Head() ui.Phased {
	if len(c.items) > 0 {
		return c.items[0]
	}
	if c.root == nil {
		return nil
	}
	return c.root
}

// Len returns the number of interceptors.
func (c *Chain) Len() int { return len(c.items) }

// Kinds returns the interceptor kinds in order.
func (c *Chain) Kinds() []Kind {
	kinds := make([]Kind, len(c.items))
	for i, it := range c.items {
		kinds[i] = it.Kind()
	}
	return kinds
}

// ServiceRequest enters the chain at the head.
func (c *Chain) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	head := c.Head()
	if head == nil {
		return escape.Fail(ErrUnattached)
	}
	return head.ServiceRequest(uic, req)
}

// PreparePaint enters the chain at the head.
func (c *Chain) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	head := c.Head()
	if head == nil {
		return escape.Fail(ErrUnattached)
	}
	return head.PreparePaint(uic, req)
}

// Paint enters the chain at the head.
func (c *Chain) Paint(uic ui.Context, rc *ui.RenderContext) escape.Outcome {
	head := c.Head()
	if head == nil {
		return escape.Fail(ErrUnattached)
	}
	return head.Paint(uic, rc)
}

var _ ui.Phased = (*Chain)(nil)

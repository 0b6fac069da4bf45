// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ui

import "github.com/AleutianAI/AleutianForms/services/pipeline/escape"

// Stack tracks which context is active while a request substitutes nested
// contexts (a window delegate, the row context of an AJAX target).
//
// A Stack belongs to one request. It is created by the driver and reached
// through the RenderContext; nothing about it is global.
type Stack struct {
	frames []Context
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push makes uic the current context.
func (s *Stack) Push(uic Context) {
	s.frames = append(s.frames, uic)
}

// Pop removes and returns the current context, or nil if the stack is
// empty.
func (s *Stack) Pop() Context {
	if len(s.frames) == 0 {
		return nil
	}
	top := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
	return top
}

// Current returns the current context, or nil.
func (s *Stack) Current() Context {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Depth returns the number of pushed contexts.
func (s *Stack) Depth() int {
	return len(s.frames)
}

// With runs fn with uic pushed and pops it again on every exit path,
// including a panic in fn.
func (s *Stack) With(uic Context, fn func() escape.Outcome) escape.Outcome {
	s.Push(uic)
	defer s.Pop()
	return fn()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"context"

	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// RuleEngine applies declarative show/hide/enable rules to component
// models.
type RuleEngine interface {
	Apply(ctx context.Context, uic ui.Context, root ui.Component) error
}

// Subordinate applies the rule engine before the action phase, so hidden
// and disabled components ignore input, and again after preparing the
// tree, so the paint reflects the new input.
type Subordinate struct {
	Base
	engine RuleEngine
}

// NewSubordinate creates the rule interceptor.
func NewSubordinate(engine RuleEngine) *Subordinate {
	return &Subordinate{engine: engine}
}

// Kind implements Interceptor.
func (s *Subordinate) Kind() Kind { return KindSubordinate }

// ServiceRequest applies the rules, then forwards.
func (s *Subordinate) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	if err := s.engine.Apply(req.Context(), uic, uic.UI()); err != nil {
		return escape.Fail(err)
	}
	return s.Base.ServiceRequest(uic, req)
}

// PreparePaint forwards, then applies the rules.
func (s *Subordinate) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	out := s.Base.PreparePaint(uic, req)
	if !out.IsContinue() {
		return out
	}
	if err := s.engine.Apply(req.Context(), uic, uic.UI()); err != nil {
		return escape.Fail(err)
	}
	return out
}

var _ Interceptor = (*Subordinate)(nil)

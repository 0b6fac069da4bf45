// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rules implements subordinate controls: declarative rules that
// show, hide, enable or disable components depending on the values of
// other components.
//
// # Expression Syntax
//
// Conditions are expr-lang expressions (github.com/expr-lang/expr) that
// must evaluate to a bool. The environment has one variable, values, which
// maps the rendered id of every component with a value to that value:
//
//	values.country == "DE"
//	values["items-1-qty"] != "" && len(values.name) > 2
//
// A rule whose condition is true applies its action to every target; a
// rule whose condition is false applies the opposite action.
package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// ValueKey is the model key read as a component's value.
const ValueKey = ui.ModelValue

// Action is what a rule does to its targets when its condition holds.
type Action string

const (
	ActionShow    Action = "show"
	ActionHide    Action = "hide"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
)

// Rule is one subordinate control as written in configuration.
type Rule struct {
	// When is the condition expression.
	When string `yaml:"when" validate:"required"`

	// Action is applied to Targets when the condition is true.
	Action Action `yaml:"action" validate:"required,oneof=show hide enable disable"`

	// Targets are component ids whose models the rule controls.
	Targets []string `yaml:"targets" validate:"required,min=1,dive,required"`
}

// Env is the expression environment.
type Env struct {
	Values map[string]string `expr:"values"`
}

type compiled struct {
	rule    Rule
	program *vm.Program
}

// ExprEngine evaluates compiled rules against a user context.
//
// # Thread Safety
//
// An ExprEngine is immutable after NewExprEngine and may be shared by all
// requests. Apply mutates only the models of the context it is given.
type ExprEngine struct {
	rules  []compiled
	logger *slog.Logger
}

// NewExprEngine compiles rules.
//
// # Outputs
//
//   - *ExprEngine: The engine, ready to apply.
//   - error: The first rule that does not compile, or has an unknown
//     action.
func NewExprEngine(rules []Rule, logger *slog.Logger) (*ExprEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &ExprEngine{logger: logger}
	for i, r := range rules {
		switch r.Action {
		case ActionShow, ActionHide, ActionEnable, ActionDisable:
		default:
			return nil, fmt.Errorf("rule %d: unknown action %q", i, r.Action)
		}
		program, err := expr.Compile(r.When, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rule %d: compiling %q: %w", i, r.When, err)
		}
		e.rules = append(e.rules, compiled{rule: r, program: program})
	}
	return e, nil
}

// Len returns the number of rules.
func (e *ExprEngine) Len() int { return len(e.rules) }

// Apply evaluates every rule and updates the Hidden and Disabled flags of
// the targets' models.
func (e *ExprEngine) Apply(ctx context.Context, uic ui.Context, root ui.Component) error {
	if len(e.rules) == 0 {
		return nil
	}
	env := Env{Values: Values(uic, root)}
	for i, c := range e.rules {
		result, err := expr.Run(c.program, env)
		if err != nil {
			return fmt.Errorf("rule %d: evaluating %q: %w", i, c.rule.When, err)
		}
		holds, _ := result.(bool)
		for _, target := range c.rule.Targets {
			apply(uic.Model(target), c.rule.Action, holds)
		}
		e.logger.Debug("Subordinate rule applied",
			"rule", i,
			"holds", holds,
			"action", string(c.rule.Action),
		)
	}
	return nil
}

func apply(m *ui.Model, action Action, holds bool) {
	switch action {
	case ActionShow:
		m.Hidden = !holds
	case ActionHide:
		m.Hidden = holds
	case ActionEnable:
		m.Disabled = !holds
	case ActionDisable:
		m.Disabled = holds
	}
}

// Values collects the value of every component under root that has one,
// keyed by rendered id.
func Values(uic ui.Context, root ui.Component) map[string]string {
	values := map[string]string{}
	ui.Walk(uic, root, func(cwc ui.ComponentWithContext) bool {
		id := cwc.Component.ID()
		if cwc.Context.HasModel(id) {
			values[ui.RenderedID(cwc.Context, cwc.Component)] = cwc.Context.Model(id).String(ValueKey)
		}
		return true
	})
	return values
}

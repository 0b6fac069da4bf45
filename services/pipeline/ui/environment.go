// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ui

import (
	"maps"

	"github.com/google/uuid"
)

// Environment holds the request-independent settings of a context: the
// session token, the step counter and the URLs the client posts to.
//
// # Invariants
//
//   - SessionToken is empty until the first render and never changes once
//     set (see EnsureSessionToken).
//   - Step is only changed by IncrementStep, once per render.
type Environment struct {
	// AppID identifies the application the context belongs to.
	AppID string

	// BaseURL is the root URL of the application.
	BaseURL string

	// PostURL is the URL full-page forms are submitted to.
	PostURL string

	// AjaxURL is the URL AJAX requests are sent to.
	AjaxURL string

	sessionToken string
	step         int
	hidden       map[string]string
}

// NewEnvironment creates an environment for appID posting to postURL.
// AjaxURL and BaseURL default to postURL.
func NewEnvironment(appID, postURL string) *Environment {
	return &Environment{
		AppID:   appID,
		BaseURL: postURL,
		PostURL: postURL,
		AjaxURL: postURL,
		hidden:  map[string]string{},
	}
}

// SessionToken returns the token issued to the client, or "" if none has
// been issued yet.
func (e *Environment) SessionToken() string { return e.sessionToken }

// EnsureSessionToken issues a random token if none exists and returns the
// current token. Once issued the token never changes.
func (e *Environment) EnsureSessionToken() string {
	if e.sessionToken == "" {
		e.sessionToken = uuid.NewString()
	}
	return e.sessionToken
}

// RestoreSessionToken sets a previously issued token. It is used only when
// rehydrating a context from a persisted snapshot and is ignored if a token
// is already present.
func (e *Environment) RestoreSessionToken(token string) {
	if e.sessionToken == "" {
		e.sessionToken = token
	}
}

// Step returns the step the next submission must carry.
func (e *Environment) Step() int { return e.step }

// IncrementStep advances the step counter and returns the new value.
func (e *Environment) IncrementStep() int {
	e.step++
	return e.step
}

// RestoreStep sets the step counter from a persisted snapshot.
func (e *Environment) RestoreStep(step int) {
	if step > e.step {
		e.step = step
	}
}

// SetHiddenParameter adds a parameter written into every form.
func (e *Environment) SetHiddenParameter(name, value string) {
	if e.hidden == nil {
		e.hidden = map[string]string{}
	}
	e.hidden[name] = value
}

// HiddenParameters returns a copy of the hidden parameters.
func (e *Environment) HiddenParameters() map[string]string {
	return maps.Clone(e.hidden)
}

// Clone returns a deep copy. Delegates use it to override URLs without
// touching the original.
func (e *Environment) Clone() *Environment {
	c := *e
	c.hidden = maps.Clone(e.hidden)
	if c.hidden == nil {
		c.hidden = map[string]string{}
	}
	return &c
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/language"

	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// Snapshot is the part of a user context that survives a process restart.
//
// Component models are not included. A restored context keeps the client's
// session token and step so that a page rendered before the restart can
// still be submitted; the form values it carries are re-applied by the
// action phase as usual.
type Snapshot struct {
	ContextID     string    `json:"context_id"`
	AppID         string    `json:"app_id"`
	SessionToken  string    `json:"session_token,omitempty"`
	Step          int       `json:"step"`
	Focused       string    `json:"focused,omitempty"`
	FocusRequired bool      `json:"focus_required,omitempty"`
	Locale        string    `json:"locale,omitempty"`
	SavedAt       time.Time `json:"saved_at"`
}

// Capture takes a snapshot of uic. The caller must hold the context lock.
func Capture(uic *ui.SessionContext) Snapshot {
	env := uic.Environment()
	return Snapshot{
		ContextID:     uic.ID(),
		AppID:         env.AppID,
		SessionToken:  env.SessionToken(),
		Step:          env.Step(),
		Focused:       uic.Focused(),
		FocusRequired: uic.IsFocusRequired(),
		Locale:        uic.Locale().String(),
		SavedAt:       time.Now().UTC(),
	}
}

// Apply copies the snapshot into a freshly created context. A token already
// issued by the context is kept and the step never moves backwards.
func (s Snapshot) Apply(uic *ui.SessionContext) {
	env := uic.Environment()
	if s.SessionToken != "" {
		env.RestoreSessionToken(s.SessionToken)
	}
	env.RestoreStep(s.Step)
	if s.Focused != "" {
		uic.SetFocused(s.Focused, s.FocusRequired)
	}
	if s.Locale != "" {
		if tag, err := language.Parse(s.Locale); err == nil {
			uic.SetLocale(tag)
		}
	}
}

func encodeSnapshot(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", s.ContextID, err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns the per-user contexts of an application: it finds
// the context a request belongs to, creates one on first contact, discards
// it on logout or expiry, and persists a snapshot of it between requests.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianForms/pkg/extensions"
	"github.com/AleutianAI/AleutianForms/services/pipeline/observability"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// AttrContextID is the session attribute holding the id of the user's
// context.
const AttrContextID = "aleutian.forms.context_id"

// Reasons passed to Invalidate.
const (
	ReasonLogout  = "logout"
	ReasonFatal   = "fatal"
	ReasonExpired = "expired"
)

// Config configures a Manager.
type Config struct {
	// AppID is written into every context's environment.
	AppID string

	// PostURL is where full-page forms post. Required.
	PostURL string

	// AjaxURL and BaseURL default to PostURL.
	AjaxURL string
	BaseURL string

	// Root is the component tree shared by every context. Required.
	Root ui.Component

	// TTL is how long an idle context lives. Zero disables expiry.
	TTL time.Duration

	// Store persists snapshots. Nil disables persistence.
	Store Store

	Logger  *slog.Logger
	Metrics *observability.PipelineMetrics
	Audit   extensions.AuditLogger
}

type entry struct {
	uic        *ui.SessionContext
	lastAccess time.Time
}

// Manager maps sessions to user contexts.
//
// # Description
//
// The session layer keeps only the context id in the user's session; the
// context itself lives here. Requests that arrive with an id this process
// does not know (after a restart, or on another replica) rebuild the
// context from the Store. Concurrent requests for the same unknown id
// share one rebuild.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The contexts returned are not
// locked; the driver acquires them.
type Manager struct {
	cfg   Config
	now   func() time.Time
	group singleflight.Group

	mu       sync.Mutex
	contexts map[string]*entry
}

// NewManager creates a manager.
//
// # Outputs
//
//   - *Manager: Ready to serve requests.
//   - error: Non-nil if Root or PostURL is missing.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Root == nil {
		return nil, errors.New("session manager: root component is required")
	}
	if cfg.PostURL == "" {
		return nil, errors.New("session manager: post URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = &extensions.NopAuditLogger{}
	}
	return &Manager{
		cfg:      cfg,
		now:      time.Now,
		contexts: map[string]*entry{},
	}, nil
}

// Context returns the user context for req, creating it when needed.
//
// # Description
//
// A logout request first invalidates the current context, so the request
// is served by a brand new one. A request with no context id gets a fresh
// id stored in its session. A known id returns the live context; an
// unknown one is rebuilt, restoring its snapshot when the Store has one.
//
// # Outputs
//
//   - *ui.SessionContext: The unlocked context.
//   - error: Currently always nil; a failing Store is logged and the
//     context starts fresh.
func (m *Manager) Context(req transport.Request) (*ui.SessionContext, error) {
	ctx := req.Context()
	id, _ := req.SessionAttribute(AttrContextID).(string)

	if req.IsLogout() && id != "" {
		m.Invalidate(ctx, id, ReasonLogout)
		req.SetSessionAttribute(AttrContextID, nil)
		id = ""
	}

	if id != "" {
		if uic := m.lookup(id, true); uic != nil {
			return uic, nil
		}
	}

	restore := id != ""
	if id == "" {
		id = uuid.NewString()
		req.SetSessionAttribute(AttrContextID, id)
	}

	v, _, _ := m.group.Do(id, func() (any, error) {
		if uic := m.lookup(id, true); uic != nil {
			return uic, nil
		}
		return m.create(ctx, id, restore), nil
	})
	return v.(*ui.SessionContext), nil
}

// Release saves a snapshot of uic once a request has finished with it. It
// is called by the driver while the context is still locked. A context
// invalidated during the request is not saved.
func (m *Manager) Release(req transport.Request, uic *ui.SessionContext) {
	m.mu.Lock()
	e, live := m.contexts[uic.ID()]
	live = live && e.uic == uic
	if live {
		e.lastAccess = m.now()
	}
	m.mu.Unlock()

	if m.cfg.Store == nil || !live {
		return
	}
	ctx := req.Context()
	err := m.cfg.Store.Save(ctx, Capture(uic), m.cfg.TTL)
	recordStoreOp(ctx, "save", err)
	if err != nil {
		m.cfg.Logger.Warn("failed to save context snapshot",
			"context_id", uic.ID(),
			"error", err,
		)
	}
}

// Invalidate discards the context with the given id and its snapshot.
// It reports whether a live context was removed.
func (m *Manager) Invalidate(ctx context.Context, id, reason string) bool {
	m.mu.Lock()
	_, ok := m.contexts[id]
	delete(m.contexts, id)
	m.mu.Unlock()

	if m.cfg.Store != nil {
		err := m.cfg.Store.Delete(ctx, id)
		recordStoreOp(ctx, "delete", err)
		if err != nil {
			m.cfg.Logger.Warn("failed to delete context snapshot", "context_id", id, "error", err)
		}
	}
	if !ok {
		return false
	}

	m.cfg.Metrics.ContextRemoved(reason == ReasonExpired)
	m.cfg.Logger.Info("user context invalidated", "context_id", id, "reason", reason)
	m.audit(ctx, extensions.AuditEvent{
		EventType: extensions.EventSessionInvalidated,
		SessionID: id,
		Outcome:   "invalidated",
		Metadata:  map[string]any{"reason": reason},
	})
	return true
}

// Expire removes every context idle for longer than the TTL and returns how
// many were removed. Contexts in use by a request are left alone. Their
// snapshots are kept until the Store expires them.
func (m *Manager) Expire(ctx context.Context) int {
	if m.cfg.TTL <= 0 {
		return 0
	}
	start := m.now()
	cutoff := start.Add(-m.cfg.TTL)

	var expired []string
	m.mu.Lock()
	for id, e := range m.contexts {
		if e.lastAccess.Before(cutoff) && e.uic.TryAcquire() {
			delete(m.contexts, id)
			e.uic.Release()
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.cfg.Metrics.ContextRemoved(true)
		m.audit(ctx, extensions.AuditEvent{
			EventType: extensions.EventSessionInvalidated,
			SessionID: id,
			Outcome:   "invalidated",
			Metadata:  map[string]any{"reason": ReasonExpired},
		})
	}
	if len(expired) > 0 {
		m.cfg.Logger.Info("expired idle user contexts", "count", len(expired), "ttl", m.cfg.TTL.String())
	}
	recordSweep(ctx, m.now().Sub(start), len(expired))
	return len(expired)
}

// Lookup returns the live context for id without touching its access time.
func (m *Manager) Lookup(id string) (*ui.SessionContext, bool) {
	uic := m.lookup(id, false)
	return uic, uic != nil
}

// Len returns the number of live contexts.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

func (m *Manager) lookup(id string, touch bool) *ui.SessionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.contexts[id]
	if !ok {
		return nil
	}
	if touch {
		e.lastAccess = m.now()
	}
	return e.uic
}

func (m *Manager) create(ctx context.Context, id string, restore bool) *ui.SessionContext {
	env := ui.NewEnvironment(m.cfg.AppID, m.cfg.PostURL)
	if m.cfg.AjaxURL != "" {
		env.AjaxURL = m.cfg.AjaxURL
	}
	if m.cfg.BaseURL != "" {
		env.BaseURL = m.cfg.BaseURL
	}
	uic := ui.NewSessionContext(id, m.cfg.Root, env)

	restored := false
	if restore && m.cfg.Store != nil {
		snap, err := m.cfg.Store.Load(ctx, id)
		switch {
		case err == nil && snap.AppID == m.cfg.AppID:
			snap.Apply(uic)
			restored = true
		case err == nil:
			m.cfg.Logger.Warn("ignoring context snapshot of another application",
				"context_id", id,
				"snapshot_app", snap.AppID,
			)
		case !errors.Is(err, ErrNotFound):
			m.cfg.Logger.Warn("failed to load context snapshot", "context_id", id, "error", err)
		}
		recordStoreOp(ctx, "load", ignoreNotFound(err))
	}

	m.mu.Lock()
	m.contexts[id] = &entry{uic: uic, lastAccess: m.now()}
	m.mu.Unlock()

	m.cfg.Metrics.ContextCreated()
	recordCreated(ctx, restored)
	m.cfg.Logger.Debug("user context created", "context_id", id, "restored", restored)
	m.audit(ctx, extensions.AuditEvent{
		EventType: extensions.EventSessionCreated,
		SessionID: id,
		Outcome:   "created",
		Metadata:  map[string]any{"restored": restored},
	})
	return uic
}

func (m *Manager) audit(ctx context.Context, event extensions.AuditEvent) {
	if err := m.cfg.Audit.Log(ctx, event); err != nil {
		m.cfg.Logger.Warn("audit log failed", "event", event.EventType, "error", err)
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

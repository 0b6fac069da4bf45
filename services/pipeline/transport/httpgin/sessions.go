// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpgin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Session is the server-side attribute map of one browser session.
//
// # Thread Safety
//
// Safe for concurrent use; a poller and a form post of the same browser
// may run at the same time.
type Session struct {
	id string

	mu       sync.Mutex
	attrs    map[string]any
	lastSeen time.Time
}

// ID returns the session id carried by the cookie.
func (s *Session) ID() string { return s.id }

// Get returns an attribute, or nil.
func (s *Session) Get(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[name]
}

// Set stores an attribute; nil removes it.
func (s *Session) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.attrs, name)
		return
	}
	s.attrs[name] = value
}

// SessionsConfig configures Sessions.
type SessionsConfig struct {
	// CookieName names the session cookie. Required.
	CookieName string

	// Path scopes the cookie. Default "/".
	Path string

	// Secure marks the cookie Secure.
	Secure bool

	// TTL is how long an unused session is kept. Zero keeps sessions
	// forever.
	TTL time.Duration
}

// Sessions keeps session attribute maps in memory, keyed by an opaque
// cookie.
//
// # Description
//
// The cookie carries only a random id. The pipeline stores its context id
// in the attribute map, so the cookie never exposes pipeline state.
//
// # Thread Safety
//
// Safe for concurrent use.
type Sessions struct {
	cfg SessionsConfig
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates an empty session table.
func NewSessions(cfg SessionsConfig) *Sessions {
	if cfg.CookieName == "" {
		cfg.CookieName = "aleutian_forms_session"
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &Sessions{cfg: cfg, now: time.Now, sessions: map[string]*Session{}}
}

// Load returns the caller's session, starting a new one and setting its
// cookie when the request carries no known id.
func (s *Sessions) Load(c *gin.Context) *Session {
	now := s.now()
	if id, err := c.Cookie(s.cfg.CookieName); err == nil && id != "" {
		s.mu.Lock()
		session, ok := s.sessions[id]
		s.mu.Unlock()
		if ok {
			session.mu.Lock()
			session.lastSeen = now
			session.mu.Unlock()
			return session
		}
	}

	session := &Session{id: uuid.NewString(), attrs: map[string]any{}, lastSeen: now}
	s.mu.Lock()
	s.sessions[session.id] = session
	s.mu.Unlock()

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.CookieName, session.id, 0, s.cfg.Path, "", s.cfg.Secure, true)
	return session
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Expire drops sessions unused for longer than the TTL and returns how
// many were dropped. It satisfies session.Expirer so the context cleaner
// can sweep both tables.
func (s *Sessions) Expire(context.Context) int {
	if s.cfg.TTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.cfg.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		session.mu.Lock()
		idle := session.lastSeen.Before(cutoff)
		session.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

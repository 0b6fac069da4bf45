// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package interceptor

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AleutianAI/AleutianForms/pkg/extensions"
	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/i18n"
	"github.com/AleutianAI/AleutianForms/services/pipeline/observability"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// =============================================================================
// Session Token Guard
// =============================================================================

// SessionToken rejects requests whose session token does not match the one
// issued to the user's context.
//
// # Description
//
// A request passes when its token equals the expected one, or when it
// carries no token and uses a safe method (a plain page load). On mismatch
// a primary request fails with ErrSessionToken (or ErrSessionExpired when
// the context has no token yet), which the driver turns into the fatal
// error page; AJAX and content requests get a 400 with a localized message.
//
// PreparePaint issues the token on first render.
type SessionToken struct {
	Base
	class   transport.Class
	logger  *slog.Logger
	metrics *observability.PipelineMetrics
	audit   extensions.AuditLogger
}

// NewSessionToken creates the guard for a request of class.
func NewSessionToken(class transport.Class, logger *slog.Logger, metrics *observability.PipelineMetrics, audit extensions.AuditLogger) *SessionToken {
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionToken{class: class, logger: logger, metrics: metrics, audit: audit}
}

// Kind implements Interceptor.
func (s *SessionToken) Kind() Kind { return KindSessionToken }

// ServiceRequest verifies the token before forwarding.
func (s *SessionToken) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	expected := uic.Environment().SessionToken()
	got := req.Parameter(transport.ParamSessionToken)

	if got == expected || (got == "" && transport.IsSafeMethod(req.Method())) {
		return s.Base.ServiceRequest(uic, req)
	}

	expired := expected == ""
	s.logger.Error("Session token mismatch",
		"class", s.class.String(),
		"session_id", ui.SessionID(uic),
		"token_present", got != "",
		"context_has_token", !expired,
	)
	s.metrics.RecordTokenRejection(s.class.String(), expired)
	_ = s.audit.Log(req.Context(), extensions.AuditEvent{
		EventType:    extensions.EventSessionTokenMismatch,
		SessionID:    ui.SessionID(uic),
		RequestClass: s.class.String(),
		Outcome:      "rejected",
		Metadata:     map[string]any{"token_present": got != "", "expired": expired},
	})

	if s.class == transport.ClassPrimary {
		if expired {
			return escape.Fail(escape.ErrSessionExpired)
		}
		return escape.Fail(escape.ErrSessionToken)
	}
	key := i18n.SessionTokenInvalid
	if expired {
		key = i18n.SessionExpired
	}
	return escape.Code(http.StatusBadRequest, i18n.Message(uic.Locale(), key))
}

// PreparePaint issues the token if the context has none.
func (s *SessionToken) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	uic.Environment().EnsureSessionToken()
	return s.Base.PreparePaint(uic, req)
}

// =============================================================================
// Step Guard
// =============================================================================

// StepPolicy selects how a stale step is recovered.
type StepPolicy int

const (
	// StepWarp sends the client back to the current state and notifies the
	// StepErrorHandler.
	StepWarp StepPolicy = iota

	// StepRedirect sends the client to a configured error URL.
	StepRedirect
)

// String returns "warp" or "redirect".
func (p StepPolicy) String() string {
	if p == StepRedirect {
		return "redirect"
	}
	return "warp"
}

// ParseStepPolicy parses "warp" or "redirect".
func ParseStepPolicy(s string) (StepPolicy, error) {
	switch s {
	case "", "warp":
		return StepWarp, nil
	case "redirect":
		return StepRedirect, nil
	default:
		return StepWarp, fmt.Errorf("unknown step policy %q", s)
	}
}

// StepErrorFunc reacts to a warped stale step inside the user's context,
// for example by setting a notice the next render shows.
type StepErrorFunc func(uic ui.Context, stepErr extensions.StepError)

// Step rejects requests made from a stale view of the UI and advances the
// step counter once per render.
//
// # Description
//
// The expected step is the one painted by the last render. A missing step
// is accepted on safe-method primary requests (reload, navigation) and on
// content requests (cacheable content URLs); otherwise the request is
// stale.
//
// Recovery by class:
//
//   - primary and AJAX: redirect to the error URL under StepRedirect, or to
//     the current post URL under StepWarp after calling the handler and
//     the OnWarp function. AJAX
//     redirects are delivered inside the ajaxresponse envelope.
//   - content: a 400 error code. The handler is not called.
type Step struct {
	Base
	class    transport.Class
	policy   StepPolicy
	errorURL string
	handler  extensions.StepErrorHandler
	onWarp   StepErrorFunc
	logger   *slog.Logger
	metrics  *observability.PipelineMetrics
	audit    extensions.AuditLogger
}

// StepConfig configures the step guard.
type StepConfig struct {
	Policy   StepPolicy
	ErrorURL string
	Handler  extensions.StepErrorHandler
	OnWarp   StepErrorFunc
	Logger   *slog.Logger
	Metrics  *observability.PipelineMetrics
	Audit    extensions.AuditLogger
}

// NewStep creates the guard for a request of class.
func NewStep(class transport.Class, cfg StepConfig) *Step {
	if cfg.Handler == nil {
		cfg.Handler = &extensions.NopStepErrorHandler{}
	}
	if cfg.Audit == nil {
		cfg.Audit = &extensions.NopAuditLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Step{
		class:    class,
		policy:   cfg.Policy,
		errorURL: cfg.ErrorURL,
		handler:  cfg.Handler,
		onWarp:   cfg.OnWarp,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		audit:    cfg.Audit,
	}
}

// Kind implements Interceptor.
func (s *Step) Kind() Kind { return KindStep }

// ServiceRequest verifies the step before forwarding.
func (s *Step) ServiceRequest(uic ui.Context, req transport.Request) escape.Outcome {
	expected := uic.Environment().Step()

	if !req.HasParameter(transport.ParamStep) {
		if s.class == transport.ClassContent ||
			(s.class == transport.ClassPrimary && transport.IsSafeMethod(req.Method())) {
			return s.Base.ServiceRequest(uic, req)
		}
		return s.stale(uic, req, expected, -1)
	}

	got, err := strconv.Atoi(req.Parameter(transport.ParamStep))
	if err != nil {
		got = -1
	}
	if err == nil && got == expected {
		return s.Base.ServiceRequest(uic, req)
	}
	return s.stale(uic, req, expected, got)
}

func (s *Step) stale(uic ui.Context, req transport.Request, expected, got int) escape.Outcome {
	recovery := observability.RecoveryWarp
	switch {
	case s.class == transport.ClassContent:
		recovery = observability.RecoveryReject
	case s.policy == StepRedirect && s.errorURL != "":
		recovery = observability.RecoveryRedirect
	}

	s.logger.Warn("Wrong step detected",
		"class", s.class.String(),
		"session_id", ui.SessionID(uic),
		"expected", expected,
		"got", got,
		"recovery", string(recovery),
	)
	s.metrics.RecordStepError(s.class.String(), recovery)
	_ = s.audit.Log(req.Context(), extensions.AuditEvent{
		EventType:    extensions.EventStepMismatch,
		SessionID:    ui.SessionID(uic),
		RequestClass: s.class.String(),
		Outcome:      string(recovery),
		Metadata:     map[string]any{"expected": expected, "got": got},
	})

	switch recovery {
	case observability.RecoveryReject:
		return escape.Code(http.StatusBadRequest, i18n.Message(uic.Locale(), i18n.StepStale))
	case observability.RecoveryRedirect:
		return escape.RedirectTo(s.errorURL)
	default:
		stepErr := extensions.StepError{
			SessionID:    ui.SessionID(uic),
			Expected:     expected,
			Got:          got,
			RequestClass: s.class.String(),
		}
		s.handler.HandleStepError(req.Context(), stepErr)
		if s.onWarp != nil {
			s.onWarp(uic, stepErr)
		}
		return escape.RedirectTo(uic.Environment().PostURL)
	}
}

// PreparePaint advances the step once the tree is prepared. It runs on the
// normal render and on the error render of a failed action alike; an
// escaped request never reaches it. Content requests leave the step alone
// so that loading an image or opening a window does not invalidate the
// page that asked for it.
func (s *Step) PreparePaint(uic ui.Context, req transport.Request) escape.Outcome {
	out := s.Base.PreparePaint(uic, req)
	if s.class != transport.ClassContent {
		uic.Environment().IncrementStep()
	}
	return out
}

var (
	_ Interceptor = (*SessionToken)(nil)
	_ Interceptor = (*Step)(nil)
)

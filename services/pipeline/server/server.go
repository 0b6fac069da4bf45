// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server assembles the forms server: session management, the
// interceptor chains, the gin router, tracing and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianForms/pkg/extensions"
	"github.com/AleutianAI/AleutianForms/services/pipeline/config"
	"github.com/AleutianAI/AleutianForms/services/pipeline/demo"
	"github.com/AleutianAI/AleutianForms/services/pipeline/driver"
	"github.com/AleutianAI/AleutianForms/services/pipeline/interceptor"
	"github.com/AleutianAI/AleutianForms/services/pipeline/observability"
	"github.com/AleutianAI/AleutianForms/services/pipeline/rules"
	"github.com/AleutianAI/AleutianForms/services/pipeline/session"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport/httpgin"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
)

// =============================================================================
// Service Interface
// =============================================================================

// Service is a running forms server.
//
// # Description
//
// A Service serves one application under the configured path. It owns the
// user contexts of that application, the snapshot store behind them and
// the background cleaner that expires idle ones.
//
// # Thread Safety
//
// Run is called once. Router and Manager are safe to call concurrently.
type Service interface {
	// Run serves HTTP until ctx is cancelled or the listener fails, then
	// shuts down gracefully and releases every resource.
	Run(ctx context.Context) error

	// Router returns the gin engine, for tests and embedding.
	Router() *gin.Engine

	// Manager returns the user context manager.
	Manager() *session.Manager

	// Close releases resources without running. Run calls it itself.
	Close() error
}

// Config holds everything New needs beyond the file configuration.
type Config struct {
	// Settings is the loaded configuration file.
	Settings config.Config

	// Root is the application tree. Default: the demo order form.
	Root ui.Component

	// OnStepError runs in the user's context when a stale step is warped.
	// Default: the demo's notice when Root is nil, otherwise none.
	OnStepError interceptor.StepErrorFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Registry receives the pipeline metrics. Default: a fresh registry
	// with Go and process collectors.
	Registry *prometheus.Registry

	// Tracer overrides the tracer from the global provider.
	Tracer trace.Tracer
}

type service struct {
	cfg     config.Config
	opts    extensions.ServiceOptions
	logger  *slog.Logger
	router  *gin.Engine
	reg     *prometheus.Registry
	metrics *observability.PipelineMetrics

	store    session.Store
	manager  *session.Manager

	onStepError interceptor.StepErrorFunc
	sessions *httpgin.Sessions
	cleaner  *session.Cleaner
	driver   driver.Config

	tracerCleanup func(context.Context)
}

// New builds a service.
//
// # Description
//
// Initializes, in order: tracing (when an OTLP endpoint is configured),
// metrics, the snapshot store, the context manager, the subordinate rules
// and the router. Any failure releases what was already opened.
//
// # Inputs
//
//   - cfg: Settings plus optional overrides.
//   - opts: Extension hooks. Nil uses extensions.DefaultOptions().
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if a component could not be initialized.
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	s := &service{
		cfg:    cfg.Settings,
		logger: cfg.Logger,
		reg:    cfg.Registry,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if opts != nil {
		s.opts = opts.Normalize()
	} else {
		s.opts = extensions.DefaultOptions()
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.initMetrics()

	if err := s.initStore(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	root := cfg.Root
	ruleSet := s.cfg.Rules
	s.onStepError = cfg.OnStepError
	if root == nil {
		app := demo.New(s.cfg.App.Title)
		root = app.Root
		if len(ruleSet) == 0 {
			ruleSet = demo.Rules()
		}
		if s.onStepError == nil {
			s.onStepError = app.OnStepError
		}
	}

	s.manager, err = session.NewManager(session.Config{
		AppID:   s.cfg.App.ID,
		PostURL: s.cfg.App.Path,
		Root:    root,
		TTL:     s.cfg.Session.TTL,
		Store:   s.store,
		Logger:  s.logger,
		Metrics: s.metrics,
		Audit:   s.opts.AuditLogger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	var engine interceptor.RuleEngine
	if len(ruleSet) > 0 {
		compiled, err := rules.NewExprEngine(ruleSet, s.logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to compile rules: %w", err)
		}
		engine = compiled
	}

	if err := s.initDriver(engine, cfg.Tracer); err != nil {
		s.Close()
		return nil, err
	}

	s.sessions = httpgin.NewSessions(httpgin.SessionsConfig{
		CookieName: s.cfg.Session.CookieName,
		Secure:     s.cfg.Session.SecureCookie,
		TTL:        s.cfg.Session.TTL,
	})
	s.cleaner = session.NewCleaner(session.Expirers{s.manager, s.sessions}, s.cfg.Session.CleanInterval, s.logger)

	s.initRouter()
	return s, nil
}

// =============================================================================
// Lifecycle
// =============================================================================

func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.cfg.Session.TTL > 0 {
		if err := s.cleaner.Start(gctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		s.logger.Info("Starting forms server",
			"addr", s.cfg.Server.Addr,
			"app", s.cfg.App.ID,
			"path", s.cfg.App.Path,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down forms server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Manager() *session.Manager { return s.manager }

func (s *service) Close() error {
	var errs []error
	if s.cleaner != nil {
		s.cleaner.Stop()
	}
	if s.opts.AuditLogger != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.opts.AuditLogger.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush audit log: %w", err))
		}
		cancel()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session store: %w", err))
		}
		s.store = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
	return errors.Join(errs...)
}

// =============================================================================
// Initialization
// =============================================================================

func (s *service) initMetrics() {
	if s.reg == nil {
		s.reg = prometheus.NewRegistry()
		s.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	s.metrics = observability.NewPipelineMetrics(s.reg)
}

func (s *service) initStore() error {
	switch s.cfg.Session.Store {
	case "badger":
		bcfg := session.DefaultBadgerConfig(s.cfg.Session.Path)
		bcfg.Logger = s.logger
		store, err := session.OpenBadgerStore(bcfg)
		if err != nil {
			return err
		}
		s.store = store
	default:
		s.store = session.NewMemoryStore()
	}
	return nil
}

func (s *service) initDriver(engine interceptor.RuleEngine, tracer trace.Tracer) error {
	policy, err := s.cfg.StepPolicy()
	if err != nil {
		return err
	}
	if tracer == nil {
		tracer = otel.Tracer(driver.TracerName)
	}

	opts := interceptor.Options{
		Logger:             s.logger,
		Metrics:            s.metrics,
		Hooks:              s.opts,
		StepPolicy:         policy,
		StepErrorURL:       s.cfg.Pipeline.StepErrorURL,
		OnStepError:        s.onStepError,
		Developer:          s.cfg.App.Developer,
		OnFatal:            s.onFatal,
		Rules:              engine,
		Validate:           s.cfg.Pipeline.Validate,
		CollapseWhitespace: s.cfg.Pipeline.CollapseWhitespace,
		Debug:              s.cfg.Pipeline.Debug,
	}
	s.driver = driver.Config{
		Provider: s.manager,
		Chains: func(class transport.Class) *interceptor.Chain {
			return interceptor.Build(class, opts)
		},
		Developer: s.cfg.App.Developer,
		Logger:    s.logger,
		Metrics:   s.metrics,
		Tracer:    tracer,
	}
	return nil
}

// onFatal discards the context of a user whose page failed to render, so
// the next request starts from a fresh state.
func (s *service) onFatal(req transport.Request, uic ui.Context, err error) {
	id := ui.SessionID(uic)
	if id == "" {
		return
	}
	ctx := context.Background()
	if req != nil {
		ctx = req.Context()
		req.SetSessionAttribute(session.AttrContextID, nil)
	}
	s.logger.Warn("Invalidating user context after render failure", "context_id", id, "error", err)
	s.manager.Invalidate(ctx, id, session.ReasonFatal)
}

func (s *service) initRouter() {
	gin.SetMode(gin.ReleaseMode)
	if s.cfg.App.Developer {
		gin.SetMode(gin.DebugMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(s.cfg.Telemetry.ServiceName))

	handler := httpgin.Handler(s.driver, s.sessions)
	s.router.GET(s.cfg.App.Path, handler)
	s.router.POST(s.cfg.App.Path, handler)

	s.router.GET("/healthz", s.health)
	if path := s.cfg.Telemetry.MetricsPath; path != "" {
		s.router.GET(path, gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{Registry: s.reg})))
	}
}

func (s *service) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"app":      s.cfg.App.ID,
		"contexts": s.manager.Len(),
		"sessions": s.sessions.Len(),
	})
}

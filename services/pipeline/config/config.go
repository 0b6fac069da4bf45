// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the forms server configuration.
//
// # File Format
//
//	server:
//	  addr: ":8090"
//	  shutdown_timeout: 10s
//	app:
//	  id: demo
//	  path: /app
//	pipeline:
//	  step_policy: warp
//	session:
//	  ttl: 30m
//	  store: badger
//	  path: /var/lib/aleutian/forms
//	rules:
//	  - when: values.country == "DE"
//	    action: show
//	    targets: [vat]
//
// Values missing from the file keep the defaults of Default. A few
// settings can be overridden from the environment (see ApplyEnv).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianForms/services/pipeline/interceptor"
	"github.com/AleutianAI/AleutianForms/services/pipeline/rules"
)

// =============================================================================
// Types
// =============================================================================

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	App       AppConfig       `yaml:"app"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Session   SessionConfig   `yaml:"session"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Rules     []rules.Rule    `yaml:"rules,omitempty" validate:"dive"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// AppConfig describes the application served.
type AppConfig struct {
	ID    string `yaml:"id" validate:"required,alphanum"`
	Title string `yaml:"title"`

	// Path is where the application is mounted; forms post back to it.
	Path string `yaml:"path" validate:"required,startswith=/"`

	// Developer exposes error detail and panic stacks to clients.
	Developer bool `yaml:"developer"`
}

// PipelineConfig tunes the interceptor chains.
type PipelineConfig struct {
	// StepPolicy is "warp" or "redirect".
	StepPolicy string `yaml:"step_policy" validate:"oneof=warp redirect"`

	// StepErrorURL is where the redirect policy sends stale submissions.
	StepErrorURL string `yaml:"step_error_url" validate:"required_if=StepPolicy redirect"`

	Validate           bool `yaml:"validate_xml"`
	CollapseWhitespace bool `yaml:"collapse_whitespace"`
	Debug              bool `yaml:"debug"`
}

// SessionConfig configures user context lifetime and persistence.
type SessionConfig struct {
	// TTL is how long an idle context lives. Zero keeps contexts forever.
	TTL time.Duration `yaml:"ttl" validate:"gte=0"`

	// CleanInterval is how often idle contexts are swept.
	CleanInterval time.Duration `yaml:"clean_interval" validate:"gte=0"`

	// Store is "memory" or "badger".
	Store string `yaml:"store" validate:"oneof=memory badger"`

	// Path is the badger directory.
	Path string `yaml:"path" validate:"required_if=Store badger"`

	// CookieName names the cookie carrying the session id.
	CookieName string `yaml:"cookie_name" validate:"required"`

	// SecureCookie marks the cookie Secure.
	SecureCookie bool `yaml:"secure_cookie"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" validate:"required"`

	// OTLPEndpoint is the gRPC collector address. Empty disables trace
	// export.
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// MetricsPath serves Prometheus metrics. Empty disables the endpoint.
	MetricsPath string `yaml:"metrics_path" validate:"omitempty,startswith=/"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// =============================================================================
// Defaults
// =============================================================================

// Default returns a configuration that runs the demo application locally.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		App: AppConfig{
			ID:    "demo",
			Title: "Aleutian Forms",
			Path:  "/app",
		},
		Pipeline: PipelineConfig{
			StepPolicy: interceptor.StepWarp.String(),
		},
		Session: SessionConfig{
			TTL:           30 * time.Minute,
			CleanInterval: time.Minute,
			Store:         "memory",
			CookieName:    "aleutian_forms_session",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "aleutian-forms",
			Insecure:    true,
			MetricsPath: "/metrics",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

var validate = validator.New()

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
//
// # Outputs
//
//   - Config: The validated configuration.
//   - error: Non-nil if the file cannot be read or parsed, or the result
//     is invalid.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Write saves cfg as YAML, creating parent directories.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Environment variables read by ApplyEnv.
const (
	EnvAddr         = "FORMS_ADDR"
	EnvDeveloper    = "FORMS_DEVELOPER"
	EnvLogLevel     = "FORMS_LOG_LEVEL"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvDeveloper); ok {
		c.App.Developer = v == "1" || v == "true"
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvOTLPEndpoint); ok {
		c.Telemetry.OTLPEndpoint = v
	}
}

// Validate checks every field constraint and that the step policy and
// rules compile.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: failed %q constraint", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	if _, err := c.StepPolicy(); err != nil {
		return err
	}
	if len(c.Rules) > 0 {
		if _, err := rules.NewExprEngine(c.Rules, nil); err != nil {
			return fmt.Errorf("rules: %w", err)
		}
	}
	return nil
}

// StepPolicy returns the parsed step policy.
func (c Config) StepPolicy() (interceptor.StepPolicy, error) {
	return interceptor.ParseStepPolicy(c.Pipeline.StepPolicy)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Expirer removes idle contexts. *Manager implements it.
type Expirer interface {
	Expire(ctx context.Context) int
}

// Expirers sweeps several targets in order and sums their counts.
type Expirers []Expirer

func (e Expirers) Expire(ctx context.Context) int {
	n := 0
	for _, target := range e {
		n += target.Expire(ctx)
	}
	return n
}

// ErrCleanerRunning is returned by Start when the cleaner already runs.
var ErrCleanerRunning = errors.New("context cleaner is already running")

// Cleaner periodically expires idle user contexts.
//
// # Description
//
// Cleaner runs Expire on a ticker until Stop is called or the context
// passed to Start is cancelled. It can be restarted after Stop.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Cleaner struct {
	target   Expirer
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// NewCleaner creates a cleaner sweeping target every interval. A
// non-positive interval defaults to one minute.
func NewCleaner(target Expirer, interval time.Duration, logger *slog.Logger) *Cleaner {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{target: target, interval: interval, logger: logger}
}

// Start begins sweeping in a background goroutine.
//
// # Outputs
//
//   - error: ErrCleanerRunning if Start was already called without Stop.
func (c *Cleaner) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrCleanerRunning
	}
	c.running = true
	c.done = make(chan struct{})
	c.stopped = make(chan struct{})

	c.logger.Info("context cleaner starting", "interval", c.interval.String())
	go c.runLoop(ctx, c.done, c.stopped)
	return nil
}

// Stop ends sweeping and waits for an in-progress sweep to finish. Calling
// it on a stopped cleaner does nothing.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.done)
	stopped := c.stopped
	c.mu.Unlock()

	<-stopped
	c.logger.Info("context cleaner stopped")
}

// RunNow sweeps immediately and returns the number of expired contexts.
func (c *Cleaner) RunNow(ctx context.Context) int {
	return c.target.Expire(ctx)
}

func (c *Cleaner) runLoop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			c.mu.Lock()
			if c.done == done {
				c.running = false
			}
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.RunNow(ctx)
		}
	}
}

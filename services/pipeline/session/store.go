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
	"sync"
	"time"
)

// ErrNotFound is returned by Store.Load when no live snapshot exists.
var ErrNotFound = errors.New("session snapshot not found")

// Store persists context snapshots between processes.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the snapshot saved for id, or ErrNotFound.
	Load(ctx context.Context, id string) (Snapshot, error)

	// Save stores s under s.ContextID. It expires after ttl; zero keeps it
	// until deleted.
	Save(ctx context.Context, s Snapshot, ttl time.Duration) error

	// Delete removes the snapshot for id. Deleting a missing id is not an
	// error.
	Delete(ctx context.Context, id string) error

	// Close releases the store's resources.
	Close() error
}

// MemoryStore is a Store held in process memory. It is used by tests and by
// single-process deployments that accept losing contexts on restart.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	data    []byte
	expires time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memoryItem{}, now: time.Now}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	item, ok := s.items[id]
	if ok && !item.expires.IsZero() && !s.now().Before(item.expires) {
		delete(s.items, id)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return decodeSnapshot(item.data)
}

func (s *MemoryStore) Save(ctx context.Context, snap Snapshot, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	item := memoryItem{data: data}
	if ttl > 0 {
		item.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[snap.ContextID] = item
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored snapshots, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)

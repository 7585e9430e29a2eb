// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/promptlab/internal/errs"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the persistence collaborator: a get/set pair over opaque
// serialized snapshots, plus listing and deletion.
type Store interface {
	// Get returns the snapshot for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the snapshot for key.
	Set(ctx context.Context, key string, data []byte) error
	// Delete removes key, or returns ErrNotFound.
	Delete(ctx context.Context, key string) error
	// Keys lists stored keys with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ErrNotFound is returned when a key has no snapshot.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = errs.NotFound("", "key", "snapshot not found")

func notFound(op, key string) error {
	return &errs.Error{Kind: errs.KindNotFound, Op: op + " " + key, Field: "key", Message: ErrNotFound.Message}
}

// ValidateKey rejects keys that cannot be used verbatim by every backend.
func ValidateKey(key string) error {
	if key == "" {
		return errs.Validation("storage", "key", "must not be empty")
	}
	if key == "." || key == ".." || len(key) > 200 {
		return errs.Validation("storage", "key", fmt.Sprintf("invalid key %q", key))
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return errs.Validation("storage", "key", fmt.Sprintf("invalid character %q in key %q", r, key))
		}
	}
	return nil
}

// =============================================================================
// JSON HELPERS
// =============================================================================

// GetJSON loads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// =============================================================================
// OPEN
// =============================================================================

// Options selects and configures a backend.
type Options struct {
	// Driver is "file", "sqlite" or "memory".
	Driver string
	// Dir is the base directory of the file store and the default
	// location of the SQLite database.
	Dir string
	// DSN overrides the SQLite database path.
	DSN string
}

// Open creates the store named by opts.Driver.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", "file":
		return NewFileStore(opts.Dir)
	case "sqlite":
		dsn := opts.DSN
		if dsn == "" {
			dsn = filepath.Join(opts.Dir, "promptlab.db")
		}
		return NewSQLiteStore(dsn)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errs.Validation("open storage", "driver", fmt.Sprintf("unknown driver %q", opts.Driver))
	}
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore keeps snapshots in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, notFound("get", key)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return notFound("delete", key)
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Close() error { return nil }

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/promptlab/internal/errs"
)

// backends returns a fresh instance of every store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	file, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Store{
		"file":   file,
		"sqlite": db,
		"memory": NewMemoryStore(),
	}
}

// =============================================================================
// STORE CONTRACT TESTS
// =============================================================================

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "user-files-user_123", []byte(`{"a":1}`)))
			got, err := store.Get(ctx, "user-files-user_123")
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, store.Set(ctx, "user-files-user_123", []byte(`{"a":2}`)))
			got, err = store.Get(ctx, "user-files-user_123")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(got), "Set replaces")
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound), "Get: %v", err)
			assert.True(t, errs.IsNotFound(err))

			err = store.Delete(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound), "Delete: %v", err)
		})
	}
}

func TestStore_DeleteAndKeys(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"session-b", "session-a", "user-files-x"} {
				require.NoError(t, store.Set(ctx, key, []byte("{}")))
			}

			keys, err := store.Keys(ctx, "session-")
			require.NoError(t, err)
			assert.Equal(t, []string{"session-a", "session-b"}, keys)

			require.NoError(t, store.Delete(ctx, "session-a"))
			all, err := store.Keys(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"session-b", "user-files-x"}, all)
		})
	}
}

func TestStore_RejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "..", "a/b", "a b", "ключ"} {
				err := store.Set(ctx, key, []byte("x"))
				assert.True(t, errs.IsValidation(err), "key %q: %v", key, err)
			}
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	type folder struct {
		Name string `json:"name"`
	}

	require.NoError(t, SetJSON(ctx, store, "f", []folder{{Name: "Prompts"}}))
	var got []folder
	require.NoError(t, GetJSON(ctx, store, "f", &got))
	assert.Equal(t, []folder{{Name: "Prompts"}}, got)

	require.NoError(t, store.Set(ctx, "bad", []byte("{")))
	assert.Error(t, GetJSON(ctx, store, "bad", &got))
}

func TestMemoryStore_CopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", data))
	data[0] = 'z'

	got, _ := store.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
}

// =============================================================================
// BACKEND-SPECIFIC TESTS
// =============================================================================

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0755))
	require.NoError(t, store.Set(context.Background(), "k", []byte("{}")))

	keys, err := store.Keys(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "p.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	assert.Equal(t, path, reopened.Path())
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	for _, driver := range []string{"", "file", "sqlite", "memory"} {
		store, err := Open(Options{Driver: driver, Dir: dir})
		require.NoError(t, err, driver)
		require.NoError(t, store.Close())
	}
	_, err := Open(Options{Driver: "redis"})
	assert.True(t, errs.IsValidation(err))
}

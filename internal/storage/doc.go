// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists opaque snapshots under string keys.
//
// The workspace and session layers never see the medium: they Get and Set
// byte slices. Two backends are provided.
//
// # Key Types
//
//   - Store: get/set/delete/list over keyed snapshots
//   - FileStore: one JSON file per key under a base directory
//   - SQLiteStore: a single snapshots table in a SQLite database
//   - MemoryStore: map-backed store for tests and dry runs
//
// # Usage
//
//	store, err := storage.Open(storage.Options{Driver: "file", Dir: dir})
//	err = store.Set(ctx, "user-files-user_123", data)
//	data, err := store.Get(ctx, "user-files-user_123")
//
// # Keys
//
// Keys are limited to ASCII letters, digits, '-', '_' and '.', so that every
// backend can use them verbatim as file names.
package storage

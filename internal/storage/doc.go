// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the key-value persistence used by glance.
//
// Everything the core persists goes through the Store interface: settings,
// the usage aggregate, conversation history and feedback. Three backends are
// available:
//
//   - MemoryStore: process-local map, used in tests and with --store memory
//   - FileStore: one JSON file per key, written atomically
//   - SQLiteStore: a single kv table in a SQLite database (modernc.org/sqlite)
//
// # Key Types
//
//   - Store: backend interface (Get, Put, Delete, Keys, Close)
//   - HistoryStore: the 50 most recent conversation threads
//   - FeedbackLog: append-only answer feedback
//
// # Usage
//
//	store, err := storage.Open(storage.KindSQLite, "~/.glance/glance.db")
//	history := storage.NewHistoryStore(store)
//	err = history.Save(ctx, snapshot)
//
// # Storage Location
//
// By default data lives under ~/.glance/.
package storage

// Package store provides persistence for kisanmitra-gateway.
//
// Two SQLite databases are used, both through modernc.org/sqlite with WAL
// journaling, foreign keys and a busy timeout set in the connection string:
//
//   - SQLiteStore holds users, feedback, notifications, crop recommendations,
//     yield predictions, crop guidance and the admin audit log.
//   - SQLiteChatStore holds the append-only chat_history log and the
//     chat_summaries table with one rolling summary per user.
//
// Timestamps are stored as RFC3339 text in UTC. Chat ordering relies on the
// autoincrement row id, not on timestamps.
//
// Every single-row mutation is one statement, and a chat turn (human message
// plus assistant reply) is written in one transaction. Chat write failures
// wrap ErrPersistence.
//
// MockStore is an in-memory Store for tests that do not need SQLite.
package store

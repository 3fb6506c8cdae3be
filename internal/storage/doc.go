// Package storage persists fixture subscriptions and their per-kind
// notification flags.
//
// Drivers:
//   - "file": snapshot plus append-only journal, no external dependencies
//   - "sqlite": modernc SQLite file in WAL mode
//   - "postgres": PostgreSQL via lib/pq
//
// Flags only ever move from false to true. Re-subscribing replaces the row
// and clears them.
package storage

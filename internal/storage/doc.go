// Package storage persists subscription state and the admin audit log.
//
// Drivers:
//   - "file": one indented JSON document rewritten wholesale (temp file +
//     rename) plus an append-only <prefix>.audit.jsonl
//   - "sqlite": modernc SQLite with goose migrations
//
// Both drivers store the whole user map on every Save.
package storage

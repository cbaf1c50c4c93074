// Package storage is the document store behind mindwatch.
//
// Every collection (minds, triggers, history) is one opaque JSON document
// addressed by key; callers do whole-document read-modify-write. Drivers:
//   - "memory": process-local map (tests, dry runs)
//   - "file": one JSON file per key, replaced atomically
//   - "sqlite": documents table in a SQLite file (modernc, no cgo)
//   - "redis": plain GET/SET
//   - "postgres": documents table via pgx
package storage

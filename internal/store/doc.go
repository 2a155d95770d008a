// Package store implements the durable document store for outreachd.
//
// It persists client context documents, the context update audit trail,
// performance metrics, cross-population patterns, and per-project pipeline
// step documents in a single SQLite database. The store is the single
// source of truth; the connection pool is capped at one connection, so
// conflicting writes to the same context document serialize and version
// numbers never collide.
package store

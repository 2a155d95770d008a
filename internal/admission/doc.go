// Package admission decides whether a proposed context update is applied
// immediately or queued for human approval.
//
// Every submitted update is persisted to the audit trail regardless of
// outcome. Auto-applied and approved updates flow through the same merge
// path: shallow key merge, version bump, cache invalidation, and a
// context.updated event.
package admission

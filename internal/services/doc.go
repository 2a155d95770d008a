// Package services provides centralized service registry for outreachd.
//
// Registry pattern for accessing all core services (store, cache,
// context store, admission, staleness, pipeline, event bus). Use
// NewRegistry() to create a registry with service instances, then
// accessor methods to retrieve individual services. Nothing in outreachd
// reaches for ambient globals; cmd/outreachd constructs one registry at
// startup and passes it down.
package services

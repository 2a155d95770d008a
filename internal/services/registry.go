package services

import (
	"github.com/fyrsmithlabs/outreachd/internal/admission"
	"github.com/fyrsmithlabs/outreachd/internal/cache"
	"github.com/fyrsmithlabs/outreachd/internal/contextstore"
	"github.com/fyrsmithlabs/outreachd/internal/events"
	"github.com/fyrsmithlabs/outreachd/internal/pipeline"
	"github.com/fyrsmithlabs/outreachd/internal/staleness"
	"github.com/fyrsmithlabs/outreachd/internal/store"
)

// Registry provides access to all outreachd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Store() *store.Store
	Cache() cache.Cache
	Contexts() *contextstore.Service
	Admission() *admission.Engine
	Staleness() *staleness.Engine
	Pipeline() *pipeline.Runner
	Bus() *events.Bus
}

// Options configures the registry with service instances.
type Options struct {
	Store     *store.Store
	Cache     cache.Cache
	Contexts  *contextstore.Service
	Admission *admission.Engine
	Staleness *staleness.Engine
	Pipeline  *pipeline.Runner
	Bus       *events.Bus
}

// registry is the concrete implementation of Registry.
type registry struct {
	store     *store.Store
	cache     cache.Cache
	contexts  *contextstore.Service
	admission *admission.Engine
	staleness *staleness.Engine
	pipeline  *pipeline.Runner
	bus       *events.Bus
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		store:     opts.Store,
		cache:     opts.Cache,
		contexts:  opts.Contexts,
		admission: opts.Admission,
		staleness: opts.Staleness,
		pipeline:  opts.Pipeline,
		bus:       opts.Bus,
	}
}

func (r *registry) Store() *store.Store             { return r.store }
func (r *registry) Cache() cache.Cache              { return r.cache }
func (r *registry) Contexts() *contextstore.Service { return r.contexts }
func (r *registry) Admission() *admission.Engine    { return r.admission }
func (r *registry) Staleness() *staleness.Engine    { return r.staleness }
func (r *registry) Pipeline() *pipeline.Runner      { return r.pipeline }
func (r *registry) Bus() *events.Bus                { return r.bus }

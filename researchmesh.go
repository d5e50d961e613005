// Package researchmesh provides a high-level façade over the message fabric,
// agent registry and session manager for running multi-agent research
// workflows. Most applications interact with this package by:
//  1. Creating a Mesh via New() with a completion engine and search provider
//  2. Creating and starting research sessions through Sessions()
//  3. Observing progress via Sessions().Subscribe and reading syntheses
//
// All defaults are safe for local development and testing; production
// deployments typically supply a SQLite-backed store and a structured logger.
package researchmesh

import (
	"github.com/hupe1980/researchmesh/fabric"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/registry"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/session"
)

// Options configures the Mesh instance.
type Options struct {
	// Store persists sessions, syntheses and feedback. Defaults to an
	// in-memory store.
	Store session.Store
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the message fabric, the agent
// registry and the session manager.
type Mesh struct {
	fab      *fabric.Fabric
	reg      *registry.Registry
	sessions *session.Manager
	store    session.Store
}

// New creates a new Mesh wired to the given completion engine and search
// provider. Any unset service is initialized with an in-memory
// implementation.
func New(engine model.Engine, provider search.Provider, optFns ...func(o *Options)) *Mesh {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	logger := logging.OrNoOp(opts.Logger)

	fab := fabric.New(logger)
	reg := registry.New(func(o *registry.Options) {
		o.Logger = logger
	})
	sessions := session.NewManager(fab, reg, engine, provider, func(o *session.ManagerOptions) {
		o.Store = opts.Store
		o.Logger = logger
	})

	return &Mesh{
		fab:      fab,
		reg:      reg,
		sessions: sessions,
		store:    opts.Store,
	}
}

// Sessions returns the session manager.
func (m *Mesh) Sessions() *session.Manager { return m.sessions }

// Registry returns the agent registry.
func (m *Mesh) Registry() *registry.Registry { return m.reg }

// Fabric returns the message fabric.
func (m *Mesh) Fabric() *fabric.Fabric { return m.fab }

// Shutdown stops all running agents and closes the store when it is
// closable.
func (m *Mesh) Shutdown() error {
	m.reg.Clear()
	if closer, ok := m.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

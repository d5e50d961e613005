// Package registry tracks the live agents of all active sessions. It is the
// authoritative source for agent state snapshots and relays agent lifecycle
// changes as typed events.
package registry

import (
	"sync"

	"github.com/hupe1980/researchmesh/agent"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
)

// Stats summarizes the registry contents.
type Stats struct {
	TotalAgents int                      `json:"total_agents"`
	ByRole      map[core.AgentRole]int   `json:"by_role"`
	ByStatus    map[core.AgentStatus]int `json:"by_status"`
	Sessions    int                      `json:"sessions"`
}

// Options configures a Registry.
type Options struct {
	// Logger receives diagnostic output.
	Logger logging.Logger
}

// Registry is a goroutine-safe collection of live agents keyed by ID and
// grouped by session. Adding an agent starts it and wires its status,
// progress and error changes into the registry's event stream; removing an
// agent stops it.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]agent.Agent
	sessions map[string]map[string]agent.Agent
	eventFns map[int]func(core.Event)
	nextID   int
	logger   logging.Logger
}

// New constructs an empty registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		agents:   make(map[string]agent.Agent),
		sessions: make(map[string]map[string]agent.Agent),
		eventFns: make(map[int]func(core.Event)),
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Subscribe registers an event callback and returns an unsubscribe closure.
// Callbacks run synchronously on the goroutine causing the change and must
// not block.
func (r *Registry) Subscribe(fn func(core.Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.eventFns[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.eventFns, id)
	}
}

func (r *Registry) emit(e core.Event) {
	r.mu.RLock()
	fns := make([]func(core.Event), 0, len(r.eventFns))
	for _, fn := range r.eventFns {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// AddAgent registers and starts an agent. Registering an ID twice is an
// error; if the agent fails to start it is not registered.
func (r *Registry) AddAgent(a agent.Agent) error {
	r.mu.Lock()
	if _, exists := r.agents[a.ID()]; exists {
		r.mu.Unlock()
		return &core.StateError{Op: "add agent", Reason: "agent " + a.ID() + " already registered"}
	}
	r.agents[a.ID()] = a
	set, ok := r.sessions[a.SessionID()]
	if !ok {
		set = make(map[string]agent.Agent)
		r.sessions[a.SessionID()] = set
	}
	set[a.ID()] = a
	r.mu.Unlock()

	r.wire(a)

	if err := a.Start(); err != nil {
		r.mu.Lock()
		delete(r.agents, a.ID())
		delete(set, a.ID())
		if len(set) == 0 {
			delete(r.sessions, a.SessionID())
		}
		r.mu.Unlock()
		return err
	}

	r.logger.Debug("agent registered", "agent_id", a.ID(), "role", string(a.Role()), "session_id", a.SessionID())
	return nil
}

// wire relays base agent callbacks as registry events. Only agents embedding
// BaseAgent expose listener registration; other implementations are tracked
// without event relay.
func (r *Registry) wire(a agent.Agent) {
	type listeners interface {
		OnStatusChange(fn func(from, to core.AgentStatus))
		OnProgress(fn func(progress float64, task string))
		OnError(fn func(err error))
	}
	l, ok := a.(listeners)
	if !ok {
		return
	}

	id, role, sessionID := a.ID(), a.Role(), a.SessionID()
	l.OnStatusChange(func(from, to core.AgentStatus) {
		r.emit(core.AgentStatusChanged{SessionID: sessionID, AgentID: id, Role: role, From: from, To: to})
	})
	l.OnProgress(func(progress float64, task string) {
		r.emit(core.AgentProgressed{SessionID: sessionID, AgentID: id, Progress: progress, Task: task})
	})
	l.OnError(func(err error) {
		r.emit(core.AgentFailed{SessionID: sessionID, AgentID: id, Err: err})
	})
}

// RemoveAgent stops and deregisters an agent. Removing an unknown ID is a
// no-op.
func (r *Registry) RemoveAgent(id string) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
		if set, ok := r.sessions[a.SessionID()]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.sessions, a.SessionID())
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return a.Stop()
}

// RemoveSessionAgents stops and deregisters every agent of a session.
func (r *Registry) RemoveSessionAgents(sessionID string) error {
	r.mu.Lock()
	set := r.sessions[sessionID]
	agents := make([]agent.Agent, 0, len(set))
	for id, a := range set {
		delete(r.agents, id)
		agents = append(agents, a)
	}
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	var firstErr error
	for _, a := range agents {
		if err := a.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Agent returns the agent with the given ID, or nil.
func (r *Registry) Agent(id string) agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[id]
}

// SessionAgents returns the agents of a session.
func (r *Registry) SessionAgents(sessionID string) []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.sessions[sessionID]
	out := make([]agent.Agent, 0, len(set))
	for _, a := range set {
		out = append(out, a)
	}
	return out
}

// SessionAgentStates returns state snapshots for all agents of a session.
func (r *Registry) SessionAgentStates(sessionID string) []core.AgentState {
	agents := r.SessionAgents(sessionID)
	states := make([]core.AgentState, 0, len(agents))
	for _, a := range agents {
		states = append(states, a.State())
	}
	return states
}

// AgentsByRole returns all agents with the given role across sessions.
func (r *Registry) AgentsByRole(role core.AgentRole) []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []agent.Agent
	for _, a := range r.agents {
		if a.Role() == role {
			out = append(out, a)
		}
	}
	return out
}

// Stats returns aggregate counts over all registered agents.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	agents := make([]agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	sessions := len(r.sessions)
	r.mu.RUnlock()

	stats := Stats{
		TotalAgents: len(agents),
		ByRole:      make(map[core.AgentRole]int),
		ByStatus:    make(map[core.AgentStatus]int),
		Sessions:    sessions,
	}
	for _, a := range agents {
		state := a.State()
		stats.ByRole[state.Role]++
		stats.ByStatus[state.Status]++
	}
	return stats
}

// Clear stops and removes all agents.
func (r *Registry) Clear() {
	r.mu.Lock()
	agents := make([]agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.agents = make(map[string]agent.Agent)
	r.sessions = make(map[string]map[string]agent.Agent)
	r.mu.Unlock()

	for _, a := range agents {
		if err := a.Stop(); err != nil {
			r.logger.Warn("failed to stop agent", "agent_id", a.ID(), "error", err)
		}
	}
}

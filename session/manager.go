package session

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/agent"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/fabric"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/registry"
	"github.com/hupe1980/researchmesh/search"
)

// SessionOptions configures a new research session.
type SessionOptions struct {
	// Config bounds the resources of the session. Zero value selects the
	// defaults.
	Config core.ResearchConfig
	// PromptConfig customizes prompts for the session's agents.
	PromptConfig *core.PromptConfig
	// ExitCriteria governs when the iteration loop stops. Zero value selects
	// the defaults.
	ExitCriteria core.ExitCriteria
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Store persists sessions, syntheses and feedback. Defaults to an
	// in-memory store.
	Store Store
	// CallTimeout bounds each model completion call made by the session's
	// agents.
	CallTimeout time.Duration
	// Logger receives diagnostic output.
	Logger logging.Logger
}

// Manager owns the session lifecycle: it persists session records through a
// Store, spins up an orchestrator per started session, mirrors orchestrator
// events into the store, and relays them to subscribers. One orchestrator
// runs per session at a time; a second StartSession on an active session is
// rejected.
type Manager struct {
	store       Store
	reg         *registry.Registry
	fab         *fabric.Fabric
	engine      model.Engine
	provider    search.Provider
	callTimeout time.Duration
	logger      logging.Logger

	mu          sync.Mutex
	active      map[string]*activeSession
	eventFns    map[int]func(core.Event)
	nextEventID int
}

type activeSession struct {
	orch  *agent.Orchestrator
	unsub func()
}

// NewManager constructs a session manager sharing the given fabric,
// registry, completion engine and search provider across sessions.
func NewManager(fab *fabric.Fabric, reg *registry.Registry, engine model.Engine, provider search.Provider, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		CallTimeout: 2 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = NewInMemoryStore()
	}

	return &Manager{
		store:       opts.Store,
		reg:         reg,
		fab:         fab,
		engine:      engine,
		provider:    provider,
		callTimeout: opts.CallTimeout,
		logger:      logging.OrNoOp(opts.Logger),
		active:      make(map[string]*activeSession),
		eventFns:    make(map[int]func(core.Event)),
	}
}

// Subscribe registers a callback observing session lifecycle and workflow
// events and returns an unsubscribe closure.
func (m *Manager) Subscribe(fn func(core.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextEventID
	m.nextEventID++
	m.eventFns[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.eventFns, id)
	}
}

func (m *Manager) emit(event core.Event) {
	m.mu.Lock()
	fns := make([]func(core.Event), 0, len(m.eventFns))
	for _, fn := range m.eventFns {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// CreateSession persists a new session in planning state. The topic must be
// non-empty.
func (m *Manager) CreateSession(ctx context.Context, topic string, optFns ...func(o *SessionOptions)) (*core.ResearchSession, error) {
	if topic == "" {
		return nil, &core.ValidationError{Field: "topic", Message: "must not be empty"}
	}

	opts := SessionOptions{
		Config:       core.DefaultResearchConfig(),
		ExitCriteria: core.DefaultExitCriteria(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.MaxAgents == 0 {
		opts.Config = core.DefaultResearchConfig()
	}
	if opts.ExitCriteria.MaxIterations == 0 {
		opts.ExitCriteria = core.DefaultExitCriteria()
	}

	now := time.Now().UTC()
	session := &core.ResearchSession{
		ID:           core.NewID(),
		Topic:        topic,
		Status:       core.SessionPlanning,
		Config:       opts.Config,
		PromptConfig: opts.PromptConfig,
		ExitCriteria: opts.ExitCriteria,
		Agents:       []core.AgentState{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	m.logger.Info("session created", "session_id", session.ID, "topic", topic)
	m.emit(core.SessionCreated{Session: session})
	return session, nil
}

// StartSession launches the research workflow for an existing session. The
// orchestrator runs in its own goroutine; progress is observed through
// Subscribe and GetSession. Starting an already active session is rejected.
func (m *Manager) StartSession(ctx context.Context, id string) error {
	session, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.active[id]; ok {
		m.mu.Unlock()
		return &core.StateError{Op: "start session", Reason: "session is already running"}
	}

	orch := agent.NewOrchestrator(m.fab, m.engine, m.provider, m.reg, id, session.Topic,
		func(o *agent.OrchestratorOptions) {
			o.Config = session.Config
			o.PromptConfig = session.PromptConfig
			o.ExitCriteria = session.ExitCriteria
			o.CallTimeout = m.callTimeout
			o.Logger = m.logger
		})

	unsub := orch.OnEvent(func(event core.Event) {
		m.handleWorkflowEvent(id, event)
	})
	m.active[id] = &activeSession{orch: orch, unsub: unsub}
	m.mu.Unlock()

	if err := m.reg.AddAgent(orch); err != nil {
		m.finish(id)
		return err
	}

	go func() {
		if err := orch.Run(context.Background()); err != nil {
			m.logger.Error("session run failed", "session_id", id, "error", err)
		}
	}()

	m.logger.Info("session started", "session_id", id)
	return nil
}

// handleWorkflowEvent mirrors orchestrator events into the store and relays
// them to manager subscribers. It runs on the orchestrator's goroutine.
func (m *Manager) handleWorkflowEvent(id string, event core.Event) {
	ctx := context.Background()

	switch ev := event.(type) {
	case core.PlanCreated:
		status := core.SessionResearching
		if err := m.updateSession(ctx, id, SessionUpdate{Status: &status, Plan: ev.Plan}); err != nil {
			m.logger.Error("persist plan failed", "session_id", id, "error", err)
		}

	case core.IterationCompleted:
		iteration := ev.Iteration
		update := SessionUpdate{CurrentIteration: &iteration}
		m.mu.Lock()
		if as, ok := m.active[id]; ok {
			update.Plan = as.orch.Plan()
		}
		m.mu.Unlock()
		if err := m.updateSession(ctx, id, update); err != nil {
			m.logger.Error("persist iteration failed", "session_id", id, "error", err)
		}

	case core.SynthesisCompleted:
		if err := m.store.SaveSynthesis(ctx, ev.Synthesis); err != nil {
			m.logger.Error("persist synthesis failed", "session_id", id, "error", err)
		}

	case core.ResearchCompleted:
		now := time.Now().UTC()
		status := core.SessionComplete
		if err := m.updateSession(ctx, id, SessionUpdate{Status: &status, CompletedAt: &now}); err != nil {
			m.logger.Error("persist completion failed", "session_id", id, "error", err)
		}
		m.finish(id)

		if session, err := m.store.GetSession(ctx, id); err == nil {
			m.emit(core.SessionCompleted{Session: session, Synthesis: ev.Synthesis})
		}

	case core.SessionFailed:
		status := core.SessionErrored
		if err := m.updateSession(ctx, id, SessionUpdate{Status: &status}); err != nil {
			m.logger.Error("persist failure failed", "session_id", id, "error", err)
		}
		m.finish(id)
	}

	m.emit(event)
}

// updateSession applies a partial update and announces the refreshed record
// with a SessionUpdated event.
func (m *Manager) updateSession(ctx context.Context, id string, update SessionUpdate) error {
	if err := m.store.UpdateSession(ctx, id, update); err != nil {
		return err
	}
	if session, err := m.store.GetSession(ctx, id); err == nil {
		m.emit(core.SessionUpdated{Session: session})
	}
	return nil
}

// finish tears down the active record of a session: unsubscribes from its
// orchestrator and removes its agents from the registry.
func (m *Manager) finish(id string) {
	m.mu.Lock()
	as, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	as.unsub()
	if err := m.reg.RemoveSessionAgents(id); err != nil {
		m.logger.Error("remove session agents failed", "session_id", id, "error", err)
	}
}

// GetSession returns the persisted session record. For an active session the
// live agent states are attached.
func (m *Manager) GetSession(ctx context.Context, id string) (*core.ResearchSession, error) {
	session, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsActive(id) {
		session.Agents = m.reg.SessionAgentStates(id)
	}
	return session, nil
}

// ListSessions returns persisted sessions newest first.
func (m *Manager) ListSessions(ctx context.Context, limit, offset int) ([]*core.ResearchSession, error) {
	return m.store.ListSessions(ctx, limit, offset)
}

// StopSession requests a graceful stop of an active session. The current
// iteration completes and the final synthesis still runs. Stopping an
// inactive session is a no-op.
func (m *Manager) StopSession(ctx context.Context, id string) error {
	m.mu.Lock()
	as, ok := m.active[id]
	m.mu.Unlock()

	if !ok {
		return nil
	}
	as.orch.RequestStop()
	m.logger.Info("session stop requested", "session_id", id)
	return nil
}

// PauseSession marks the session paused and requests a stop of the running
// workflow. A paused session can be resumed with ResumeSession.
func (m *Manager) PauseSession(ctx context.Context, id string) error {
	m.mu.Lock()
	as, ok := m.active[id]
	m.mu.Unlock()

	if !ok {
		return &core.StateError{Op: "pause session", Reason: "session is not running"}
	}

	status := core.SessionPaused
	if err := m.updateSession(ctx, id, SessionUpdate{Status: &status}); err != nil {
		return err
	}
	as.orch.RequestStop()
	m.logger.Info("session paused", "session_id", id)
	return nil
}

// ResumeSession restarts the workflow of a paused session.
func (m *Manager) ResumeSession(ctx context.Context, id string) error {
	session, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != core.SessionPaused {
		return &core.StateError{Op: "resume session", Reason: "session is not paused"}
	}
	return m.StartSession(ctx, id)
}

// SubmitFeedback persists user feedback and forwards it to the running
// orchestrator. Feedback on an inactive session is rejected.
func (m *Manager) SubmitFeedback(ctx context.Context, id string, feedbackType core.FeedbackType, content string) (*core.UserFeedback, error) {
	m.mu.Lock()
	as, ok := m.active[id]
	m.mu.Unlock()

	if !ok {
		return nil, &core.StateError{Op: "submit feedback", Reason: "session is not running"}
	}

	feedback := &core.UserFeedback{
		ID:        core.NewID(),
		SessionID: id,
		Iteration: as.orch.CurrentIteration(),
		Type:      feedbackType,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.SaveFeedback(ctx, feedback); err != nil {
		return nil, err
	}

	as.orch.AddFeedback(feedback)
	if feedbackType == core.FeedbackStop {
		as.orch.RequestStop()
	}
	return feedback, nil
}

// LatestSynthesis returns the most recent synthesis of a session, nil when
// none has been produced yet.
func (m *Manager) LatestSynthesis(ctx context.Context, id string) (*core.Synthesis, error) {
	return m.store.LatestSynthesis(ctx, id)
}

// SynthesisHistory returns all syntheses of a session in iteration order.
func (m *Manager) SynthesisHistory(ctx context.Context, id string) ([]*core.Synthesis, error) {
	return m.store.SynthesisHistory(ctx, id)
}

// DeleteSession removes the session record and its syntheses and feedback.
// An active session is stopped first.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	as, ok := m.active[id]
	m.mu.Unlock()

	if ok {
		as.orch.RequestStop()
	}
	return m.store.DeleteSession(ctx, id)
}

// IsActive reports whether the workflow of the session is currently running.
func (m *Manager) IsActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// ActiveCount returns the number of running sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

package agent

import (
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/fabric"
	"github.com/hupe1980/researchmesh/logging"
)

// Agent is the common surface of all mesh agents. Start subscribes the agent
// to its fabric address; Stop unsubscribes and moves it to completed.
// HandleMessage is the same handler the fabric invokes and may be called
// directly for in-process dispatch.
type Agent interface {
	ID() string
	Role() core.AgentRole
	SessionID() string
	Start() error
	Stop() error
	State() core.AgentState
	HandleMessage(msg core.Message) error
}

// Pool manages the live agents of a session. It is implemented by the
// registry; the orchestrator uses it to add and remove the workers it
// spawns. AddAgent starts the agent, RemoveAgent stops it.
type Pool interface {
	AddAgent(a Agent) error
	RemoveAgent(id string) error
}

// BaseAgent bundles identity, lifecycle, status/progress tracking and fabric
// plumbing shared by all agent kinds. Embed it in a concrete agent and bind
// the concrete message handler before Start. All exported methods are
// goroutine-safe.
type BaseAgent struct {
	id        string
	role      core.AgentRole
	sessionID string

	fab     *fabric.Fabric
	logger  logging.Logger
	handler fabric.Handler

	mu          sync.Mutex
	status      core.AgentStatus
	progress    float64
	currentTask string
	errMsg      string
	subtopic    string
	startedAt   *time.Time
	completedAt *time.Time
	unsub       func()
	stopped     bool

	statusFns   []func(from, to core.AgentStatus)
	progressFns []func(progress float64, task string)
	errorFns    []func(err error)
	completeFns []func()
}

func newBase(id string, role core.AgentRole, sessionID string, fab *fabric.Fabric, logger logging.Logger) BaseAgent {
	if id == "" {
		id = core.NewID()
	}
	return BaseAgent{
		id:        id,
		role:      role,
		sessionID: sessionID,
		fab:       fab,
		logger:    logging.OrNoOp(logger),
		status:    core.StatusIdle,
	}
}

// bind registers the concrete agent's message handler. Must be called before
// Start; constructors in this package do so.
func (b *BaseAgent) bind(h fabric.Handler) { b.handler = h }

// ID returns the agent's unique identifier.
func (b *BaseAgent) ID() string { return b.id }

// Role returns the agent's role.
func (b *BaseAgent) Role() core.AgentRole { return b.role }

// SessionID returns the session this agent belongs to.
func (b *BaseAgent) SessionID() string { return b.sessionID }

// Start records the start time and subscribes the bound handler on the
// fabric. Starting an already started agent is an error.
func (b *BaseAgent) Start() error {
	b.mu.Lock()
	if b.unsub != nil || b.stopped {
		b.mu.Unlock()
		return &core.StateError{Op: "start", Reason: "agent already started"}
	}
	if b.handler == nil {
		b.mu.Unlock()
		return &core.StateError{Op: "start", Reason: "no message handler bound"}
	}
	now := time.Now().UTC()
	b.startedAt = &now
	b.unsub = b.fab.Subscribe(b.id, b.handler)
	b.mu.Unlock()

	b.setStatus(core.StatusIdle)
	return nil
}

// Stop unsubscribes from the fabric, records the completion time and moves
// the agent to completed. A stopped agent reports completed regardless of
// whether work was cut short; any prior error stays visible in State. Stop
// is idempotent.
func (b *BaseAgent) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	now := time.Now().UTC()
	b.completedAt = &now
	fns := slices.Clone(b.completeFns)
	b.mu.Unlock()

	b.setStatus(core.StatusCompleted)
	for _, fn := range fns {
		fn()
	}
	return nil
}

// State returns a point-in-time snapshot of the agent.
func (b *BaseAgent) State() core.AgentState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return core.AgentState{
		ID:               b.id,
		SessionID:        b.sessionID,
		Role:             b.role,
		Status:           b.status,
		AssignedSubtopic: b.subtopic,
		Progress:         b.progress,
		CurrentTask:      b.currentTask,
		Error:            b.errMsg,
		StartedAt:        b.startedAt,
		CompletedAt:      b.completedAt,
	}
}

// OnStatusChange registers a callback fired on every status transition.
// Callbacks are invoked synchronously and must not block.
func (b *BaseAgent) OnStatusChange(fn func(from, to core.AgentStatus)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusFns = append(b.statusFns, fn)
}

// OnProgress registers a callback fired on every progress update.
func (b *BaseAgent) OnProgress(fn func(progress float64, task string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progressFns = append(b.progressFns, fn)
}

// OnError registers a callback fired when the agent records an error.
func (b *BaseAgent) OnError(fn func(err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorFns = append(b.errorFns, fn)
}

// OnComplete registers a callback fired once when the agent stops.
func (b *BaseAgent) OnComplete(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completeFns = append(b.completeFns, fn)
}

func (b *BaseAgent) setStatus(to core.AgentStatus) {
	b.mu.Lock()
	from := b.status
	b.status = to
	fns := slices.Clone(b.statusFns)
	b.mu.Unlock()

	for _, fn := range fns {
		fn(from, to)
	}
}

// setProgress clamps progress into [0,100] and records the current task.
func (b *BaseAgent) setProgress(progress float64, task string) {
	progress = max(0, min(100, progress))

	b.mu.Lock()
	b.progress = progress
	b.currentTask = task
	fns := slices.Clone(b.progressFns)
	b.mu.Unlock()

	for _, fn := range fns {
		fn(progress, task)
	}
}

func (b *BaseAgent) setError(err error) {
	b.mu.Lock()
	b.errMsg = err.Error()
	fns := slices.Clone(b.errorFns)
	b.mu.Unlock()

	b.setStatus(core.StatusError)
	for _, fn := range fns {
		fn(err)
	}
}

func (b *BaseAgent) setSubtopic(s string) {
	b.mu.Lock()
	b.subtopic = s
	b.mu.Unlock()
}

// send delivers a payload to another agent in the same session.
func (b *BaseAgent) send(to string, payload core.Payload, iteration int) {
	b.fab.Send(b.id, to, payload, b.sessionID, iteration)
}

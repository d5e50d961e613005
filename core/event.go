package core

// Event is the closed set of lifecycle notifications emitted by the
// orchestrator, registry and session manager. Each event kind is a distinct
// typed message consumed via type switch; there is no string-keyed bus.
//
// Events are delivered synchronously to registered callbacks in emission
// order. Observers must not block.
type Event interface {
	isEvent()
}

// PlanCreated fires once per session run after planning succeeds.
type PlanCreated struct {
	SessionID string
	Plan      *ResearchPlan
}

// IterationStarted fires when the orchestrator begins an iteration.
type IterationStarted struct {
	SessionID string
	Iteration int
}

// IterationCompleted fires after the merge and incremental synthesis of an
// iteration, carrying the cumulative finding count.
type IterationCompleted struct {
	SessionID    string
	Iteration    int
	FindingCount int
}

// SynthesisStarted fires before a synthesis is requested, so observers see
// liveness during a potentially long operation.
type SynthesisStarted struct {
	SessionID string
	Iteration int
	IsFinal   bool
}

// SynthesisCompleted fires once a synthesis has been recorded.
type SynthesisCompleted struct {
	SessionID string
	Synthesis *Synthesis
}

// ResearchCompleted fires exactly once per successful run, after the final
// synthesis.
type ResearchCompleted struct {
	SessionID string
	Synthesis *Synthesis
}

// SessionFailed marks a hard failure; the session is terminal in error state.
type SessionFailed struct {
	SessionID string
	Err       error
}

// SessionCreated fires when the session manager persists a new session.
type SessionCreated struct {
	Session *ResearchSession
}

// SessionUpdated fires after the session manager persists a record change.
type SessionUpdated struct {
	Session *ResearchSession
}

// SessionCompleted fires when a session reaches completed status.
type SessionCompleted struct {
	Session   *ResearchSession
	Synthesis *Synthesis
}

// AgentStatusChanged propagates an agent status transition, tagged with the
// agent identity by the registry.
type AgentStatusChanged struct {
	SessionID string
	AgentID   string
	Role      AgentRole
	From      AgentStatus
	To        AgentStatus
}

// AgentProgressed propagates an agent progress update in [0,100].
type AgentProgressed struct {
	SessionID string
	AgentID   string
	Progress  float64
	Task      string
}

// AgentFailed propagates an agent-level error.
type AgentFailed struct {
	SessionID string
	AgentID   string
	Err       error
}

func (PlanCreated) isEvent()        {}
func (IterationStarted) isEvent()   {}
func (IterationCompleted) isEvent() {}
func (SynthesisStarted) isEvent()   {}
func (SynthesisCompleted) isEvent() {}
func (ResearchCompleted) isEvent()  {}
func (SessionFailed) isEvent()      {}
func (SessionCreated) isEvent()     {}
func (SessionUpdated) isEvent()     {}
func (SessionCompleted) isEvent()   {}
func (AgentStatusChanged) isEvent() {}
func (AgentProgressed) isEvent()    {}
func (AgentFailed) isEvent()        {}

package core

import "time"

// AgentRole categorizes the agent kinds known to the system.
type AgentRole string

const (
	// RoleOrchestrator drives the iteration control loop for one session.
	RoleOrchestrator AgentRole = "orchestrator"
	// RoleResearcher executes bounded search and analysis cycles for one subtopic.
	RoleResearcher AgentRole = "researcher"
	// RoleSynthesizer aggregates accumulated findings into structured reports.
	RoleSynthesizer AgentRole = "synthesizer"
)

// AgentStatus is the lifecycle state of an agent.
//
// Agents move from idle through one or more working states and terminate in
// completed or error. A stopped agent always reports completed; whether work
// was aborted is carried separately in AgentState.Error.
type AgentStatus string

const (
	StatusIdle         AgentStatus = "idle"
	StatusPlanning     AgentStatus = "planning"
	StatusSearching    AgentStatus = "searching"
	StatusAnalyzing    AgentStatus = "analyzing"
	StatusSynthesizing AgentStatus = "synthesizing"
	StatusWaiting      AgentStatus = "waiting"
	StatusCompleted    AgentStatus = "completed"
	StatusError        AgentStatus = "error"
)

// AgentState is a point-in-time snapshot of an agent's identity and mutable
// state. Snapshots are value copies and safe to retain.
type AgentState struct {
	ID               string      `json:"id"`
	SessionID        string      `json:"session_id"`
	Role             AgentRole   `json:"role"`
	Status           AgentStatus `json:"status"`
	AssignedSubtopic string      `json:"assigned_subtopic,omitempty"`
	Progress         float64     `json:"progress"`
	CurrentTask      string      `json:"current_task,omitempty"`
	Error            string      `json:"error,omitempty"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

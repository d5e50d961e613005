package core

import "time"

// DepthLevel controls how broadly a topic is decomposed.
type DepthLevel string

const (
	DepthShallow DepthLevel = "shallow"
	DepthMedium  DepthLevel = "medium"
	DepthDeep    DepthLevel = "deep"
)

// SubtopicCount maps the depth level to the number of subtopics requested
// during planning. Unknown levels fall back to medium.
func (d DepthLevel) SubtopicCount() int {
	switch d {
	case DepthShallow:
		return 3
	case DepthDeep:
		return 8
	default:
		return 5
	}
}

// ResearchConfig bounds the resources a session may consume.
type ResearchConfig struct {
	MaxAgents           int        `json:"max_agents"`
	MaxSearchesPerAgent int        `json:"max_searches_per_agent"`
	DepthLevel          DepthLevel `json:"depth_level"`
	FocusAreas          []string   `json:"focus_areas,omitempty"`
	ExcludeTopics       []string   `json:"exclude_topics,omitempty"`
}

// DefaultResearchConfig returns the baseline per-session resource bounds.
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		MaxAgents:           3,
		MaxSearchesPerAgent: 5,
		DepthLevel:          DepthMedium,
	}
}

// ExitCriteria is the set of thresholds governing when the iteration loop
// stops. Confidence, saturation and coverage are referenced by configuration;
// the evaluation step substitutes for computing them directly.
type ExitCriteria struct {
	MaxIterations            int     `json:"max_iterations"`
	MaxDurationMinutes       int     `json:"max_duration_minutes"`
	MinConfidenceScore       float64 `json:"min_confidence_score"`
	SaturationThreshold      float64 `json:"saturation_threshold"`
	RequiredSubtopicCoverage float64 `json:"required_subtopic_coverage"`
}

// DefaultExitCriteria returns the baseline loop thresholds.
func DefaultExitCriteria() ExitCriteria {
	return ExitCriteria{
		MaxIterations:            10,
		MaxDurationMinutes:       30,
		MinConfidenceScore:       0.7,
		SaturationThreshold:      0.1,
		RequiredSubtopicCoverage: 0.8,
	}
}

// PromptConfig customizes the prompts driving the three agent kinds. All
// fields are optional; zero values select the built-in prompts.
type PromptConfig struct {
	OrchestratorPrompt       string `json:"orchestrator_prompt,omitempty"`
	ResearcherPrompt         string `json:"researcher_prompt,omitempty"`
	SynthesizerPrompt        string `json:"synthesizer_prompt,omitempty"`
	OrchestratorInstructions string `json:"orchestrator_instructions,omitempty"`
	ResearcherInstructions   string `json:"researcher_instructions,omitempty"`
	SynthesizerInstructions  string `json:"synthesizer_instructions,omitempty"`
	OutputTone               string `json:"output_tone,omitempty"`
}

// SubtopicStatus tracks a subtopic through the research loop.
type SubtopicStatus string

const (
	SubtopicPending    SubtopicStatus = "pending"
	SubtopicInProgress SubtopicStatus = "in_progress"
	SubtopicCompleted  SubtopicStatus = "completed"
)

// Subtopic is a decomposed unit of the research topic with its own search
// queries and completion status. An empty Status is equivalent to pending.
type Subtopic struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	SearchQueries []string       `json:"search_queries"`
	AssignedAgent string         `json:"assigned_agent,omitempty"`
	Status        SubtopicStatus `json:"status,omitempty"`
}

// Pending reports whether the subtopic is still eligible for selection.
func (s *Subtopic) Pending() bool {
	return s.Status == "" || s.Status == SubtopicPending
}

// ResearchPlan is the single source of truth for what work remains in a
// session. The orchestrator mutates it in place as iterations proceed.
type ResearchPlan struct {
	MainTopic string      `json:"main_topic"`
	Strategy  string      `json:"strategy"`
	Subtopics []*Subtopic `json:"subtopics"`
}

// SessionStatus is the lifecycle state of a research session.
type SessionStatus string

const (
	SessionPlanning         SessionStatus = "planning"
	SessionResearching      SessionStatus = "researching"
	SessionAwaitingFeedback SessionStatus = "awaiting_feedback"
	SessionSynthesizing     SessionStatus = "synthesizing"
	SessionComplete         SessionStatus = "completed"
	SessionErrored          SessionStatus = "error"
	SessionPaused           SessionStatus = "paused"
)

// ResearchSession is the root aggregate. The persisted record is
// authoritative for topic, configuration and status history; the Agents view
// is sourced from the live registry and is empty for inactive sessions.
type ResearchSession struct {
	ID               string         `json:"id"`
	Topic            string         `json:"topic"`
	Status           SessionStatus  `json:"status"`
	Config           ResearchConfig `json:"config"`
	PromptConfig     *PromptConfig  `json:"prompt_config,omitempty"`
	ExitCriteria     ExitCriteria   `json:"exit_criteria"`
	CurrentIteration int            `json:"current_iteration"`
	Plan             *ResearchPlan  `json:"plan,omitempty"`
	Agents           []AgentState   `json:"agents"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// FeedbackType classifies user feedback.
type FeedbackType string

const (
	FeedbackGuidance FeedbackType = "guidance"
	FeedbackApproval FeedbackType = "approval"
	FeedbackStop     FeedbackType = "stop"
	FeedbackRedirect FeedbackType = "redirect"
)

// UserFeedback is queued by the session manager and drained by the
// orchestrator once per iteration boundary.
type UserFeedback struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Iteration int          `json:"iteration"`
	Type      FeedbackType `json:"type"`
	Content   string       `json:"content"`
	Processed bool         `json:"processed"`
	CreatedAt time.Time    `json:"created_at"`
}

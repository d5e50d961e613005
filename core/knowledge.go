package core

import "time"

// KnowledgeEntry is one atomic piece of extracted information. Entries are
// append-only per iteration and accumulated for the whole session lifetime;
// they are never deleted, only superseded via PreviousVersionID links.
//
// Novelty is fixed at 1.0 on creation. The original design reserved later
// recomputation that never happens in this core; the field is kept as a
// known no-op rather than inventing a scoring algorithm.
type KnowledgeEntry struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Iteration int    `json:"iteration"`

	Content  string   `json:"content"`
	Summary  string   `json:"summary"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`

	Confidence float64 `json:"confidence"`
	Relevance  float64 `json:"relevance"`
	Novelty    float64 `json:"novelty"`

	RelatedEntries []string `json:"related_entries,omitempty"`
	Contradicts    []string `json:"contradicts,omitempty"`
	Supports       []string `json:"supports,omitempty"`

	Version           int    `json:"version"`
	PreviousVersionID string `json:"previous_version_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Theme is an overarching pattern derived from the full findings set. Themes
// are recomputed from scratch each iteration.
type Theme struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	SupportingEntries []string `json:"supporting_entries,omitempty"`
	Strength          float64  `json:"strength"`
}

// Contradiction records conflicting findings surfaced by the merge step.
type Contradiction struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Entries     []string `json:"entries,omitempty"`
	Resolved    bool     `json:"resolved"`
	Resolution  string   `json:"resolution,omitempty"`
}

// GapPriority ranks how urgently a knowledge gap should be addressed.
type GapPriority string

const (
	PriorityHigh   GapPriority = "high"
	PriorityMedium GapPriority = "medium"
	PriorityLow    GapPriority = "low"
)

// KnowledgeGap marks an area lacking coverage. Gaps persist across
// iterations by identity on (Subtopic, Description): gaps not reproduced by
// the latest merge are marked resolved, new ones are appended.
type KnowledgeGap struct {
	ID               string      `json:"id"`
	SessionID        string      `json:"session_id"`
	Iteration        int         `json:"iteration"`
	Subtopic         string      `json:"subtopic"`
	Description      string      `json:"description"`
	Priority         GapPriority `json:"priority"`
	SuggestedQueries []string    `json:"suggested_queries,omitempty"`
	Resolved         bool        `json:"resolved"`
	CreatedAt        time.Time   `json:"created_at"`
}

// KeyFinding is a headline result within a synthesis.
type KeyFinding struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Importance  string   `json:"importance"`
	Sources     []string `json:"sources,omitempty"`
}

// SynthesisSection is one structured section of a synthesis report.
type SynthesisSection struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Sources []string `json:"sources,omitempty"`
}

// Synthesis is a structured report generated from accumulated findings at a
// point in the iteration sequence. One non-final synthesis is produced per
// iteration plus exactly one final; history is retained for audit.
type Synthesis struct {
	ID          string             `json:"id"`
	SessionID   string             `json:"session_id"`
	Iteration   int                `json:"iteration"`
	IsFinal     bool               `json:"is_final"`
	Summary     string             `json:"summary"`
	KeyFindings []KeyFinding       `json:"key_findings"`
	Sections    []SynthesisSection `json:"sections"`
	Confidence  float64            `json:"confidence"`
	CreatedAt   time.Time          `json:"created_at"`
}

// SynthesisInput is the working set handed to the synthesizer.
type SynthesisInput struct {
	Findings       []KnowledgeEntry `json:"findings"`
	Themes         []Theme          `json:"themes,omitempty"`
	Contradictions []Contradiction  `json:"contradictions,omitempty"`
	Gaps           []KnowledgeGap   `json:"gaps,omitempty"`
	Previous       *Synthesis       `json:"previous,omitempty"`
	Iteration      int              `json:"iteration"`
	IsFinal        bool             `json:"is_final"`
}

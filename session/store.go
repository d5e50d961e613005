package session

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// ErrSessionNotFound is returned when a session ID is unknown to the store.
var ErrSessionNotFound = errors.New("session not found")

// SessionUpdate is a partial update of the persisted session record. Nil
// fields are left untouched; the store always refreshes UpdatedAt.
type SessionUpdate struct {
	Status           *core.SessionStatus
	CurrentIteration *int
	Plan             *core.ResearchPlan
	CompletedAt      *time.Time
}

// Store is the persistence backend for sessions, syntheses and feedback.
// Implementations must be safe for concurrent use. Returned records are
// copies; mutating them does not affect stored state.
type Store interface {
	// CreateSession persists a new session record.
	CreateSession(ctx context.Context, session *core.ResearchSession) error

	// GetSession returns the session with the given ID or ErrSessionNotFound.
	// The Agents view is not populated by stores.
	GetSession(ctx context.Context, id string) (*core.ResearchSession, error)

	// UpdateSession applies a partial update. Updating an unknown session
	// returns ErrSessionNotFound.
	UpdateSession(ctx context.Context, id string, update SessionUpdate) error

	// ListSessions returns sessions ordered by creation time, newest first.
	// A non-positive limit selects a default page size of 20.
	ListSessions(ctx context.Context, limit, offset int) ([]*core.ResearchSession, error)

	// DeleteSession removes a session and its syntheses and feedback.
	// Deleting an unknown session is a no-op.
	DeleteSession(ctx context.Context, id string) error

	// SaveSynthesis appends a synthesis to the session's history.
	SaveSynthesis(ctx context.Context, synthesis *core.Synthesis) error

	// LatestSynthesis returns the most recently created synthesis for a
	// session, or nil when none exists.
	LatestSynthesis(ctx context.Context, sessionID string) (*core.Synthesis, error)

	// SynthesisHistory returns all syntheses of a session ordered by
	// iteration, oldest first.
	SynthesisHistory(ctx context.Context, sessionID string) ([]*core.Synthesis, error)

	// SaveFeedback persists a feedback record for audit.
	SaveFeedback(ctx context.Context, feedback *core.UserFeedback) error
}

const defaultListLimit = 20

func cloneSession(s *core.ResearchSession) *core.ResearchSession {
	out := *s
	if s.PromptConfig != nil {
		pc := *s.PromptConfig
		out.PromptConfig = &pc
	}
	out.Plan = clonePlan(s.Plan)
	out.Agents = append([]core.AgentState(nil), s.Agents...)
	return &out
}

func clonePlan(p *core.ResearchPlan) *core.ResearchPlan {
	if p == nil {
		return nil
	}
	plan := *p
	plan.Subtopics = make([]*core.Subtopic, len(p.Subtopics))
	for i, st := range p.Subtopics {
		c := *st
		c.SearchQueries = append([]string(nil), st.SearchQueries...)
		plan.Subtopics[i] = &c
	}
	return &plan
}

func cloneSynthesis(s *core.Synthesis) *core.Synthesis {
	out := *s
	out.KeyFindings = append([]core.KeyFinding(nil), s.KeyFindings...)
	out.Sections = append([]core.SynthesisSection(nil), s.Sections...)
	return &out
}

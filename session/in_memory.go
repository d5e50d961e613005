package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// InMemoryStore is a volatile Store keeping everything in process-local
// maps. It is safe for concurrent access and suited for tests and ephemeral
// runs. All records are cloned on the way in and out.
type InMemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*core.ResearchSession
	syntheses map[string][]*core.Synthesis
	feedback  map[string][]*core.UserFeedback
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:  make(map[string]*core.ResearchSession),
		syntheses: make(map[string][]*core.Synthesis),
		feedback:  make(map[string][]*core.UserFeedback),
	}
}

// CreateSession implements Store.
func (s *InMemoryStore) CreateSession(_ context.Context, session *core.ResearchSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// GetSession implements Store.
func (s *InMemoryStore) GetSession(_ context.Context, id string) (*core.ResearchSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

// UpdateSession implements Store.
func (s *InMemoryStore) UpdateSession(_ context.Context, id string, update SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.CurrentIteration != nil {
		session.CurrentIteration = *update.CurrentIteration
	}
	if update.Plan != nil {
		session.Plan = clonePlan(update.Plan)
	}
	if update.CompletedAt != nil {
		session.CompletedAt = update.CompletedAt
	}
	session.UpdatedAt = time.Now().UTC()
	return nil
}

// ListSessions implements Store.
func (s *InMemoryStore) ListSessions(_ context.Context, limit, offset int) ([]*core.ResearchSession, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	all := make([]*core.ResearchSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		all = append(all, session)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}

	out := make([]*core.ResearchSession, 0, len(all))
	for _, session := range all {
		out = append(out, cloneSession(session))
	}
	return out, nil
}

// DeleteSession implements Store.
func (s *InMemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.syntheses, id)
	delete(s.feedback, id)
	return nil
}

// SaveSynthesis implements Store.
func (s *InMemoryStore) SaveSynthesis(_ context.Context, synthesis *core.Synthesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syntheses[synthesis.SessionID] = append(s.syntheses[synthesis.SessionID], cloneSynthesis(synthesis))
	return nil
}

// LatestSynthesis implements Store.
func (s *InMemoryStore) LatestSynthesis(_ context.Context, sessionID string) (*core.Synthesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.syntheses[sessionID]
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[0]
	for _, synthesis := range history[1:] {
		if !synthesis.CreatedAt.Before(latest.CreatedAt) {
			latest = synthesis
		}
	}
	return cloneSynthesis(latest), nil
}

// SynthesisHistory implements Store.
func (s *InMemoryStore) SynthesisHistory(_ context.Context, sessionID string) ([]*core.Synthesis, error) {
	s.mu.RLock()
	history := make([]*core.Synthesis, 0, len(s.syntheses[sessionID]))
	for _, synthesis := range s.syntheses[sessionID] {
		history = append(history, cloneSynthesis(synthesis))
	}
	s.mu.RUnlock()

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Iteration < history[j].Iteration
	})
	return history, nil
}

// SaveFeedback implements Store.
func (s *InMemoryStore) SaveFeedback(_ context.Context, feedback *core.UserFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb := *feedback
	s.feedback[feedback.SessionID] = append(s.feedback[feedback.SessionID], &fb)
	return nil
}

var _ Store = (*InMemoryStore)(nil)

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/fabric"
	"github.com/hupe1980/researchmesh/internal/testutil"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/registry"
	"github.com/hupe1980/researchmesh/search"
)

const managerPlanResponse = `{
  "mainTopic": "Go concurrency",
  "strategy": "Divide into runtime mechanics and communication primitives",
  "subtopics": [
    {"id": "st-1", "title": "Goroutines", "description": "Scheduling and lifecycle", "searchQueries": ["go goroutines"]}
  ]
}`

const managerAnalysisResponse = `{
  "findings": [
    {
      "content": "Go's scheduler multiplexes goroutines onto OS threads",
      "summary": "M:N scheduling",
      "confidence": 0.9,
      "relevance": 0.95,
      "sources": [{"url": "https://example.com/a", "title": "Example", "excerpt": "...", "reliability": 0.8}],
      "tags": ["runtime"]
    }
  ],
  "suggestedFollowUp": [],
  "gaps": []
}`

const managerMergeResponse = `{
  "keyThemes": [],
  "contradictions": [],
  "gaps": [],
  "overallConfidence": 0.8
}`

const managerSynthesisResponse = `{
  "summary": "Go provides lightweight concurrency primitives.",
  "keyFindings": [
    {"title": "Goroutines are cheap", "description": "Thousands can run at once", "importance": "high"}
  ],
  "sections": [
    {"title": "Concurrency Model", "content": "CSP-style channels...", "sources": []}
  ],
  "confidence": 0.85
}`

const managerFinalResponse = `{
  "summary": "Final report on Go concurrency.",
  "keyFindings": [
    {"title": "CSP model", "description": "Channels structure concurrent programs", "importance": "high"}
  ],
  "sections": [
    {"title": "Conclusions", "content": "Go's model scales well.", "sources": []}
  ],
  "confidence": 0.9
}`

func newWorkflowEngine() *testutil.ScriptedEngine {
	return testutil.NewScriptedEngine().
		Respond("create a comprehensive research plan", managerPlanResponse).
		Respond("Analyze the following search results", managerAnalysisResponse).
		Respond("merge the following research findings", managerMergeResponse).
		Respond("Evaluate the current research progress", `{"decision": "synthesize", "confidence": 0.9, "reasoning": "Coverage is sufficient"}`).
		Respond("Create a comprehensive synthesis", managerSynthesisResponse).
		Respond("Update the synthesis with new findings", managerSynthesisResponse).
		Respond("Create the final, comprehensive research report", managerFinalResponse)
}

func newManagerSearch() *testutil.StubSearch {
	s := testutil.NewStubSearch()
	s.Pages = map[string]*search.Page{
		"https://example.com/a": {URL: "https://example.com/a", Title: "Example", Content: "page body"},
	}
	return s
}

func newTestManager(t *testing.T, engine model.Engine) *Manager {
	t.Helper()
	fab := fabric.New(nil)
	reg := registry.New()
	return NewManager(fab, reg, engine, newManagerSearch())
}

// gatedEngine blocks every completion until released, keeping a session
// active for as long as a test needs it.
type gatedEngine struct {
	inner   model.Engine
	release chan struct{}
}

func (e *gatedEngine) Complete(ctx context.Context, req model.Request) (string, error) {
	select {
	case <-e.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return e.inner.Complete(ctx, req)
}

func waitForEvent[T core.Event](t *testing.T, m *Manager) (<-chan T, func()) {
	t.Helper()
	ch := make(chan T, 1)
	unsub := m.Subscribe(func(event core.Event) {
		if ev, ok := event.(T); ok {
			select {
			case ch <- ev:
			default:
			}
		}
	})
	return ch, unsub
}

func TestManagerCreateSession(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())
	ctx := context.Background()

	var created []core.Event
	m.Subscribe(func(event core.Event) {
		if _, ok := event.(core.SessionCreated); ok {
			created = append(created, event)
		}
	})

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, core.SessionPlanning, session.Status)
	assert.Equal(t, 3, session.Config.MaxAgents)
	assert.Equal(t, 10, session.ExitCriteria.MaxIterations)
	assert.Len(t, created, 1)

	stored, err := m.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go concurrency", stored.Topic)
	assert.Empty(t, stored.Agents)
}

func TestManagerCreateSessionEmptyTopic(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())

	_, err := m.CreateSession(context.Background(), "")

	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "topic", ve.Field)
}

func TestManagerRunSessionToCompletion(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)

	completed, unsub := waitForEvent[core.SessionCompleted](t, m)
	defer unsub()

	require.NoError(t, m.StartSession(ctx, session.ID))

	var ev core.SessionCompleted
	select {
	case ev = <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not complete")
	}

	require.NotNil(t, ev.Synthesis)
	assert.True(t, ev.Synthesis.IsFinal)
	assert.Equal(t, "Final report on Go concurrency.", ev.Synthesis.Summary)

	assert.False(t, m.IsActive(session.ID))
	assert.Equal(t, 0, m.ActiveCount())

	stored, err := m.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, core.SessionComplete, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, 1, stored.CurrentIteration)
	require.NotNil(t, stored.Plan)
	require.Len(t, stored.Plan.Subtopics, 1)
	assert.Equal(t, core.SubtopicCompleted, stored.Plan.Subtopics[0].Status)

	history, err := m.SynthesisHistory(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "one incremental plus one final")
	assert.False(t, history[0].IsFinal)
	assert.True(t, history[1].IsFinal)

	latest, err := m.LatestSynthesis(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.IsFinal)
}

func TestManagerEmitsSessionUpdates(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)

	var updates []core.SessionUpdated
	m.Subscribe(func(event core.Event) {
		if ev, ok := event.(core.SessionUpdated); ok {
			updates = append(updates, ev)
		}
	})

	completed, unsub := waitForEvent[core.SessionCompleted](t, m)
	defer unsub()

	require.NoError(t, m.StartSession(ctx, session.ID))

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not complete")
	}

	require.NotEmpty(t, updates, "every persisted change is announced")

	var statuses []core.SessionStatus
	for _, ev := range updates {
		require.NotNil(t, ev.Session)
		assert.Equal(t, session.ID, ev.Session.ID)
		statuses = append(statuses, ev.Session.Status)
	}
	assert.Contains(t, statuses, core.SessionResearching)
	assert.Contains(t, statuses, core.SessionComplete)

	first := updates[0]
	require.NotNil(t, first.Session.Plan, "plan update is announced with the plan attached")
}

func TestManagerPauseEmitsSessionUpdate(t *testing.T) {
	inner := newWorkflowEngine()
	engine := &gatedEngine{inner: inner, release: make(chan struct{})}
	m := newTestManager(t, engine)
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)

	updated, unsub := waitForEvent[core.SessionUpdated](t, m)
	defer unsub()

	require.NoError(t, m.StartSession(ctx, session.ID))
	require.NoError(t, m.PauseSession(ctx, session.ID))

	select {
	case ev := <-updated:
		assert.Equal(t, core.SessionPaused, ev.Session.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("no update after pause")
	}

	close(engine.release)
}

func TestManagerStartUnknownSession(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())

	err := m.StartSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerStartSessionTwice(t *testing.T) {
	engine := &gatedEngine{inner: newWorkflowEngine(), release: make(chan struct{})}
	m := newTestManager(t, engine)
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)

	completed, unsub := waitForEvent[core.SessionCompleted](t, m)
	defer unsub()

	require.NoError(t, m.StartSession(ctx, session.ID))
	assert.True(t, m.IsActive(session.ID))

	err = m.StartSession(ctx, session.ID)
	var se *core.StateError
	require.ErrorAs(t, err, &se)

	close(engine.release)
	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not complete")
	}
}

func TestManagerStopFeedbackDuringRun(t *testing.T) {
	engine := &gatedEngine{inner: newWorkflowEngine(), release: make(chan struct{})}
	m := newTestManager(t, engine)
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)

	completed, unsub := waitForEvent[core.SessionCompleted](t, m)
	defer unsub()

	require.NoError(t, m.StartSession(ctx, session.ID))

	feedback, err := m.SubmitFeedback(ctx, session.ID, core.FeedbackStop, "stop now")
	require.NoError(t, err)
	assert.Equal(t, core.FeedbackStop, feedback.Type)
	assert.Equal(t, 0, feedback.Iteration)

	close(engine.release)
	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not complete")
	}

	stored, err := m.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, core.SessionComplete, stored.Status)
	assert.Equal(t, 0, stored.CurrentIteration, "stop before the first iteration skips the loop")
}

func TestManagerFeedbackOnInactiveSession(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)

	_, err = m.SubmitFeedback(ctx, session.ID, core.FeedbackGuidance, "focus on channels")

	var se *core.StateError
	require.ErrorAs(t, err, &se)
}

func TestManagerStopInactiveSessionNoop(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())

	assert.NoError(t, m.StopSession(context.Background(), "nope"))
}

func TestManagerPauseInactiveSession(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)

	err = m.PauseSession(ctx, session.ID)
	var se *core.StateError
	require.ErrorAs(t, err, &se)
}

func TestManagerResumeNonPausedSession(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)

	err = m.ResumeSession(ctx, session.ID)
	var se *core.StateError
	require.ErrorAs(t, err, &se)
}

func TestManagerDeleteSession(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "Go concurrency")
	require.NoError(t, err)

	require.NoError(t, m.DeleteSession(ctx, session.ID))

	_, err = m.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerListSessions(t *testing.T) {
	m := newTestManager(t, newWorkflowEngine())
	ctx := context.Background()

	for _, topic := range []string{"topic a", "topic b"} {
		_, err := m.CreateSession(ctx, topic)
		require.NoError(t, err)
	}

	sessions, err := m.ListSessions(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

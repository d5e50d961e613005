package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/fabric"
	"github.com/hupe1980/researchmesh/internal/testutil"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
)

const planResponse = `{
  "mainTopic": "Go concurrency",
  "strategy": "Divide into runtime mechanics and communication primitives",
  "subtopics": [
    {"id": "st-1", "title": "Goroutines", "description": "Scheduling and lifecycle", "searchQueries": ["go goroutines"]},
    {"id": "st-2", "title": "Channels", "description": "Communication semantics", "searchQueries": ["go channels"]}
  ]
}`

const mergeResponse = `{
  "keyThemes": [
    {"title": "Lightweight concurrency", "description": "Cheap goroutines enable high parallelism", "supportingFindings": ["f1"], "strength": 0.8}
  ],
  "contradictions": [],
  "gaps": [
    {"subtopic": "Channels", "description": "Buffered channel semantics need depth", "priority": "medium", "suggestedQueries": ["go buffered channels"]}
  ],
  "overallConfidence": 0.75
}`

const evalSynthesize = `{"decision": "synthesize", "confidence": 0.9, "reasoning": "Coverage is sufficient"}`
const evalContinue = `{"decision": "continue", "confidence": 0.6, "reasoning": "More depth needed"}`

const finalSynthesisResponse = `{
  "summary": "Final report on Go concurrency.",
  "keyFindings": [
    {"title": "CSP model", "description": "Channels structure concurrent programs", "importance": "high", "sources": ["https://example.com/a"]}
  ],
  "sections": [
    {"title": "Conclusions", "content": "Go's model scales well.", "sources": []}
  ],
  "confidence": 0.9
}`

// fakePool starts agents on add and stops them on remove, mirroring the
// registry contract.
type fakePool struct {
	mu      sync.Mutex
	agents  map[string]Agent
	added   []string
	removed []string
}

func newFakePool() *fakePool {
	return &fakePool{agents: make(map[string]Agent)}
}

func (p *fakePool) AddAgent(a Agent) error {
	if err := a.Start(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agents[a.ID()] = a
	p.added = append(p.added, a.ID())
	return nil
}

func (p *fakePool) RemoveAgent(id string) error {
	p.mu.Lock()
	a, ok := p.agents[id]
	delete(p.agents, id)
	p.removed = append(p.removed, id)
	p.mu.Unlock()
	if ok {
		return a.Stop()
	}
	return nil
}

func scriptedWorkflowEngine() *testutil.ScriptedEngine {
	return testutil.NewScriptedEngine().
		Respond("create a comprehensive research plan", planResponse).
		Respond("Analyze the following search results", analysisResponse).
		Respond("merge the following research findings", mergeResponse).
		Respond("Evaluate the current research progress", evalSynthesize).
		Respond("Create a comprehensive synthesis", synthesisResponse).
		Respond("Update the synthesis with new findings", synthesisResponse).
		Respond("Create the final, comprehensive research report", finalSynthesisResponse)
}

func TestOrchestratorFullWorkflow(t *testing.T) {
	fab := fabric.New(nil)
	engine := scriptedWorkflowEngine()
	pool := newFakePool()

	o := NewOrchestrator(fab, engine, newTestSearch(), pool, "sess-1", "Go concurrency")

	var events []core.Event
	o.OnEvent(func(e core.Event) { events = append(events, e) })

	require.NoError(t, o.Run(context.Background()))

	state := o.State()
	assert.Equal(t, core.StatusCompleted, state.Status)
	assert.Equal(t, 100.0, state.Progress)

	plan := o.Plan()
	require.NotNil(t, plan)
	require.Len(t, plan.Subtopics, 2)
	for _, st := range plan.Subtopics {
		assert.Equal(t, core.SubtopicCompleted, st.Status)
	}

	assert.Len(t, o.Findings(), 2, "one finding per subtopic query")

	syntheses := o.Syntheses()
	require.Len(t, syntheses, 2, "one incremental plus one final")
	assert.False(t, syntheses[0].IsFinal)
	assert.True(t, syntheses[1].IsFinal)
	assert.Equal(t, "Final report on Go concurrency.", syntheses[1].Summary)
	assert.Equal(t, syntheses[1], o.LatestSynthesis())

	gaps := o.Gaps()
	require.Len(t, gaps, 1)
	assert.Equal(t, "Channels", gaps[0].Subtopic)
	assert.False(t, gaps[0].Resolved)

	var kinds []string
	for _, e := range events {
		kinds = append(kinds, fmt.Sprintf("%T", e))
	}
	assert.Equal(t, []string{
		"core.PlanCreated",
		"core.IterationStarted",
		"core.SynthesisStarted",
		"core.SynthesisCompleted",
		"core.IterationCompleted",
		"core.SynthesisStarted",
		"core.SynthesisCompleted",
		"core.ResearchCompleted",
	}, kinds)

	completed := events[4].(core.IterationCompleted)
	assert.Equal(t, 1, completed.Iteration)
	assert.Equal(t, 2, completed.FindingCount)

	finalStart := events[5].(core.SynthesisStarted)
	assert.True(t, finalStart.IsFinal)
}

func TestOrchestratorPlanFallback(t *testing.T) {
	fab := fabric.New(nil)
	engine := testutil.NewScriptedEngine().Fallback("no JSON here at all")
	pool := newFakePool()

	o := NewOrchestrator(fab, engine, newTestSearch(), pool, "sess-1", "quantum computing")
	require.NoError(t, o.Run(context.Background()))

	plan := o.Plan()
	require.NotNil(t, plan)
	assert.Equal(t, "quantum computing", plan.MainTopic)
	require.Len(t, plan.Subtopics, 1)
	assert.Equal(t, []string{
		"quantum computing",
		"quantum computing overview",
		"quantum computing explained",
	}, plan.Subtopics[0].SearchQueries)

	// Everything downstream degrades but the session still completes.
	final := o.LatestSynthesis()
	require.NotNil(t, final)
	assert.True(t, final.IsFinal)
	assert.Equal(t, 0.5, final.Confidence)
	assert.Equal(t, core.StatusCompleted, o.State().Status)
}

func TestOrchestratorMaxIterationsBound(t *testing.T) {
	plan := `{"mainTopic": "t", "strategy": "s", "subtopics": [
		{"id": "1", "title": "A", "description": "", "searchQueries": ["a"]},
		{"id": "2", "title": "B", "description": "", "searchQueries": ["b"]},
		{"id": "3", "title": "C", "description": "", "searchQueries": ["c"]},
		{"id": "4", "title": "D", "description": "", "searchQueries": ["d"]},
		{"id": "5", "title": "E", "description": "", "searchQueries": ["e"]}
	]}`

	fab := fabric.New(nil)
	engine := testutil.NewScriptedEngine().
		Respond("create a comprehensive research plan", plan).
		Respond("Analyze the following search results", analysisResponse).
		Respond("merge the following research findings", mergeResponse).
		Respond("Evaluate the current research progress", evalContinue).
		Respond("Create a comprehensive synthesis", synthesisResponse).
		Respond("Update the synthesis with new findings", synthesisResponse).
		Respond("Create the final, comprehensive research report", finalSynthesisResponse)
	pool := newFakePool()

	o := NewOrchestrator(fab, engine, newTestSearch(), pool, "sess-1", "t", func(opts *OrchestratorOptions) {
		opts.Config = core.ResearchConfig{MaxAgents: 1, MaxSearchesPerAgent: 5, DepthLevel: core.DepthMedium}
		opts.ExitCriteria = core.ExitCriteria{MaxIterations: 2, MaxDurationMinutes: 30}
	})

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, 2, o.CurrentIteration())

	completed := 0
	for _, st := range o.Plan().Subtopics {
		if st.Status == core.SubtopicCompleted {
			completed++
		}
	}
	assert.Equal(t, 2, completed, "one subtopic per iteration with a single agent")
	assert.True(t, o.LatestSynthesis().IsFinal)
}

func TestOrchestratorStopDuringRun(t *testing.T) {
	plan := `{"mainTopic": "t", "strategy": "s", "subtopics": [
		{"id": "1", "title": "A", "description": "", "searchQueries": ["a"]},
		{"id": "2", "title": "B", "description": "", "searchQueries": ["b"]},
		{"id": "3", "title": "C", "description": "", "searchQueries": ["c"]},
		{"id": "4", "title": "D", "description": "", "searchQueries": ["d"]}
	]}`

	fab := fabric.New(nil)
	engine := testutil.NewScriptedEngine().
		Respond("create a comprehensive research plan", plan).
		Respond("Analyze the following search results", analysisResponse).
		Respond("merge the following research findings", mergeResponse).
		Respond("Evaluate the current research progress", evalContinue).
		Respond("Create a comprehensive synthesis", synthesisResponse).
		Respond("Create the final, comprehensive research report", finalSynthesisResponse)
	pool := newFakePool()

	o := NewOrchestrator(fab, engine, newTestSearch(), pool, "sess-1", "t", func(opts *OrchestratorOptions) {
		opts.Config = core.ResearchConfig{MaxAgents: 2, MaxSearchesPerAgent: 5, DepthLevel: core.DepthMedium}
	})

	// Event delivery is synchronous, so requesting a stop here lands before
	// the next shouldContinue check.
	o.OnEvent(func(e core.Event) {
		if _, ok := e.(core.IterationCompleted); ok {
			o.RequestStop()
		}
	})

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, 1, o.CurrentIteration(), "loop ends after the iteration that saw the stop")
	assert.True(t, o.LatestSynthesis().IsFinal, "final synthesis still runs")

	pending := 0
	for _, st := range o.Plan().Subtopics {
		if st.Pending() {
			pending++
		}
	}
	assert.Equal(t, 2, pending)
}

func TestOrchestratorStopBeforeRun(t *testing.T) {
	fab := fabric.New(nil)
	engine := scriptedWorkflowEngine()
	pool := newFakePool()

	o := NewOrchestrator(fab, engine, newTestSearch(), pool, "sess-1", "Go concurrency")
	o.AddFeedback(&core.UserFeedback{ID: "fb-1", Type: core.FeedbackStop, Content: "stop now"})

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, 0, o.CurrentIteration(), "no iteration runs after a pre-run stop")
	require.Len(t, o.Syntheses(), 1, "only the final synthesis")
	assert.True(t, o.Syntheses()[0].IsFinal)
	assert.Empty(t, o.Findings())
}

func TestOrchestratorRedirectFeedback(t *testing.T) {
	fab := fabric.New(nil)
	engine := testutil.NewScriptedEngine().
		Respond("create a comprehensive research plan", planResponse).
		Respond("Analyze the following search results", analysisResponse).
		Respond("merge the following research findings", mergeResponse).
		Respond("Evaluate the current research progress", evalContinue).
		Respond("Create a comprehensive synthesis", synthesisResponse).
		Respond("Update the synthesis with new findings", synthesisResponse).
		Respond("Create the final, comprehensive research report", finalSynthesisResponse)
	pool := newFakePool()

	o := NewOrchestrator(fab, engine, newTestSearch(), pool, "sess-1", "Go concurrency")

	fb := &core.UserFeedback{ID: "fb-1", Type: core.FeedbackRedirect, Content: "generics performance"}
	o.AddFeedback(fb)

	require.NoError(t, o.Run(context.Background()))

	plan := o.Plan()
	require.Len(t, plan.Subtopics, 3, "redirect injects a subtopic")
	injected := plan.Subtopics[2]
	assert.Equal(t, "generics performance", injected.Title)
	assert.Equal(t, "User requested focus on: generics performance", injected.Description)
	assert.Equal(t, []string{"generics performance"}, injected.SearchQueries)
	assert.Equal(t, core.SubtopicCompleted, injected.Status, "injected subtopic gets researched")
	assert.True(t, fb.Processed)
}

func TestOrchestratorFeedbackDrainedOnce(t *testing.T) {
	fab := fabric.New(nil)
	pool := newFakePool()
	o := NewOrchestrator(fab, scriptedWorkflowEngine(), newTestSearch(), pool, "sess-1", "t")

	o.mu.Lock()
	o.plan = &core.ResearchPlan{MainTopic: "t"}
	o.mu.Unlock()

	o.AddFeedback(&core.UserFeedback{ID: "fb-1", Type: core.FeedbackRedirect, Content: "x"})

	o.processFeedback()
	o.processFeedback()

	assert.Len(t, o.Plan().Subtopics, 1, "redirect applied exactly once")
}

func TestOrchestratorReconcileGaps(t *testing.T) {
	fab := fabric.New(nil)
	o := NewOrchestrator(fab, testutil.NewScriptedEngine(), newTestSearch(), newFakePool(), "sess-1", "t")

	o.mu.Lock()
	o.gaps = []core.KnowledgeGap{
		{ID: "g1", Subtopic: "A", Description: "missing a"},
		{ID: "g2", Subtopic: "B", Description: "missing b"},
	}
	o.mu.Unlock()

	o.reconcileGaps([]core.KnowledgeGap{
		{ID: "g3", Subtopic: "A", Description: "missing a"},
		{ID: "g4", Subtopic: "C", Description: "missing c"},
	})

	gaps := o.Gaps()
	require.Len(t, gaps, 3)
	assert.False(t, gaps[0].Resolved, "reproduced gap stays open")
	assert.Equal(t, "g1", gaps[0].ID, "reproduced gap keeps its original identity")
	assert.True(t, gaps[1].Resolved, "gap no longer reported is resolved")
	assert.Equal(t, "C", gaps[2].Subtopic, "fresh gap appended")
}

func TestOrchestratorRunTwiceRejected(t *testing.T) {
	fab := fabric.New(nil)
	pool := newFakePool()
	o := NewOrchestrator(fab, scriptedWorkflowEngine(), newTestSearch(), pool, "sess-1", "t")

	started := make(chan struct{})
	unsub := o.OnEvent(func(e core.Event) {
		if _, ok := e.(core.PlanCreated); ok {
			close(started)
		}
	})
	defer unsub()

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	<-started
	err := o.Run(context.Background())
	var stateErr *core.StateError
	require.ErrorAs(t, err, &stateErr)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestOrchestratorFeedbackViaFabric(t *testing.T) {
	fab := fabric.New(nil)
	pool := newFakePool()
	o := NewOrchestrator(fab, scriptedWorkflowEngine(), newTestSearch(), pool, "sess-1", "t")
	require.NoError(t, o.Start())

	fab.Send("manager", o.ID(), core.FeedbackPayload{Type: core.FeedbackGuidance, Content: "focus on benchmarks"}, "sess-1", 0)
	fab.Send("manager", o.ID(), core.StopRequest{}, "sess-1", 0)

	o.mu.Lock()
	queued := len(o.feedback)
	maxIterations := o.exit.MaxIterations
	o.mu.Unlock()

	assert.Equal(t, 1, queued)
	assert.Equal(t, 0, maxIterations, "stop request clamps the iteration bound")
}

func TestOrchestratorFailingWorkerUnblocksIteration(t *testing.T) {
	fab := fabric.New(nil)
	// No analysis rule: every researcher call fails, so workers finish with
	// zero findings.
	engine := testutil.NewScriptedEngine().
		Respond("create a comprehensive research plan", planResponse).
		Respond("merge the following research findings", mergeResponse).
		Respond("Evaluate the current research progress", evalSynthesize).
		Respond("Create a comprehensive synthesis", synthesisResponse).
		Respond("Create the final, comprehensive research report", finalSynthesisResponse)
	pool := newFakePool()

	o := NewOrchestrator(fab, engine, newTestSearch(), pool, "sess-1", "Go concurrency")

	require.NoError(t, o.Run(context.Background()))

	assert.Empty(t, o.Findings())
	plan := o.Plan()
	require.NotNil(t, plan)
	for _, st := range plan.Subtopics {
		assert.Equal(t, core.SubtopicCompleted, st.Status)
	}
	assert.Equal(t, core.StatusCompleted, o.State().Status)
}

// recordingModelLogger captures structured completion records.
type recordingModelLogger struct {
	logging.NoOpLogger
	mu     sync.Mutex
	calls  int
	models []string
}

func (l *recordingModelLogger) LogModelCall(model string, dur time.Duration, success bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.models = append(l.models, model)
}

func TestOrchestratorRecordsModelCalls(t *testing.T) {
	fab := fabric.New(nil)
	engine := scriptedWorkflowEngine()
	pool := newFakePool()
	logger := &recordingModelLogger{}

	o := NewOrchestrator(fab, engine, newTestSearch(), pool, "sess-1", "Go concurrency", func(opts *OrchestratorOptions) {
		opts.Logger = logger
	})
	require.NoError(t, o.Run(context.Background()))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Greater(t, logger.calls, 0, "plan, merge, evaluation and synthesis calls are recorded")
	for _, m := range logger.models {
		assert.Equal(t, "unknown", m, "scripted engine exposes no model id")
	}
}

func TestOrchestratorMarksBatchInProgress(t *testing.T) {
	fab := fabric.New(nil)
	pool := newFakePool()
	inner := scriptedWorkflowEngine()

	// Observe subtopic statuses from a researcher's analysis call, while the
	// batch is still running.
	var o *Orchestrator
	observed := make(chan core.SubtopicStatus, 8)
	engine := model.EngineFunc(func(ctx context.Context, req model.Request) (string, error) {
		if strings.Contains(req.Prompt, "Analyze the following search results") {
			for _, st := range o.Plan().Subtopics {
				select {
				case observed <- st.Status:
				default:
				}
			}
		}
		return inner.Complete(ctx, req)
	})

	o = NewOrchestrator(fab, engine, newTestSearch(), pool, "sess-1", "Go concurrency")
	require.NoError(t, o.Run(context.Background()))
	close(observed)

	var statuses []core.SubtopicStatus
	for st := range observed {
		statuses = append(statuses, st)
	}
	assert.Contains(t, statuses, core.SubtopicInProgress)
	assert.NotContains(t, statuses, core.SubtopicCompleted, "nothing completes before the batch joins")
}

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/fabric"
	"github.com/hupe1980/researchmesh/internal/testutil"
	"github.com/hupe1980/researchmesh/search"
)

const analysisResponse = `{
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
  "suggestedFollowUp": ["go scheduler preemption"],
  "gaps": []
}`

func newTestSearch() *testutil.StubSearch {
	s := testutil.NewStubSearch()
	s.Pages = map[string]*search.Page{
		"https://example.com/a": {URL: "https://example.com/a", Title: "Example", Content: "page body"},
	}
	return s
}

func TestResearcherAssignTask(t *testing.T) {
	fab := fabric.New(nil)
	engine := testutil.NewScriptedEngine().
		Respond("Analyze the following search results", analysisResponse)
	provider := newTestSearch()

	r := NewResearcher(fab, engine, provider, "sess-1")
	require.NoError(t, r.Start())

	var reports []core.FindingReport
	fab.Subscribe("orch-1", func(msg core.Message) error {
		if p, ok := msg.Payload.(core.FindingReport); ok {
			reports = append(reports, p)
		}
		return nil
	})

	fab.Send("orch-1", r.ID(), core.AssignTask{
		Subtopic:      "Goroutine scheduling",
		SearchQueries: []string{"go scheduler", "go runtime threads"},
	}, "sess-1", 1)

	findings := r.Findings()
	require.Len(t, findings, 2, "one finding per query")
	assert.Equal(t, "Goroutine scheduling", findings[0].Category)
	assert.Equal(t, 1, findings[0].Iteration)
	assert.Equal(t, 1.0, findings[0].Novelty)
	assert.Equal(t, 1, findings[0].Version)
	assert.Contains(t, findings[0].Tags, "runtime")
	assert.Contains(t, findings[0].Tags, "https://example.com/a", "source URLs recorded as tags")

	require.Len(t, reports, 1)
	assert.Len(t, reports[0].Findings, 2)

	state := r.State()
	assert.Equal(t, core.StatusCompleted, state.Status)
	assert.Equal(t, 100.0, state.Progress)
	assert.Equal(t, "Goroutine scheduling", state.AssignedSubtopic)
}

func TestResearcherBoundedByMaxSearches(t *testing.T) {
	fab := fabric.New(nil)
	engine := testutil.NewScriptedEngine().
		Respond("Analyze the following search results", analysisResponse)
	provider := newTestSearch()

	r := NewResearcher(fab, engine, provider, "sess-1", func(o *ResearcherOptions) {
		o.MaxSearches = 2
	})
	require.NoError(t, r.Start())

	fab.Send("orch-1", r.ID(), core.AssignTask{
		Subtopic:      "topic",
		SearchQueries: []string{"q1", "q2", "q3", "q4"},
	}, "sess-1", 1)

	assert.Equal(t, []string{"q1", "q2"}, provider.Queries())
}

func TestResearcherUnparseableAnalysis(t *testing.T) {
	fab := fabric.New(nil)
	engine := testutil.NewScriptedEngine().Fallback("I could not produce JSON, sorry.")
	provider := newTestSearch()

	r := NewResearcher(fab, engine, provider, "sess-1")
	require.NoError(t, r.Start())

	fab.Send("orch-1", r.ID(), core.AssignTask{
		Subtopic:      "topic",
		SearchQueries: []string{"q1"},
	}, "sess-1", 1)

	assert.Empty(t, r.Findings(), "malformed analysis yields no findings")
	assert.Equal(t, core.StatusCompleted, r.State().Status, "task still completes")
}

func TestResearcherSkipsFailedQueries(t *testing.T) {
	fab := fabric.New(nil)
	engine := testutil.NewScriptedEngine().
		Respond("Analyze the following search results", analysisResponse)
	provider := newTestSearch()
	provider.Results = map[string][]search.Result{
		"empty": {},
	}

	r := NewResearcher(fab, engine, provider, "sess-1")
	require.NoError(t, r.Start())

	fab.Send("orch-1", r.ID(), core.AssignTask{
		Subtopic:      "topic",
		SearchQueries: []string{"empty", "q2"},
	}, "sess-1", 1)

	assert.Len(t, r.Findings(), 1, "query without results is skipped")
}

func TestResearcherClarification(t *testing.T) {
	fab := fabric.New(nil)
	r := NewResearcher(fab, testutil.NewScriptedEngine(), newTestSearch(), "sess-1")
	require.NoError(t, r.Start())

	var responses []core.ClarificationResponse
	fab.Subscribe("orch-1", func(msg core.Message) error {
		if p, ok := msg.Payload.(core.ClarificationResponse); ok {
			responses = append(responses, p)
		}
		return nil
	})

	fab.Send("orch-1", r.ID(), core.RequestClarification{Question: "which version?"}, "sess-1", 2)

	require.Len(t, responses, 1)
	assert.True(t, responses[0].Clarified)
	assert.Equal(t, core.StatusAnalyzing, r.State().Status)
}

func TestResearcherExpandResearch(t *testing.T) {
	fab := fabric.New(nil)
	engine := testutil.NewScriptedEngine().
		Respond("Analyze the following search results", analysisResponse)
	provider := newTestSearch()

	r := NewResearcher(fab, engine, provider, "sess-1")
	require.NoError(t, r.Start())

	fab.Send("orch-1", r.ID(), core.AssignTask{
		Subtopic:      "topic",
		SearchQueries: []string{"q1"},
	}, "sess-1", 1)
	require.Len(t, r.Findings(), 1)

	fab.Send("orch-1", r.ID(), core.ExpandResearch{AdditionalQueries: []string{"q2", "q3"}}, "sess-1", 2)

	assert.Len(t, r.Findings(), 3, "expansion findings accumulate")
	assert.Equal(t, []string{"q1", "q2", "q3"}, provider.Queries())
}

func TestResearcherStopMessage(t *testing.T) {
	fab := fabric.New(nil)
	r := NewResearcher(fab, testutil.NewScriptedEngine(), newTestSearch(), "sess-1")
	require.NoError(t, r.Start())

	fab.Send("orch-1", r.ID(), core.StopResearch{}, "sess-1", 1)

	assert.Equal(t, core.StatusCompleted, r.State().Status)
}

func TestResearcherStartsWaiting(t *testing.T) {
	fab := fabric.New(nil)
	r := NewResearcher(fab, testutil.NewScriptedEngine(), newTestSearch(), "sess-1")

	require.NoError(t, r.Start())

	assert.Equal(t, core.StatusWaiting, r.State().Status, "started researcher waits for a task")

	err := r.Start()
	var stateErr *core.StateError
	require.ErrorAs(t, err, &stateErr)
}

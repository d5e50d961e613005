package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/agent"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/fabric"
	"github.com/hupe1980/researchmesh/internal/testutil"
	"github.com/hupe1980/researchmesh/search"
)

func newResearcher(t *testing.T, fab *fabric.Fabric, sessionID string) *agent.Researcher {
	t.Helper()
	var provider search.Provider = testutil.NewStubSearch()
	return agent.NewResearcher(fab, testutil.NewScriptedEngine(), provider, sessionID)
}

func TestRegistryAddAndRemove(t *testing.T) {
	fab := fabric.New(nil)
	reg := New()

	r1 := newResearcher(t, fab, "sess-1")
	require.NoError(t, reg.AddAgent(r1))

	assert.Equal(t, r1.ID(), reg.Agent(r1.ID()).ID())
	assert.Len(t, reg.SessionAgents("sess-1"), 1)
	require.NotNil(t, r1.State().StartedAt, "add starts the agent")

	require.NoError(t, reg.RemoveAgent(r1.ID()))
	assert.Nil(t, reg.Agent(r1.ID()))
	assert.Empty(t, reg.SessionAgents("sess-1"))
	assert.Equal(t, core.StatusCompleted, r1.State().Status, "remove stops the agent")
}

func TestRegistryDuplicateID(t *testing.T) {
	fab := fabric.New(nil)
	reg := New()

	r1 := newResearcher(t, fab, "sess-1")
	require.NoError(t, reg.AddAgent(r1))

	err := reg.AddAgent(r1)
	var stateErr *core.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, 1, reg.Stats().TotalAgents)
}

func TestRegistryStartFailureRollsBack(t *testing.T) {
	fab := fabric.New(nil)
	reg := New()

	r1 := newResearcher(t, fab, "sess-1")
	require.NoError(t, r1.Start(), "already started elsewhere")
	require.NoError(t, r1.Stop())
	require.NoError(t, reg.RemoveAgent(r1.ID()), "unknown id is a no-op")

	err := reg.AddAgent(r1)
	require.Error(t, err, "a stopped agent cannot be restarted")
	assert.Nil(t, reg.Agent(r1.ID()))
	assert.Equal(t, 0, reg.Stats().Sessions)
}

func TestRegistryRemoveSessionAgents(t *testing.T) {
	fab := fabric.New(nil)
	reg := New()

	r1 := newResearcher(t, fab, "sess-1")
	r2 := newResearcher(t, fab, "sess-1")
	other := newResearcher(t, fab, "sess-2")
	require.NoError(t, reg.AddAgent(r1))
	require.NoError(t, reg.AddAgent(r2))
	require.NoError(t, reg.AddAgent(other))

	require.NoError(t, reg.RemoveSessionAgents("sess-1"))

	assert.Empty(t, reg.SessionAgents("sess-1"))
	assert.Len(t, reg.SessionAgents("sess-2"), 1)
	assert.Equal(t, core.StatusCompleted, r1.State().Status)
	assert.Equal(t, core.StatusCompleted, r2.State().Status)
}

func TestRegistryEventRelay(t *testing.T) {
	fab := fabric.New(nil)
	reg := New()

	var events []core.Event
	unsub := reg.Subscribe(func(e core.Event) { events = append(events, e) })

	r1 := newResearcher(t, fab, "sess-1")
	require.NoError(t, reg.AddAgent(r1))

	// Start emits an idle transition through the wired listener.
	var statusEvents []core.AgentStatusChanged
	for _, e := range events {
		if sc, ok := e.(core.AgentStatusChanged); ok {
			statusEvents = append(statusEvents, sc)
		}
	}
	require.NotEmpty(t, statusEvents)
	assert.Equal(t, r1.ID(), statusEvents[0].AgentID)
	assert.Equal(t, "sess-1", statusEvents[0].SessionID)
	assert.Equal(t, core.RoleResearcher, statusEvents[0].Role)

	unsub()
	before := len(events)
	require.NoError(t, reg.RemoveAgent(r1.ID()))
	assert.Equal(t, before, len(events), "unsubscribed observer sees nothing")
}

func TestRegistryStats(t *testing.T) {
	fab := fabric.New(nil)
	reg := New()

	require.NoError(t, reg.AddAgent(newResearcher(t, fab, "sess-1")))
	require.NoError(t, reg.AddAgent(newResearcher(t, fab, "sess-1")))
	require.NoError(t, reg.AddAgent(agent.NewSynthesizer(fab, testutil.NewScriptedEngine(), "sess-2", "topic")))

	stats := reg.Stats()
	assert.Equal(t, 3, stats.TotalAgents)
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, 2, stats.ByRole[core.RoleResearcher])
	assert.Equal(t, 1, stats.ByRole[core.RoleSynthesizer])
	assert.Equal(t, 2, stats.ByStatus[core.StatusWaiting])
	assert.Equal(t, 1, stats.ByStatus[core.StatusIdle])
}

func TestRegistryAgentsByRole(t *testing.T) {
	fab := fabric.New(nil)
	reg := New()

	r1 := newResearcher(t, fab, "sess-1")
	require.NoError(t, reg.AddAgent(r1))
	require.NoError(t, reg.AddAgent(agent.NewSynthesizer(fab, testutil.NewScriptedEngine(), "sess-1", "topic")))

	researchers := reg.AgentsByRole(core.RoleResearcher)
	require.Len(t, researchers, 1)
	assert.Equal(t, r1.ID(), researchers[0].ID())
}

func TestRegistryClear(t *testing.T) {
	fab := fabric.New(nil)
	reg := New()

	r1 := newResearcher(t, fab, "sess-1")
	r2 := newResearcher(t, fab, "sess-2")
	require.NoError(t, reg.AddAgent(r1))
	require.NoError(t, reg.AddAgent(r2))

	reg.Clear()

	assert.Equal(t, 0, reg.Stats().TotalAgents)
	assert.Equal(t, core.StatusCompleted, r1.State().Status)
	assert.Equal(t, core.StatusCompleted, r2.State().Status)
}

func TestRegistrySessionAgentStates(t *testing.T) {
	fab := fabric.New(nil)
	reg := New()

	r1 := newResearcher(t, fab, "sess-1")
	require.NoError(t, reg.AddAgent(r1))

	states := reg.SessionAgentStates("sess-1")
	require.Len(t, states, 1)
	assert.Equal(t, r1.ID(), states[0].ID)
	assert.Equal(t, core.StatusWaiting, states[0].Status)
}

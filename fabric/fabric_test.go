package fabric

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

func collect(t *testing.T, f *Fabric, agentID string) *[]core.Message {
	t.Helper()
	var mu sync.Mutex
	got := &[]core.Message{}
	f.Subscribe(agentID, func(m core.Message) error {
		mu.Lock()
		defer mu.Unlock()
		*got = append(*got, m)
		return nil
	})
	return got
}

func TestSend_DeliversToAgentAndSessionSubscribers(t *testing.T) {
	f := New(nil)
	agentGot := collect(t, f, "agent-1")

	var sessionGot []core.Message
	f.SubscribeSession("sess-1", func(m core.Message) error {
		sessionGot = append(sessionGot, m)
		return nil
	})

	msg := f.Send("orch", "agent-1", core.AssignTask{Subtopic: "history"}, "sess-1", 1)

	require.Len(t, *agentGot, 1)
	require.Len(t, sessionGot, 1)
	assert.Equal(t, msg.ID, (*agentGot)[0].ID)
	assert.Equal(t, core.TypeAssignTask, msg.Type)
	assert.Equal(t, "agent-1", msg.To)
	assert.Equal(t, 1, msg.Iteration)
}

func TestSend_NoRetroactiveDelivery(t *testing.T) {
	f := New(nil)
	f.Send("orch", "agent-1", core.StopResearch{}, "sess-1", 1)

	got := collect(t, f, "agent-1")
	assert.Empty(t, *got)
}

func TestBroadcast_ExclusionAndWildcard(t *testing.T) {
	f := New(nil)
	gotA := collect(t, f, "agent-a")
	gotB := collect(t, f, "agent-b")
	gotX := collect(t, f, "agent-x")

	msg := f.Broadcast("orch", core.StopResearch{}, "sess-1", 2, "agent-x")

	assert.Equal(t, core.BroadcastTarget, msg.To)
	require.Len(t, *gotA, 1)
	require.Len(t, *gotB, 1)
	assert.Empty(t, *gotX)
	assert.Equal(t, core.BroadcastTarget, (*gotA)[0].To)
}

func TestSend_HandlerFailureIsolation(t *testing.T) {
	f := New(nil)
	f.Subscribe("agent-1", func(core.Message) error { return errors.New("boom") })
	f.Subscribe("agent-1", func(core.Message) error { panic("worse") })
	got := collect(t, f, "agent-1")

	f.Send("orch", "agent-1", core.StopResearch{}, "sess-1", 1)

	assert.Len(t, *got, 1, "healthy handler still receives the message")
}

func TestUnsubscribe_DuringDelivery(t *testing.T) {
	f := New(nil)

	var unsub func()
	var selfCalls, otherCalls int
	unsub = f.Subscribe("agent-1", func(core.Message) error {
		selfCalls++
		unsub()
		return nil
	})
	f.Subscribe("agent-1", func(core.Message) error {
		otherCalls++
		return nil
	})

	f.Send("orch", "agent-1", core.StopResearch{}, "sess-1", 1)
	f.Send("orch", "agent-1", core.StopResearch{}, "sess-1", 1)

	assert.Equal(t, 1, selfCalls, "unsubscribed handler no longer invoked")
	assert.Equal(t, 2, otherCalls, "remaining handler unaffected")
}

func TestSend_PreservesPerSenderOrder(t *testing.T) {
	f := New(nil)
	got := collect(t, f, "agent-1")

	for i := 0; i < 10; i++ {
		f.Send("orch", "agent-1", core.AssignTask{Subtopic: "s"}, "sess-1", i)
	}

	require.Len(t, *got, 10)
	for i, m := range *got {
		assert.Equal(t, i, m.Iteration)
	}
}

func TestSubscribe_ExactlyOncePerHandler(t *testing.T) {
	f := New(nil)
	calls := 0
	f.Subscribe("agent-1", func(core.Message) error { calls++; return nil })
	f.SubscribeSession("sess-1", func(core.Message) error { calls++; return nil })

	f.Send("orch", "agent-1", core.StopResearch{}, "sess-1", 1)

	assert.Equal(t, 2, calls)
}

package fabric

import (
	"fmt"
	"sync"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
)

// Handler consumes a delivered message. A returned error (or panic) is
// logged and does not block delivery to other handlers; failure isolation is
// per handler, not per message.
type Handler func(core.Message) error

// Fabric routes messages between agent-level and session-level subscribers.
// Delivery is synchronous in the sender's goroutine over a snapshot of the
// current handler sets, so unsubscribing during delivery never corrupts
// iteration and per-sender send order is preserved per handler.
type Fabric struct {
	mu       sync.RWMutex
	nextID   int
	agents   map[string]map[int]Handler
	sessions map[string]map[int]Handler
	logger   logging.Logger
}

// New constructs an empty fabric. A nil logger is substituted with NoOp.
func New(logger logging.Logger) *Fabric {
	return &Fabric{
		agents:   make(map[string]map[int]Handler),
		sessions: make(map[string]map[int]Handler),
		logger:   logging.OrNoOp(logger),
	}
}

// Subscribe registers a handler for messages addressed to agentID and
// returns an idempotent unsubscribe closure.
func (f *Fabric) Subscribe(agentID string, h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.agents[agentID]
	if !ok {
		set = make(map[int]Handler)
		f.agents[agentID] = set
	}
	id := f.nextID
	f.nextID++
	set[id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if set, ok := f.agents[agentID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(f.agents, agentID)
			}
		}
	}
}

// SubscribeSession registers a handler observing every message in a session
// (directed sends and broadcasts alike) and returns an unsubscribe closure.
func (f *Fabric) SubscribeSession(sessionID string, h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sessions[sessionID]
	if !ok {
		set = make(map[int]Handler)
		f.sessions[sessionID] = set
	}
	id := f.nextID
	f.nextID++
	set[id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if set, ok := f.sessions[sessionID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(f.sessions, sessionID)
			}
		}
	}
}

// Send delivers a message to all session-level subscribers for sessionID and
// all agent-level subscribers registered for to. Each registered handler is
// invoked exactly once; order between the two sets is unspecified.
func (f *Fabric) Send(from, to string, payload core.Payload, sessionID string, iteration int) core.Message {
	msg := core.NewMessage(from, to, payload, sessionID, iteration)

	f.mu.RLock()
	handlers := snapshot(f.sessions[sessionID])
	handlers = append(handlers, snapshot(f.agents[to])...)
	f.mu.RUnlock()

	f.deliver(msg, handlers)
	return msg
}

// Broadcast delivers to all agent-level subscribers except those excluded,
// plus all session-level subscribers. The delivered message carries
// to = "*".
func (f *Fabric) Broadcast(from string, payload core.Payload, sessionID string, iteration int, exclude ...string) core.Message {
	msg := core.NewMessage(from, core.BroadcastTarget, payload, sessionID, iteration)

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	f.mu.RLock()
	handlers := snapshot(f.sessions[sessionID])
	for agentID, set := range f.agents {
		if _, excluded := skip[agentID]; excluded {
			continue
		}
		handlers = append(handlers, snapshot(set)...)
	}
	f.mu.RUnlock()

	f.deliver(msg, handlers)
	return msg
}

func (f *Fabric) deliver(msg core.Message, handlers []Handler) {
	for _, h := range handlers {
		if err := f.invoke(msg, h); err != nil {
			f.logger.Error("message handler failed", "type", string(msg.Type), "to", msg.To, "error", err)
		}
	}
}

func (f *Fabric) invoke(msg core.Message, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(msg)
}

func snapshot(set map[int]Handler) []Handler {
	if len(set) == 0 {
		return nil
	}
	handlers := make([]Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	return handlers
}

package orchestrator

import (
	"context"
	"sync"

	"github.com/tetherhq/cli/cmd/tether/cli/agentapi"
	"github.com/tetherhq/cli/cmd/tether/cli/logging"
	"github.com/tetherhq/cli/cmd/tether/cli/watcher"
)

// Hub routes stream events to per-session orchestrators, creating one the
// first time a session id appears. Each session owns its resources
// directly; the hub is only a router.
type Hub struct {
	factory func(sessionID string) *Session

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub returns a hub building sessions with factory.
func NewHub(factory func(sessionID string) *Session) *Hub {
	return &Hub{
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// HandleEvent routes one push event to its session's orchestrator.
func (h *Hub) HandleEvent(ctx context.Context, event agentapi.Event) {
	id := event.Session()
	if id == "" {
		return
	}

	h.mu.Lock()
	sess, ok := h.sessions[id]
	if !ok {
		sess = h.factory(id)
		h.sessions[id] = sess
		logging.Info(ctx, "tracking new session", "session_id", id)
	}
	h.mu.Unlock()

	sess.HandleEvent(ctx, event)
}

// HandleFileEvent fans a watcher event out to every session. File events
// carry no session id; each tracker only records while its turn is open.
func (h *Hub) HandleFileEvent(ctx context.Context, ev watcher.Event) {
	for _, sess := range h.all() {
		sess.HandleFileEvent(ctx, ev)
	}
}

// Wait blocks until every session's in-flight reconciliation finishes.
func (h *Hub) Wait() {
	for _, sess := range h.all() {
		sess.Wait()
	}
}

func (h *Hub) all() []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		out = append(out, sess)
	}
	return out
}

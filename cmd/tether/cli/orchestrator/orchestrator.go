// Package orchestrator glues the agent's event stream to the turn tracker
// and the reconciliation engine. It runs the {Idle, Busy} state machine per
// session: busy starts a turn, idle ends it and kicks off the asynchronous
// fetch-and-reconcile that produces the entries handed to the presenter.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/tetherhq/cli/cmd/tether/cli/agentapi"
	"github.com/tetherhq/cli/cmd/tether/cli/logging"
	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
	"github.com/tetherhq/cli/cmd/tether/cli/turn"
	"github.com/tetherhq/cli/cmd/tether/cli/watcher"
)

// Presenter receives the reconciled entries for a finished turn.
type Presenter interface {
	Present(ctx context.Context, sessionID string, entries []reconcile.Entry)
}

// PresenterFunc adapts a function to the Presenter interface.
type PresenterFunc func(ctx context.Context, sessionID string, entries []reconcile.Entry)

func (f PresenterFunc) Present(ctx context.Context, sessionID string, entries []reconcile.Entry) {
	f(ctx, sessionID, entries)
}

// CommandGate reports whether a user-initiated command is in flight. Edits
// observed while the gate is open are attributed to the human; everything
// else is assumed to be the agent writing. This correlation is a known
// fragility inherited from the host-editor model: programmatic writes made
// inside a user command are misattributed.
type CommandGate interface {
	Active() bool
}

// DiffAPI is the slice of the agent server the orchestrator queries.
// Implemented by agentapi.Client.
type DiffAPI interface {
	Diffs(ctx context.Context, sessionID, messageID string) ([]reconcile.Diff, error)
	SessionSummary(ctx context.Context, sessionID string) (*agentapi.Summary, error)
}

// defaultRetryDelays pace the diff fetch after a turn ends; the server's
// query API may lag behind its own push events.
var defaultRetryDelays = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// Session orchestrates one agent session. It owns the session's tracker and
// reconciliation state directly; lifecycle is explicit, tied to the
// connection that created it.
type Session struct {
	id        string
	tracker   *turn.Tracker
	engine    *reconcile.Engine
	api       DiffAPI
	presenter Presenter
	gate      CommandGate

	retryDelays []time.Duration
	statePath   string

	mu            sync.Mutex
	lastMessageID string
	fetching      bool
	late          []string

	wg sync.WaitGroup
}

// Config carries a Session's collaborators.
type Config struct {
	SessionID string
	Tracker   *turn.Tracker
	Engine    *reconcile.Engine
	API       DiffAPI
	Presenter Presenter

	// Gate may be nil; all edits are then attributed to the agent.
	Gate CommandGate

	// StatePath, when set, is where the session persists its status for
	// other processes to read.
	StatePath string

	// RetryDelays overrides the diff-fetch pacing; nil means the default.
	RetryDelays []time.Duration
}

// NewSession builds a session orchestrator.
func NewSession(cfg Config) *Session {
	delays := cfg.RetryDelays
	if delays == nil {
		delays = defaultRetryDelays
	}
	return &Session{
		id:          cfg.SessionID,
		tracker:     cfg.Tracker,
		engine:      cfg.Engine,
		api:         cfg.API,
		presenter:   cfg.Presenter,
		gate:        cfg.Gate,
		retryDelays: delays,
		statePath:   cfg.StatePath,
	}
}

// ID returns the agent session id this orchestrator serves.
func (s *Session) ID() string { return s.id }

// HandleEvent dispatches one push event. This is the single dispatch point
// over the closed event set; events for other sessions are ignored.
func (s *Session) HandleEvent(ctx context.Context, event agentapi.Event) {
	if event.Session() != s.id {
		return
	}
	ctx = logging.WithSession(ctx, s.id)

	switch e := event.(type) {
	case agentapi.SessionStatus:
		if e.Busy {
			s.onBusy(ctx)
		} else {
			s.onIdle(ctx)
		}
	case agentapi.FileEdited:
		s.tracker.RecordAgentEdit(ctx, e.Path)
	case agentapi.MessageComplete:
		s.mu.Lock()
		s.lastMessageID = e.MessageID
		s.mu.Unlock()
	default:
		logging.Warn(ctx, "unhandled event type", "event", event)
	}
}

func (s *Session) onBusy(ctx context.Context) {
	// Duplicate busy signals while already busy are idempotent.
	if s.tracker.StartTurn(ctx) {
		s.mu.Lock()
		s.late = nil
		s.mu.Unlock()
		s.saveState(ctx)
	}
}

func (s *Session) onIdle(ctx context.Context) {
	snap := s.tracker.EndTurn(ctx)
	if snap == nil {
		return
	}
	s.saveState(ctx)

	s.mu.Lock()
	messageID := s.lastMessageID
	s.fetching = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fetchAndReconcile(ctx, snap, messageID)
	}()
}

// fetchAndReconcile pulls the server's diffs with bounded retry, falls back
// to the session summary, and always reconciles: even an empty server
// payload can yield rescued entries.
func (s *Session) fetchAndReconcile(ctx context.Context, snap *turn.Snapshot, messageID string) {
	diffs := s.fetchDiffs(ctx, messageID)

	s.mu.Lock()
	s.fetching = false
	late := s.late
	s.late = nil
	s.mu.Unlock()

	entries := s.engine.Reconcile(ctx, diffs, snap, late)
	s.saveState(ctx)
	logging.Info(ctx, "turn reconciled",
		"turn", snap.Number(), "server_diffs", len(diffs), "entries", len(entries))
	if len(entries) > 0 {
		s.presenter.Present(ctx, s.id, entries)
	}
}

func (s *Session) fetchDiffs(ctx context.Context, messageID string) []reconcile.Diff {
	for attempt := 0; ; attempt++ {
		diffs, err := s.api.Diffs(ctx, s.id, messageID)
		if err != nil {
			logging.Warn(ctx, "diff fetch failed", "attempt", attempt+1, "error", err)
		} else if len(diffs) > 0 {
			return diffs
		}
		if attempt >= len(s.retryDelays) {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.retryDelays[attempt]):
		}
	}

	// The summary is a coarser view but better than nothing.
	summary, err := s.api.SessionSummary(ctx, s.id)
	if err != nil {
		logging.Warn(ctx, "summary fetch failed", "error", err)
		return nil
	}
	return summary.Diffs
}

// HandleFileEvent feeds one watcher event into the tracker. Events arriving
// while the post-turn diff fetch is still in flight belong to the turn that
// just ended and are buffered for its reconciliation.
func (s *Session) HandleFileEvent(ctx context.Context, ev watcher.Event) {
	ctx = logging.WithSession(ctx, s.id)

	if s.gate != nil && s.gate.Active() {
		s.tracker.RecordHumanEdit(ctx, ev.Path)
	}

	var recorded bool
	switch ev.Kind {
	case watcher.Created:
		recorded = s.tracker.RecordCreate(ctx, ev.Path)
	case watcher.Changed:
		recorded = s.tracker.RecordChange(ctx, ev.Path, ev.Prior)
	case watcher.Deleted, watcher.Renamed:
		recorded = s.tracker.RecordDelete(ctx, ev.Path, ev.Prior)
	}
	if recorded {
		return
	}

	s.mu.Lock()
	if s.fetching {
		s.late = append(s.late, ev.Path)
	}
	s.mu.Unlock()
}

// Wait blocks until any in-flight fetch-and-reconcile finishes.
func (s *Session) Wait() {
	s.wg.Wait()
}

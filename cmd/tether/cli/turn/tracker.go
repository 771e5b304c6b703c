// Package turn owns the mutable state of the agent's current turn: which
// files the agent claimed, which the file system reported changed, which the
// human touched, and the pre-change content captured along the way.
//
// Signals arrive concurrently from the agent event stream, the file-system
// watcher, and document-edit notifications; each per-turn set is a
// lock-free concurrent map so no event-delivery path ever blocks on another.
// The one critical section is the rotation at turn boundaries: EndTurn
// atomically detaches the per-turn state and installs fresh collections, so
// a signal meant for turn N+1 can never leak into snapshot N or vice versa.
package turn

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tetherhq/cli/cmd/tether/cli/capture"
	"github.com/tetherhq/cli/cmd/tether/cli/checkpoint"
	"github.com/tetherhq/cli/cmd/tether/cli/logging"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
)

// turnState holds the per-turn mutable collections. A fresh one is
// installed at every turn start and detached at turn end.
type turnState struct {
	number int

	labelMu sync.Mutex
	label   string

	fsChanged    sync.Map // path -> struct{}
	agentClaimed sync.Map // path -> struct{}
	created      sync.Map // path -> struct{}
	humanEdited  sync.Map // path -> struct{}
	captured     sync.Map // path -> string, first write wins
}

func (st *turnState) setLabel(label string) {
	st.labelMu.Lock()
	st.label = label
	st.labelMu.Unlock()
}

func (st *turnState) checkpointLabel() string {
	st.labelMu.Lock()
	defer st.labelMu.Unlock()
	return st.label
}

// Tracker tracks what happens during the current turn and produces an
// immutable Snapshot at turn end.
type Tracker struct {
	root        string
	sessionID   string
	checkpoints *checkpoint.Store // may be nil (headless/test contexts)

	// mu guards only busy and the cur pointer. Recorders take the read
	// lock to fetch the current state; rotation takes the write lock.
	mu   sync.RWMutex
	busy bool
	cur  *turnState

	turnCount int

	// lastKnown carries file content across turns: the content observed on
	// disk at the end of the last turn that touched the file.
	lastKnown sync.Map // path -> string

	// fallback is the capture chain shared by all before-hooks: disk read,
	// then checkpoint content, then last-known state. The mirror value
	// carried on each file event is prepended per call.
	fallback *capture.Chain
}

// NewTracker creates a tracker rooted at the project directory.
// checkpoints may be nil; checkpoint-dependent behavior degrades gracefully.
func NewTracker(root, sessionID string, checkpoints *checkpoint.Store) *Tracker {
	t := &Tracker{
		root:        root,
		sessionID:   sessionID,
		checkpoints: checkpoints,
	}
	t.fallback = capture.NewChain(
		capture.Disk(root),
		capture.Checkpoint(checkpoints, t.currentLabel),
		capture.LastKnown(t.LastKnownContent),
	)
	return t
}

// Busy reports whether a turn is currently open.
func (t *Tracker) Busy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.busy
}

// TurnNumber returns the number of the current (or most recent) turn.
func (t *Tracker) TurnNumber() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.turnCount
}

// StartTurn opens a new turn. Returns false without touching any state if a
// turn is already open, guarding against duplicate busy signals re-clearing
// in-flight collections. On a real start it installs fresh per-turn sets
// and takes a whole-workspace checkpoint label.
func (t *Tracker) StartTurn(ctx context.Context) bool {
	t.mu.Lock()
	if t.busy {
		t.mu.Unlock()
		return false
	}
	t.busy = true
	t.turnCount++
	st := &turnState{number: t.turnCount}
	t.cur = st
	t.mu.Unlock()

	// Checkpoint creation is slow (full tree write), so it happens outside
	// the lock. Failure is non-fatal: resolution falls through to the next
	// capture source.
	if t.checkpoints != nil {
		label := checkpoint.NewLabel("turn", fmt.Sprintf("%d", st.number))
		if _, err := t.checkpoints.CreateLabeled(ctx, t.sessionID, label,
			fmt.Sprintf("Workspace checkpoint at start of turn %d", st.number)); err != nil {
			logging.Warn(ctx, "turn start checkpoint failed", "error", err.Error(), "turn", st.number)
		} else {
			st.setLabel(label)
		}
	}

	logging.Debug(ctx, "turn started", "turn", st.number)
	return true
}

// EndTurn closes the current turn and returns its immutable snapshot, or
// nil if no turn is open. The detach-and-rotate under the write lock is the
// synchronization boundary: events arriving after it belong to the next
// turn and cannot pollute the snapshot being returned.
func (t *Tracker) EndTurn(ctx context.Context) *Snapshot {
	t.mu.Lock()
	if !t.busy {
		t.mu.Unlock()
		return nil
	}
	t.busy = false
	st := t.cur
	t.cur = nil
	t.mu.Unlock()

	snap := &Snapshot{
		number:       st.number,
		label:        st.checkpointLabel(),
		fsChanged:    drainSet(&st.fsChanged),
		agentClaimed: drainSet(&st.agentClaimed),
		created:      drainSet(&st.created),
		humanEdited:  drainSet(&st.humanEdited),
		captured:     drainMap(&st.captured),
	}

	// The snapshot carries the last-known state from PRIOR turns; this
	// turn's end-of-turn disk reads only serve future turns.
	snap.lastKnown = t.copyLastKnown()

	// Refresh the cross-turn cache with current disk content for every
	// file this turn touched. Files gone from disk keep their old entry:
	// that entry is exactly the fallback a future deletion rescue needs.
	for _, path := range snap.TouchedPaths() {
		data, err := os.ReadFile(paths.Abs(t.root, path))
		if err != nil {
			continue
		}
		t.lastKnown.Store(path, string(data))
	}

	logging.Debug(ctx, "turn ended",
		"turn", snap.number,
		"fs_changed", len(snap.fsChanged),
		"agent_claimed", len(snap.agentClaimed),
		"human_edited", len(snap.humanEdited),
	)
	return snap
}

// RecordAgentEdit records that the agent's event stream explicitly reported
// an edit to path. No-op outside a turn; returns whether it was recorded.
func (t *Tracker) RecordAgentEdit(ctx context.Context, path string) bool {
	st := t.current()
	if st == nil || paths.IsInternal(path) {
		return false
	}
	st.agentClaimed.Store(paths.Normalize(path), struct{}{})
	logging.Debug(ctx, "agent claimed edit", "path", path, "turn", st.number)
	return true
}

// RecordCreate records a physical file creation event.
func (t *Tracker) RecordCreate(ctx context.Context, path string) bool {
	st := t.current()
	if st == nil || paths.IsInternal(path) {
		return false
	}
	p := paths.Normalize(path)
	st.created.Store(p, struct{}{})
	st.fsChanged.Store(p, struct{}{})
	logging.Debug(ctx, "file created", "path", p, "turn", st.number)
	return true
}

// RecordChange records a content-change event. prior carries the watcher
// mirror's last-seen content for the path (empty when unknown); it is the
// first source in the capture fallback chain.
func (t *Tracker) RecordChange(ctx context.Context, path, prior string) bool {
	return t.recordMutation(ctx, path, prior, "changed")
}

// RecordDelete records a deletion event, capturing the file's pre-delete
// content through the fallback chain first.
func (t *Tracker) RecordDelete(ctx context.Context, path, prior string) bool {
	return t.recordMutation(ctx, path, prior, "deleted")
}

// RecordMove records a move: a deletion of oldPath and a creation of
// newPath.
func (t *Tracker) RecordMove(ctx context.Context, oldPath, newPath, prior string) bool {
	recorded := t.RecordDelete(ctx, oldPath, prior)
	if newPath != "" {
		recorded = t.RecordCreate(ctx, newPath) || recorded
	}
	return recorded
}

func (t *Tracker) recordMutation(ctx context.Context, path, prior, kind string) bool {
	st := t.current()
	if st == nil || paths.IsInternal(path) {
		return false
	}
	p := paths.Normalize(path)

	// Capture before recording: we want the original content, and only the
	// first capture in a turn is kept.
	t.captureOnce(ctx, st, p, prior)

	st.fsChanged.Store(p, struct{}{})
	logging.Debug(ctx, "file "+kind, "path", p, "turn", st.number)
	return true
}

// RecordHumanEdit records a document edit attributed to the human. Only
// recorded while a turn is open; the caller is responsible for the active-
// command correlation that distinguishes human typing from agent writes.
func (t *Tracker) RecordHumanEdit(ctx context.Context, path string) bool {
	st := t.current()
	if st == nil || paths.IsInternal(path) {
		return false
	}
	p := paths.Normalize(path)
	st.humanEdited.Store(p, struct{}{})
	logging.Debug(ctx, "human edit recorded", "path", p, "turn", st.number)
	return true
}

// captureOnce resolves pre-change content for path and stores it if no
// capture exists yet this turn (first write wins).
func (t *Tracker) captureOnce(ctx context.Context, st *turnState, path, prior string) {
	if _, exists := st.captured.Load(path); exists {
		return
	}

	var content string
	var ok bool
	if prior != "" {
		content, ok = prior, true
	} else {
		content, _, ok = t.fallback.Resolve(ctx, path)
	}
	if !ok {
		return
	}
	st.captured.LoadOrStore(path, content)
}

// current returns the open turn state, or nil when idle.
func (t *Tracker) current() *turnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.busy {
		return nil
	}
	return t.cur
}

func (t *Tracker) currentLabel() string {
	st := t.current()
	if st == nil {
		return ""
	}
	return st.checkpointLabel()
}

// LastKnownContent returns the cross-turn cached content for path.
func (t *Tracker) LastKnownContent(path string) (string, bool) {
	v, ok := t.lastKnown.Load(paths.Normalize(path))
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SetLastKnown updates the cross-turn cache after an executor restore, so a
// future turn's deletion-rescue path has correct fallback data.
func (t *Tracker) SetLastKnown(path, content string) {
	t.lastKnown.Store(paths.Normalize(path), content)
}

// ForgetLastKnown drops the cross-turn cache entry for a deleted path.
func (t *Tracker) ForgetLastKnown(path string) {
	t.lastKnown.Delete(paths.Normalize(path))
}

func (t *Tracker) copyLastKnown() map[string]string {
	out := make(map[string]string)
	t.lastKnown.Range(func(k, v any) bool {
		if s, ok := v.(string); ok {
			out[k.(string)] = s
		}
		return true
	})
	return out
}

func drainSet(m *sync.Map) map[string]struct{} {
	out := make(map[string]struct{})
	m.Range(func(k, _ any) bool {
		out[k.(string)] = struct{}{}
		return true
	})
	return out
}

func drainMap(m *sync.Map) map[string]string {
	out := make(map[string]string)
	m.Range(func(k, v any) bool {
		if s, ok := v.(string); ok {
			out[k.(string)] = s
		}
		return true
	})
	return out
}

package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetherhq/cli/cmd/tether/cli/agentapi"
	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
	"github.com/tetherhq/cli/cmd/tether/cli/testutil"
	"github.com/tetherhq/cli/cmd/tether/cli/turn"
	"github.com/tetherhq/cli/cmd/tether/cli/watcher"
)

type fakeAPI struct {
	mu        sync.Mutex
	diffs     [][]reconcile.Diff // one response per call, last repeats
	calls     int
	messageID string
	summary   *agentapi.Summary
}

func (f *fakeAPI) Diffs(_ context.Context, _, messageID string) ([]reconcile.Diff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageID = messageID
	idx := f.calls
	f.calls++
	if len(f.diffs) == 0 {
		return nil, nil
	}
	if idx >= len(f.diffs) {
		idx = len(f.diffs) - 1
	}
	return f.diffs[idx], nil
}

func (f *fakeAPI) SessionSummary(context.Context, string) (*agentapi.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summary != nil {
		return f.summary, nil
	}
	return &agentapi.Summary{}, nil
}

type fakePresenter struct {
	mu      sync.Mutex
	entries [][]reconcile.Entry
}

func (p *fakePresenter) Present(_ context.Context, _ string, entries []reconcile.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entries)
}

func (p *fakePresenter) all() [][]reconcile.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries
}

type stubGate struct{ active bool }

func (g *stubGate) Active() bool { return g.active }

type sessionFixture struct {
	dir       string
	session   *Session
	tracker   *turn.Tracker
	api       *fakeAPI
	presenter *fakePresenter
	gate      *stubGate
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	dir := t.TempDir()
	tracker := turn.NewTracker(dir, "s1", nil)
	api := &fakeAPI{}
	presenter := &fakePresenter{}
	gate := &stubGate{}
	session := NewSession(Config{
		SessionID:   "s1",
		Tracker:     tracker,
		Engine:      reconcile.NewEngine(dir, nil, reconcile.NewTable("")),
		API:         api,
		Presenter:   presenter,
		Gate:        gate,
		RetryDelays: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	})
	return &sessionFixture{dir: dir, session: session, tracker: tracker, api: api, presenter: presenter, gate: gate}
}

func TestBusyIdleCycleProducesEntries(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	ctx := context.Background()
	f.api.diffs = [][]reconcile.Diff{{{Path: "a.go", Before: "old", After: "new"}}}
	testutil.WriteFile(t, f.dir, "a.go", "new")

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	f.session.HandleEvent(ctx, agentapi.FileEdited{SessionID: "s1", Path: "a.go"})
	f.session.HandleEvent(ctx, agentapi.MessageComplete{SessionID: "s1", MessageID: "m7"})
	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	f.session.Wait()

	presented := f.presenter.all()
	require.Len(t, presented, 1)
	require.Len(t, presented[0], 1)
	assert.Equal(t, "a.go", presented[0][0].Path)
	assert.Equal(t, "m7", f.api.messageID, "diff query must correlate to the completed message")
}

func TestQuietTurnPresentsNothing(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	ctx := context.Background()

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	f.session.Wait()

	assert.Empty(t, f.presenter.all())
}

func TestForeignSessionEventsAreIgnored(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	ctx := context.Background()

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "other", Busy: true})
	assert.False(t, f.tracker.Busy())
}

func TestDuplicateBusySignalsAreIdempotent(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	ctx := context.Background()

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	assert.Equal(t, 1, f.tracker.TurnNumber())

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	f.session.Wait()
	assert.Empty(t, f.presenter.all())
}

func TestDiffFetchRetriesThenUsesSummary(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	ctx := context.Background()
	// Every diff query comes back empty; the summary carries the payload.
	f.api.summary = &agentapi.Summary{
		SessionID: "s1",
		Diffs:     []reconcile.Diff{{Path: "a.go", Before: "old", After: "new"}},
	}
	testutil.WriteFile(t, f.dir, "a.go", "new")

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	f.session.HandleEvent(ctx, agentapi.FileEdited{SessionID: "s1", Path: "a.go"})
	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	f.session.Wait()

	assert.GreaterOrEqual(t, f.api.calls, 3, "empty responses must be retried")
	presented := f.presenter.all()
	require.Len(t, presented, 1)
	assert.Equal(t, "a.go", presented[0][0].Path)
}

func TestWatcherEventsFeedTheTracker(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	ctx := context.Background()
	f.api.diffs = nil
	testutil.WriteFile(t, f.dir, "gone.go", "delete me")

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	f.session.HandleFileEvent(ctx, watcher.Event{Path: "gone.go", Kind: watcher.Deleted, Prior: "delete me"})
	testutil.RemoveFile(t, f.dir, "gone.go")
	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	f.session.Wait()

	presented := f.presenter.all()
	require.Len(t, presented, 1)
	require.Len(t, presented[0], 1)
	assert.Equal(t, "gone.go", presented[0][0].Path)
	assert.Equal(t, "delete me", presented[0][0].Before)
	assert.True(t, presented[0][0].Rescued)
}

func TestFirstEditToPreExistingFileSurvivesReconciliation(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	ctx := context.Background()
	f.api.diffs = [][]reconcile.Diff{{{Path: "a.go", Before: "old", After: "new"}}}

	// The file predates the watch, so its prior content comes from the
	// mirror seeded at watch start rather than from any earlier event.
	testutil.WriteFile(t, f.dir, "a.go", "old")
	w, err := watcher.New(f.dir, nil)
	require.NoError(t, err)
	defer w.Close()

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	testutil.WriteFile(t, f.dir, "a.go", "new")
	prior, _ := w.MirrorContent("a.go")
	f.session.HandleFileEvent(ctx, watcher.Event{Path: "a.go", Kind: watcher.Changed, Prior: prior})
	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	f.session.Wait()

	presented := f.presenter.all()
	require.Len(t, presented, 1)
	require.Len(t, presented[0], 1, "the turn's only edit must surface")
	assert.Equal(t, "old", presented[0][0].Before)
	assert.Equal(t, "new", presented[0][0].After)
}

func TestGateAttributesEditsToHuman(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	ctx := context.Background()
	f.api.diffs = [][]reconcile.Diff{{{Path: "user.go", Before: "old", After: "typed"}}}
	testutil.WriteFile(t, f.dir, "user.go", "typed")

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	f.gate.active = true
	f.session.HandleFileEvent(ctx, watcher.Event{Path: "user.go", Kind: watcher.Changed, Prior: "old"})
	f.gate.active = false
	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	f.session.Wait()

	assert.Empty(t, f.presenter.all(), "human-edited files never surface")
}

func TestLateFileEventsReachReconciliation(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	ctx := context.Background()
	// First diff query comes back empty so the fetch is still retrying
	// when the late event arrives.
	f.api.diffs = [][]reconcile.Diff{nil, {{Path: "late.go", Before: "old", After: "new"}}}
	f.session.retryDelays = []time.Duration{100 * time.Millisecond}
	testutil.WriteFile(t, f.dir, "late.go", "new")

	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	f.session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	// The write notification arrives after the snapshot rotated but while
	// the diff fetch is still in flight.
	f.session.HandleFileEvent(ctx, watcher.Event{Path: "late.go", Kind: watcher.Changed, Prior: "old"})
	f.session.Wait()

	presented := f.presenter.all()
	require.Len(t, presented, 1)
	require.Len(t, presented[0], 1)
	assert.Equal(t, "late.go", presented[0][0].Path)
}

func TestStatePersistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statePath := filepath.Join(dir, ".tether", "session-state.json")
	tracker := turn.NewTracker(dir, "s1", nil)
	session := NewSession(Config{
		SessionID:   "s1",
		Tracker:     tracker,
		Engine:      reconcile.NewEngine(dir, nil, reconcile.NewTable("")),
		API:         &fakeAPI{},
		Presenter:   &fakePresenter{},
		StatePath:   statePath,
		RetryDelays: []time.Duration{time.Millisecond},
	})
	ctx := context.Background()

	session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: true})
	state, err := LoadState(statePath)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Busy)
	assert.Equal(t, 1, state.Turn)

	session.HandleEvent(ctx, agentapi.SessionStatus{SessionID: "s1", Busy: false})
	session.Wait()
	state, err = LoadState(statePath)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.Busy)

	missing, err := LoadState(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

package reconcile

import (
	"context"
	"os"

	"github.com/tetherhq/cli/cmd/tether/cli/capture"
	"github.com/tetherhq/cli/cmd/tether/cli/checkpoint"
	"github.com/tetherhq/cli/cmd/tether/cli/logging"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/turn"
)

// Engine reconciles server-reported diffs against a turn snapshot and the
// live file system.
type Engine struct {
	root        string
	checkpoints *checkpoint.Store
	pending     *Table
}

// NewEngine returns an engine rooted at the workspace root. checkpoints may
// be nil; the before-resolution chain then skips the checkpoint source.
func NewEngine(root string, checkpoints *checkpoint.Store, pending *Table) *Engine {
	return &Engine{root: root, checkpoints: checkpoints, pending: pending}
}

// Reconcile produces the final list of entries for a finished turn.
// extraEvents carries paths from file-system events that arrived after the
// snapshot rotated, in arrival order.
//
// Surviving entries are stored in the pending table, replacing any prior
// entry for the same path, and returned in input order: server diffs first,
// then rescued candidates. The table is saved to its backing file so other
// processes can act on the entries.
func (e *Engine) Reconcile(ctx context.Context, serverDiffs []Diff, snap *turn.Snapshot, extraEvents []string) []Entry {
	chain := e.beforeChain(snap)

	reported := make(map[string]bool, len(serverDiffs))
	for _, d := range serverDiffs {
		reported[paths.Normalize(d.Path)] = true
	}

	extra := make(map[string]bool, len(extraEvents))
	candidates := snap.CandidatePaths()
	for _, p := range extraEvents {
		p = paths.Normalize(p)
		if !extra[p] {
			extra[p] = true
			candidates = append(candidates, p)
		}
	}

	diffs := make([]Diff, 0, len(serverDiffs)+len(candidates))
	rescued := make(map[string]bool)
	for _, d := range serverDiffs {
		d.Path = paths.Normalize(d.Path)
		diffs = append(diffs, d)
	}
	for _, path := range candidates {
		d, ok := e.rescue(ctx, chain, snap, path, reported)
		if !ok {
			continue
		}
		rescued[path] = true
		diffs = append(diffs, d)
	}

	entries := make([]Entry, 0, len(diffs))
	seen := make(map[string]bool, len(diffs))
	for _, d := range diffs {
		if seen[d.Path] {
			continue
		}
		seen[d.Path] = true

		entry, ok := e.resolve(ctx, chain, snap, d, rescued[d.Path], extra[d.Path])
		if !ok {
			continue
		}
		e.pending.Put(entry)
		entries = append(entries, entry)
	}

	// Persist so review/accept/reject in another process see this turn.
	if err := e.pending.Save(); err != nil {
		logging.Warn(ctx, "persisting pending diffs failed", "error", err)
	}
	return entries
}

// rescue decides whether a candidate the server did not report should be
// turned into a synthetic diff, and builds it.
func (e *Engine) rescue(ctx context.Context, chain *capture.Chain, snap *turn.Snapshot, path string, reported map[string]bool) (Diff, bool) {
	if reported[path] || paths.IsInternal(path) {
		return Diff{}, false
	}
	if snap.HumanEdited(path) {
		logging.Debug(ctx, "rescue suppressed, human edited", "path", path)
		return Diff{}, false
	}

	after, exists := e.diskContent(path)
	captured, hasCapture := snap.CapturedBefore(path)
	claimed := snap.AgentClaimed(path)
	created := snap.Created(path)

	switch {
	case !exists && (hasCapture || claimed):
		// Deletion backed by captured content or an explicit agent claim.
	case exists && created && claimed:
		// Creation needs both physical evidence and an agent claim; the
		// human could have created the file otherwise.
	default:
		logging.Debug(ctx, "rescue suppressed, insufficient evidence",
			"path", path, "exists", exists, "captured", hasCapture,
			"claimed", claimed, "created", created)
		return Diff{}, false
	}

	var before string
	switch {
	case exists && created && claimed:
		// Pure creation: whatever the capture chain returns would be the
		// agent's own freshly written content.
		before = ""
	case hasCapture:
		before = captured
	default:
		resolved, source, ok := chain.Resolve(ctx, path)
		if !ok && !exists {
			logging.Debug(ctx, "rescue dropped, no before content for deleted file", "path", path)
			return Diff{}, false
		}
		logging.Debug(ctx, "rescued before content", "path", path, "source", source)
		before = resolved
	}

	if before == after {
		return Diff{}, false
	}
	logging.Info(ctx, "rescued diff the server omitted", "path", path, "deleted", !exists)
	return Diff{Path: path, Before: before, After: after}, true
}

// resolve applies the before-resolution and filtering rules to a single
// diff and builds its entry.
func (e *Engine) resolve(ctx context.Context, chain *capture.Chain, snap *turn.Snapshot, d Diff, wasRescued, extraEvent bool) (Entry, bool) {
	if snap.HumanEdited(d.Path) {
		logging.Debug(ctx, "diff suppressed, human edited", "path", d.Path)
		return Entry{}, false
	}
	if !snap.HasSignal(d.Path) && !extraEvent {
		logging.Debug(ctx, "diff suppressed, no signal this turn", "path", d.Path)
		return Entry{}, false
	}

	before := d.Before
	source := SourceServer
	switch {
	case d.Before == "" && d.After != "":
		// The server says this is a new file. Trust it; reading the disk
		// here would hand back the agent's own write as the before state.
	default:
		if resolved, src, ok := chain.Resolve(ctx, d.Path); ok {
			before, source = resolved, src
		} else if d.Before == "" && d.After == "" {
			// Pure deletion intent with nothing captured: if the file is
			// still on disk, its current content is the before state.
			if disk, exists := e.diskContent(d.Path); exists {
				before, source = disk, SourceDisk
			}
		}
	}

	if before == d.After {
		logging.Debug(ctx, "diff suppressed, no content change", "path", d.Path)
		return Entry{}, false
	}

	additions, deletions := d.Additions, d.Deletions
	if additions == 0 && deletions == 0 {
		additions, deletions = lineCounts(before, d.After)
	}
	return Entry{
		Path:         d.Path,
		Before:       before,
		After:        d.After,
		Additions:    additions,
		Deletions:    deletions,
		IsNew:        snap.Created(d.Path) && d.Before == "",
		Rescued:      wasRescued,
		Turn:         snap.Number(),
		BeforeSource: source,
	}, true
}

func (e *Engine) beforeChain(snap *turn.Snapshot) *capture.Chain {
	return capture.NewChain(
		capture.SourceFunc(SourceCapture, func(_ context.Context, relPath string) (string, bool) {
			return snap.CapturedBefore(relPath)
		}),
		capture.Checkpoint(e.checkpoints, snap.CheckpointLabel),
		capture.LastKnown(snap.LastKnownBefore),
	)
}

func (e *Engine) diskContent(relPath string) (string, bool) {
	data, err := os.ReadFile(paths.Abs(e.root, relPath))
	if err != nil {
		return "", false
	}
	return string(data), true
}

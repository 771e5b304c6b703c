// Package apply carries out the user's verdict on a pending diff entry:
// accept stages the file into git, reject restores the pre-turn content.
package apply

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tetherhq/cli/cmd/tether/cli/checkpoint"
	"github.com/tetherhq/cli/cmd/tether/cli/logging"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
)

// LastKnownStore receives the content restored by a reject so later turns
// have correct deletion-rescue fallback data. Implemented by turn.Tracker.
type LastKnownStore interface {
	SetLastKnown(path, content string)
	ForgetLastKnown(path string)
}

// Executor applies accept and reject decisions to single entries.
//
// Both operations remove the entry from the pending table only on success;
// a failed operation retains the entry so the user can retry.
type Executor struct {
	root        string
	checkpoints *checkpoint.Store
	pending     *reconcile.Table
	lastKnown   LastKnownStore

	// Notify, if set, is called after every accept or reject with the
	// outcome. err is nil on success.
	Notify func(op, path string, err error)

	runGit func(ctx context.Context, root string, args ...string) (string, error)
}

// NewExecutor returns an executor rooted at the workspace root. checkpoints
// and lastKnown may be nil.
func NewExecutor(root string, checkpoints *checkpoint.Store, pending *reconcile.Table, lastKnown LastKnownStore) *Executor {
	return &Executor{
		root:        root,
		checkpoints: checkpoints,
		pending:     pending,
		lastKnown:   lastKnown,
		runGit:      runGitCommand,
	}
}

func runGitCommand(ctx context.Context, root string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", root}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return strings.TrimSpace(string(output)), nil
}

// Accept stages the entry's file into git and removes it from pending.
//
// Staging a file that no longer exists fails in git; when the entry is a
// deletion that failure is the expected outcome and is treated as success.
func (e *Executor) Accept(ctx context.Context, entry reconcile.Entry) error {
	err := e.accept(ctx, entry)
	if err != nil {
		logging.Error(ctx, "accept failed", "path", entry.Path, "error", err)
	} else {
		e.pending.Remove(entry.Path)
		if saveErr := e.pending.Save(); saveErr != nil {
			logging.Warn(ctx, "persisting pending diffs failed", "error", saveErr)
		}
		logging.Info(ctx, "diff accepted", "path", entry.Path)
	}
	e.notify("accept", entry.Path, err)
	return err
}

func (e *Executor) accept(ctx context.Context, entry reconcile.Entry) error {
	if _, err := e.runGit(ctx, e.root, "add", "--", entry.Path); err != nil {
		if entry.After == "" && !e.fileExists(entry.Path) {
			// The deletion itself is the meaningful outcome; git add can
			// still fail for a path it never tracked.
			if _, trackErr := e.runGit(ctx, e.root, "ls-files", "--error-unmatch", "--", entry.Path); trackErr != nil {
				logging.Debug(ctx, "accepted deletion of untracked file", "path", entry.Path)
				return nil
			}
		}
		return err
	}
	return nil
}

// Reject restores the entry's file to its before content, or deletes it if
// the agent created it this turn. A labeled checkpoint is written first so
// the discarded content stays recoverable.
func (e *Executor) Reject(ctx context.Context, entry reconcile.Entry) error {
	err := e.reject(ctx, entry)
	if err != nil {
		logging.Error(ctx, "reject failed", "path", entry.Path, "error", err)
	} else {
		e.pending.Remove(entry.Path)
		if saveErr := e.pending.Save(); saveErr != nil {
			logging.Warn(ctx, "persisting pending diffs failed", "error", saveErr)
		}
		logging.Info(ctx, "diff rejected", "path", entry.Path, "deleted", entry.IsNew)
	}
	e.notify("reject", entry.Path, err)
	return err
}

func (e *Executor) reject(ctx context.Context, entry reconcile.Entry) error {
	e.checkpointBeforeReject(ctx, entry)

	abs := paths.Abs(e.root, entry.Path)
	if entry.IsNew {
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting rejected file: %w", err)
		}
		if e.lastKnown != nil {
			e.lastKnown.ForgetLastKnown(entry.Path)
		}
		return nil
	}

	// Restoring also covers the case where the file went missing in the
	// meantime; the write recreates it.
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating parent dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(entry.Before), 0o644); err != nil {
		return fmt.Errorf("restoring file content: %w", err)
	}
	if e.lastKnown != nil {
		e.lastKnown.SetLastKnown(entry.Path, entry.Before)
	}
	return nil
}

// checkpointBeforeReject writes a forensic checkpoint so the agent's
// discarded content is recoverable independently of any other state.
// Failure is logged, not fatal; refusing the reject would be worse.
func (e *Executor) checkpointBeforeReject(ctx context.Context, entry reconcile.Entry) {
	if e.checkpoints == nil {
		return
	}
	label := checkpoint.NewLabel("reject", entry.Path)
	msg := fmt.Sprintf("before reject of %s (turn %d)", entry.Path, entry.Turn)
	if _, err := e.checkpoints.CreateLabeled(ctx, "", label, msg); err != nil {
		logging.Warn(ctx, "checkpoint before reject failed", "path", entry.Path, "error", err)
	}
}

// IsTracked reports whether git tracks the entry's path.
func (e *Executor) IsTracked(ctx context.Context, relPath string) bool {
	_, err := e.runGit(ctx, e.root, "ls-files", "--error-unmatch", "--", relPath)
	return err == nil
}

// DiskDrift compares the file's current disk content with the content the
// entry was reconciled against. A drifted file means someone wrote to it
// after reconciliation; callers should confirm before a destructive reject.
func (e *Executor) DiskDrift(entry reconcile.Entry) (current string, drifted bool) {
	data, err := os.ReadFile(paths.Abs(e.root, entry.Path))
	if err != nil {
		// Missing file only counts as drift if the entry expected content.
		return "", entry.After != ""
	}
	current = string(data)
	return current, current != entry.After
}

func (e *Executor) fileExists(relPath string) bool {
	_, err := os.Stat(paths.Abs(e.root, relPath))
	return err == nil
}

func (e *Executor) notify(op, path string, err error) {
	if e.Notify != nil {
		e.Notify(op, path, err)
	}
}

// Package watcher is the file-system change feed: a recursive fsnotify
// watcher that turns raw notifications into repo-relative events. It keeps
// a content mirror so each event can carry the file's last-seen content
// from before the change, which the capture chain uses as its first source.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tetherhq/cli/cmd/tether/cli/logging"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
)

// Kind classifies a file-system event.
type Kind int

const (
	Created Kind = iota
	Changed
	Deleted
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is one observed mutation. Prior carries the mirror's last-seen
// content for the path before this change, empty when the mirror never saw
// the file.
type Event struct {
	Path  string
	Kind  Kind
	Prior string
}

// Watcher watches a workspace tree recursively.
type Watcher struct {
	root           string
	ignorePatterns []string
	fsw            *fsnotify.Watcher

	mu     sync.Mutex
	mirror map[string]string
}

// New returns a watcher rooted at root. ignorePatterns are glob patterns
// matched against base names and repo-relative paths, on top of the always
// ignored internal directories.
func New(root string, ignorePatterns []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fs watcher: %w", err)
	}
	w := &Watcher{
		root:           root,
		ignorePatterns: ignorePatterns,
		fsw:            fsw,
		mirror:         make(map[string]string),
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		rel := paths.Rel(w.root, path)
		if !d.IsDir() {
			// Seed the mirror with current content so the first event for a
			// pre-existing file carries its genuine prior state.
			if rel == "" || paths.IsInternal(rel) || w.ignored(rel) {
				return nil
			}
			if data, readErr := os.ReadFile(path); readErr == nil {
				w.mu.Lock()
				w.mirror[rel] = string(data)
				w.mu.Unlock()
			}
			return nil
		}
		if rel != "" && (paths.IsInternal(rel) || w.ignored(rel)) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			logging.Warn(context.Background(), "cannot watch directory", "dir", path, "error", addErr)
		}
		return nil
	})
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run delivers events to handler until ctx is canceled or the watcher
// closes. Events for ignored and internal paths are dropped. The mirror is
// refreshed after each dispatch so the next event for the same path sees
// this one's content as its prior state.
func (w *Watcher) Run(ctx context.Context, handler func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev, handler)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; keep watching.
			logging.Warn(ctx, "fs watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, handler func(Event)) {
	rel := paths.Rel(w.root, ev.Name)
	if rel == "" || paths.IsInternal(rel) || w.ignored(rel) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// New directories need their own watch before anything inside
			// them changes.
			if err := w.addRecursive(ev.Name); err != nil {
				logging.Warn(ctx, "cannot watch new directory", "dir", ev.Name, "error", err)
			}
			return
		}
	}

	var kind Kind
	switch {
	case ev.Has(fsnotify.Create):
		kind = Created
	case ev.Has(fsnotify.Write):
		kind = Changed
	case ev.Has(fsnotify.Remove):
		kind = Deleted
	case ev.Has(fsnotify.Rename):
		kind = Renamed
	default:
		return // chmod and friends
	}

	w.mu.Lock()
	prior := w.mirror[rel]
	w.mu.Unlock()

	handler(Event{Path: rel, Kind: kind, Prior: prior})

	w.mu.Lock()
	defer w.mu.Unlock()
	switch kind {
	case Deleted, Renamed:
		delete(w.mirror, rel)
	default:
		if data, err := os.ReadFile(ev.Name); err == nil {
			w.mirror[rel] = string(data)
		}
	}
}

// MirrorContent returns the mirror's last-seen content for a path.
func (w *Watcher) MirrorContent(rel string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	content, ok := w.mirror[rel]
	return content, ok
}

// SeedMirror records content for a path without an event, used after a
// reject restores a file.
func (w *Watcher) SeedMirror(rel, content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mirror[rel] = content
}

func (w *Watcher) ignored(rel string) bool {
	base := filepath.Base(rel)
	for _, pattern := range w.ignorePatterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tetherhq/cli/cmd/tether/cli/jsonutil"
)

// Table is the pending-diffs table: entries produced by reconciliation,
// keyed by path, held until the user accepts or rejects them. A later
// reconciliation pass replaces any prior entry for the same path.
//
// The table is optionally backed by a JSON file so that accept and reject
// commands running in a separate process see the entries the watcher
// process produced.
type Table struct {
	entries sync.Map // path -> Entry

	persistPath string
}

// NewTable returns a table backed by persistPath. An empty persistPath
// keeps the table in memory only.
func NewTable(persistPath string) *Table {
	return &Table{persistPath: persistPath}
}

// Put stores or replaces the entry for its path.
func (t *Table) Put(e Entry) {
	t.entries.Store(e.Path, e)
}

// Get returns the pending entry for path, if any.
func (t *Table) Get(path string) (Entry, bool) {
	v, ok := t.entries.Load(path)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Remove drops the entry for path. Removing an absent path is a no-op.
func (t *Table) Remove(path string) {
	t.entries.Delete(path)
}

// All returns every pending entry, sorted by path.
func (t *Table) All() []Entry {
	var out []Entry
	t.entries.Range(func(_, v any) bool {
		out = append(out, v.(Entry))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of pending entries.
func (t *Table) Len() int {
	n := 0
	t.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Save writes the current entries to the backing file. No-op without one.
func (t *Table) Save() error {
	if t.persistPath == "" {
		return nil
	}
	data, err := jsonutil.MarshalIndentWithNewline(t.All(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pending diffs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.persistPath), 0o755); err != nil {
		return fmt.Errorf("creating pending dir: %w", err)
	}
	if err := jsonutil.WriteFileAtomic(t.persistPath, data); err != nil {
		return fmt.Errorf("writing pending diffs: %w", err)
	}
	return nil
}

// Load replaces the table's contents with the backing file's. A missing
// file loads an empty table.
func (t *Table) Load() error {
	if t.persistPath == "" {
		return nil
	}
	data, err := os.ReadFile(t.persistPath)
	if errors.Is(err, fs.ErrNotExist) {
		t.clear()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading pending diffs: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing pending diffs: %w", err)
	}
	t.clear()
	for _, e := range entries {
		t.entries.Store(e.Path, e)
	}
	return nil
}

func (t *Table) clear() {
	t.entries.Range(func(k, _ any) bool {
		t.entries.Delete(k)
		return true
	})
}

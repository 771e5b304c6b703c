package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
)

// pendingSessions lists session ids that have a persisted pending-diffs
// file, sorted for stable output.
func pendingSessions(commonDir string) ([]string, error) {
	dir := filepath.Join(commonDir, filepath.FromSlash(paths.PendingDir))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// loadPendingTable loads one session's pending diffs, bound to its backing
// file so removals persist.
func loadPendingTable(commonDir, sessionID string) (*reconcile.Table, error) {
	table := reconcile.NewTable(paths.PendingFile(commonDir, sessionID))
	if err := table.Load(); err != nil {
		return nil, err
	}
	return table, nil
}

// findPendingEntry locates a pending entry by path across all sessions.
// Returns the entry, its session's table, and whether it was found.
func findPendingEntry(commonDir, path string) (reconcile.Entry, *reconcile.Table, bool, error) {
	ids, err := pendingSessions(commonDir)
	if err != nil {
		return reconcile.Entry{}, nil, false, err
	}
	normalized := paths.Normalize(path)
	for _, id := range ids {
		table, err := loadPendingTable(commonDir, id)
		if err != nil {
			return reconcile.Entry{}, nil, false, err
		}
		if entry, ok := table.Get(normalized); ok {
			return entry, table, true, nil
		}
	}
	return reconcile.Entry{}, nil, false, nil
}

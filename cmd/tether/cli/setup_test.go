package cli

import (
	"testing"

	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/settings"
	"github.com/tetherhq/cli/cmd/tether/cli/testutil"
)

// setupTestDir creates a temp directory and changes to it.
func setupTestDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	paths.ClearRepoRootCache()
	return tmpDir
}

// setupTestRepo creates a temp directory with a git repo initialized and
// changes to it.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	tmpDir := setupTestDir(t)
	testutil.InitRepo(t, tmpDir)
	return tmpDir
}

// writeSettings persists the given settings in the current test repo.
func writeSettings(t *testing.T, root string, s *settings.Settings) {
	t.Helper()
	if err := settings.Save(root, s); err != nil {
		t.Fatalf("settings.Save() error = %v", err)
	}
}

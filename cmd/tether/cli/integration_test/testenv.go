//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"

	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
)

// testBinaryPath holds the path to the CLI binary built once in TestMain.
// All tests share this binary to avoid repeated builds.
var testBinaryPath string

// getTestBinary returns the path to the shared test binary.
// It panics if TestMain hasn't run (testBinaryPath is empty).
func getTestBinary() string {
	if testBinaryPath == "" {
		panic("testBinaryPath not set - TestMain must run before tests")
	}
	return testBinaryPath
}

// TestEnv manages an isolated test environment for integration tests.
// Note: the working directory is never changed, so tests can run in
// parallel; CLI commands run with cmd.Dir set to RepoDir instead.
type TestEnv struct {
	T       *testing.T
	RepoDir string
}

// NewRepoEnv creates a TestEnv with an initialized git repository.
func NewRepoEnv(t *testing.T) *TestEnv {
	t.Helper()

	// Resolve symlinks on macOS where /var -> /private/var so the CLI
	// subprocess and the test see consistent paths.
	repoDir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(repoDir); err == nil {
		repoDir = resolved
	}

	env := &TestEnv{T: t, RepoDir: repoDir}
	env.initRepo()
	return env
}

func (env *TestEnv) initRepo() {
	env.T.Helper()

	repo, err := git.PlainInit(env.RepoDir, false)
	if err != nil {
		env.T.Fatalf("failed to init git repo: %v", err)
	}

	cfg, err := repo.Config()
	if err != nil {
		env.T.Fatalf("failed to get repo config: %v", err)
	}
	cfg.User.Name = "Test User"
	cfg.User.Email = "test@example.com"
	if err := repo.SetConfig(cfg); err != nil {
		env.T.Fatalf("failed to set repo config: %v", err)
	}
}

// WriteFile creates a file with the given content in the repo directory.
func (env *TestEnv) WriteFile(path, content string) {
	env.T.Helper()

	fullPath := filepath.Join(env.RepoDir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		env.T.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		env.T.Fatalf("failed to write file %s: %v", path, err)
	}
}

// ReadFile reads a file from the repo directory.
func (env *TestEnv) ReadFile(path string) string {
	env.T.Helper()

	data, err := os.ReadFile(filepath.Join(env.RepoDir, path))
	if err != nil {
		env.T.Fatalf("failed to read file %s: %v", path, err)
	}
	return string(data)
}

// FileExists reports whether a path exists in the repo directory.
func (env *TestEnv) FileExists(path string) bool {
	_, err := os.Stat(filepath.Join(env.RepoDir, path))
	return err == nil
}

// SeedPending persists pending diff entries for a session, the way the run
// daemon would after reconciling a turn.
func (env *TestEnv) SeedPending(sessionID string, entries ...reconcile.Entry) {
	env.T.Helper()

	commonDir := filepath.Join(env.RepoDir, ".git")
	table := reconcile.NewTable(paths.PendingFile(commonDir, sessionID))
	for _, e := range entries {
		table.Put(e)
	}
	if err := table.Save(); err != nil {
		env.T.Fatalf("failed to seed pending diffs: %v", err)
	}
}

// LoadPending reloads a session's pending table from disk.
func (env *TestEnv) LoadPending(sessionID string) *reconcile.Table {
	env.T.Helper()

	commonDir := filepath.Join(env.RepoDir, ".git")
	table := reconcile.NewTable(paths.PendingFile(commonDir, sessionID))
	if err := table.Load(); err != nil {
		env.T.Fatalf("failed to load pending diffs: %v", err)
	}
	return table
}

// RunCommand executes a CLI command in the repo directory and returns its
// combined output.
func (env *TestEnv) RunCommand(args ...string) (string, error) {
	env.T.Helper()

	cmd := exec.Command(getTestBinary(), args...)
	cmd.Dir = env.RepoDir
	cmd.Env = append(os.Environ(), "TETHER_TELEMETRY_OPTOUT=1")
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// GitStaged returns the staged paths reported by git.
func (env *TestEnv) GitStaged() string {
	env.T.Helper()

	cmd := exec.Command("git", "-C", env.RepoDir, "diff", "--cached", "--name-only")
	output, err := cmd.CombinedOutput()
	if err != nil {
		env.T.Fatalf("git diff --cached failed: %v\n%s", err, output)
	}
	return string(output)
}

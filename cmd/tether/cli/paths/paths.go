// Package paths provides path constants and resolution helpers for the
// Tether CLI. Everything that crosses a component boundary uses
// project-relative paths with forward slashes; this package is the single
// place where those are converted to and from absolute on-disk paths.
package paths

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Directory constants
const (
	TetherDir     = ".tether"
	TetherTmpDir  = ".tether/tmp"
	LogsDir       = ".tether/logs"
	PendingDir    = "tether/pending"
	SettingsFile  = ".tether/settings.json"
	LocalSettings = ".tether/settings.local.json"
)

// CheckpointBranchName is the branch holding safety checkpoints of the
// working tree. Checkpoints are resolvable by label via refs under LabelRefPrefix.
const CheckpointBranchName = "tether/checkpoints"

// LabelRefPrefix is the reference namespace for named checkpoint labels.
const LabelRefPrefix = "refs/tether/labels/"

// LabelTrailerKey is the commit trailer carrying the checkpoint label.
const LabelTrailerKey = "Tether-Label"

// SessionTrailerKey identifies which session created a checkpoint commit.
const SessionTrailerKey = "Tether-Session"

// repoRootCache caches the repository root to avoid repeated git commands.
// Keyed by the current working directory to handle directory changes.
var (
	repoRootMu       sync.RWMutex
	repoRootCache    string
	repoRootCacheDir string
)

// RepoRoot returns the git repository root directory.
// Uses 'git rev-parse --show-toplevel' which works from any subdirectory.
// The result is cached per working directory.
// Returns an error if not inside a git repository.
func RepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}

	repoRootMu.RLock()
	if repoRootCache != "" && repoRootCacheDir == cwd {
		cached := repoRootCache
		repoRootMu.RUnlock()
		return cached, nil
	}
	repoRootMu.RUnlock()

	cmd := exec.CommandContext(context.Background(), "git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	root := strings.TrimSpace(string(output))

	repoRootMu.Lock()
	repoRootCache = root
	repoRootCacheDir = cwd
	repoRootMu.Unlock()

	return root, nil
}

// ClearRepoRootCache clears the cached repository root.
// This is primarily useful for testing when changing directories.
func ClearRepoRootCache() {
	repoRootMu.Lock()
	repoRootCache = ""
	repoRootCacheDir = ""
	repoRootMu.Unlock()
}

// RepoRootOr returns the repository root, or the fallback if not inside a
// git repository.
func RepoRootOr(fallback string) string {
	root, err := RepoRoot()
	if err != nil {
		return fallback
	}
	return root
}

// Abs returns the absolute on-disk path for a project-relative path.
// Already-absolute paths are returned unchanged.
func Abs(root, relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(root, filepath.FromSlash(relPath))
}

// Rel converts an absolute path to a project-relative, slash-separated path.
// Returns empty string if the path lies outside the project root.
func Rel(root, absPath string) string {
	if !filepath.IsAbs(absPath) {
		return Normalize(absPath)
	}
	relPath, err := filepath.Rel(root, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(relPath)
}

// Normalize converts a relative path to forward-slash form and strips any
// leading "./".
func Normalize(relPath string) string {
	p := filepath.ToSlash(relPath)
	return strings.TrimPrefix(p, "./")
}

// GitCommonDir returns the shared git directory. In a regular checkout this
// is .git/; in a worktree it is the main repo's .git/. Cross-process state
// (pending diffs, session status) lives under it so every worktree and
// process sees the same files.
func GitCommonDir() (string, error) {
	cmd := exec.CommandContext(context.Background(), "git", "rev-parse", "--git-common-dir")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	commonDir := strings.TrimSpace(string(output))
	// Relative output is resolved against the working directory.
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Join(".", commonDir)
	}
	return filepath.Clean(commonDir), nil
}

// PendingFile returns the on-disk location of a session's pending diffs.
func PendingFile(commonDir, sessionID string) string {
	return filepath.Join(commonDir, filepath.FromSlash(PendingDir), sessionID+".json")
}

// SessionStateFile returns the on-disk location of a session's status file.
func SessionStateFile(commonDir, sessionID string) string {
	return filepath.Join(commonDir, "tether", "state", sessionID+".json")
}

// IsInternal returns true if the path belongs to CLI or VCS infrastructure
// (inside .tether or .git). Internal paths never participate in diff
// tracking or reconciliation.
func IsInternal(relPath string) bool {
	p := Normalize(relPath)
	return p == TetherDir || p == ".git" ||
		strings.HasPrefix(p, TetherDir+"/") || strings.HasPrefix(p, ".git/")
}

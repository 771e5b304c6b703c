// Package versioncheck nudges the user toward a newer release. It asks the
// GitHub releases API at most once per day, remembers the last attempt in
// ~/.config/tether, and stays silent on every failure so a flaky network
// never breaks a command.
package versioncheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/tetherhq/cli/cmd/tether/cli/jsonutil"
	"github.com/tetherhq/cli/cmd/tether/cli/logging"
)

const (
	checkInterval  = 24 * time.Hour
	requestTimeout = 2 * time.Second

	// Release payloads are tiny; anything bigger is not GitHub.
	maxResponseBytes = 1 << 20
)

// releaseURL is a var so tests can point it at a local server.
var releaseURL = "https://api.github.com/repos/tetherhq/cli/releases/latest"

// checkState is what survives between invocations: only when we last asked,
// successfully or not.
type checkState struct {
	CheckedAt time.Time `json:"checked_at"`
}

// CheckAndNotify prints an upgrade hint on cmd's stdout when a newer release
// exists. Hidden commands and dev builds skip the check, and every error is
// swallowed after a debug log.
func CheckAndNotify(cmd *cobra.Command, currentVersion string) {
	if cmd.Hidden || currentVersion == "" || currentVersion == "dev" {
		return
	}

	path, err := statePath()
	if err != nil {
		return
	}
	state := loadState(path)
	if time.Since(state.CheckedAt) < checkInterval {
		return
	}

	ctx := context.Background()
	latest, err := latestRelease(ctx)

	// Record the attempt either way so failures are not retried on every
	// invocation.
	state.CheckedAt = time.Now()
	if saveErr := saveState(path, state); saveErr != nil {
		logging.Debug(ctx, "version check state not saved", "error", saveErr)
	}
	if err != nil {
		logging.Debug(ctx, "version check failed", "error", err)
		return
	}

	if outdated(currentVersion, latest) {
		fmt.Fprintf(cmd.OutOrStdout(),
			"\nA newer version of tether is available: %s (current: %s)\nRun '%s' to update.\n",
			latest, currentVersion, upgradeHint())
	}
}

func statePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tether", "version_check.json"), nil
}

// loadState returns the zero state when the file is missing or unreadable;
// that just means the next check runs now.
func loadState(path string) checkState {
	var state checkState
	data, err := os.ReadFile(path)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return checkState{}
	}
	return state
}

func saveState(path string, state checkState) error {
	data, err := jsonutil.MarshalIndentWithNewline(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return jsonutil.WriteFileAtomic(path, data)
}

// latestRelease returns the tag of the newest stable release.
func latestRelease(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "tether-cli")

	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching latest release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release endpoint returned %d", resp.StatusCode)
	}

	var release struct {
		TagName    string `json:"tag_name"`
		Prerelease bool   `json:"prerelease"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&release); err != nil {
		return "", fmt.Errorf("decoding release: %w", err)
	}
	if release.Prerelease {
		return "", errors.New("latest release is a prerelease")
	}
	if release.TagName == "" {
		return "", errors.New("release has no tag")
	}
	return release.TagName, nil
}

// outdated reports whether current is semantically older than latest.
func outdated(current, latest string) bool {
	return semver.Compare(canonical(current), canonical(latest)) < 0
}

func canonical(version string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}

// upgradeHint picks the update command matching how the binary was
// installed. Homebrew installs run out of the Cellar behind a symlink.
func upgradeHint() string {
	const goInstall = "go install github.com/tetherhq/cli/cmd/tether@latest"
	execPath, err := os.Executable()
	if err != nil {
		return goInstall
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}
	if strings.Contains(execPath, "/Cellar/") || strings.Contains(execPath, "/homebrew/") {
		return "brew upgrade tether"
	}
	return goInstall
}

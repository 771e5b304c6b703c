// Package settings provides configuration loading for Tether.
// This package is separate from cli so leaf packages can import it without
// creating an import cycle.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tetherhq/cli/cmd/tether/cli/jsonutil"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
)

// DefaultServerURL is the agent server base URL when none is configured.
const DefaultServerURL = "http://127.0.0.1:8317"

// DefaultProbePorts are the localhost ports probed by `tether connect` when
// discovering a running agent server.
var DefaultProbePorts = []int{8317, 8318, 8319, 4096, 4097, 3284}

// Settings represents the .tether/settings.json configuration.
type Settings struct {
	// ServerURL is the base URL of the agent's local HTTP server.
	ServerURL string `json:"server_url"`

	// Enabled indicates whether Tether is active. When false, CLI commands
	// show a disabled message. Defaults to true.
	Enabled bool `json:"enabled"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// Can be overridden by the TETHER_LOG_LEVEL environment variable.
	// Defaults to "info".
	LogLevel string `json:"log_level,omitempty"`

	// IgnorePatterns are additional glob patterns excluded from file-system
	// observation (on top of .git and .tether).
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`

	// ProbePorts overrides the ports scanned during server discovery.
	ProbePorts []int `json:"probe_ports,omitempty"`

	// Telemetry controls anonymous usage analytics.
	// nil = not asked yet, true = opted in, false = opted out
	Telemetry *bool `json:"telemetry,omitempty"`
}

// Load loads settings from .tether/settings.json, then applies any overrides
// from .tether/settings.local.json if it exists. Returns default settings if
// neither file exists. Works from any subdirectory within the repository.
func Load() (*Settings, error) {
	root := paths.RepoRootOr(".")
	return LoadFrom(root)
}

// LoadFrom loads settings rooted at the given project directory.
func LoadFrom(root string) (*Settings, error) {
	s, err := loadFromFile(filepath.Join(root, filepath.FromSlash(paths.SettingsFile)))
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	localData, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(paths.LocalSettings))) //nolint:gosec // path derived from constants
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading local settings file: %w", err)
		}
	} else {
		if err := json.Unmarshal(localData, s); err != nil {
			return nil, fmt.Errorf("merging local settings: %w", err)
		}
	}

	applyDefaults(s)
	return s, nil
}

// loadFromFile loads settings from a specific file path.
// Returns default settings if the file doesn't exist.
func loadFromFile(filePath string) (*Settings, error) {
	s := &Settings{
		ServerURL: DefaultServerURL,
		Enabled:   true,
	}

	data, err := os.ReadFile(filePath) //nolint:gosec // path is from caller
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("%w", err)
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	return s, nil
}

func applyDefaults(s *Settings) {
	if s.ServerURL == "" {
		s.ServerURL = DefaultServerURL
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if len(s.ProbePorts) == 0 {
		s.ProbePorts = DefaultProbePorts
	}
}

// Save writes the settings to .tether/settings.json under root, creating the
// directory if needed.
func Save(root string, s *Settings) error {
	dir := filepath.Join(root, paths.TetherDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	data, err := jsonutil.MarshalIndentWithNewline(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	if err := jsonutil.WriteFileAtomic(filepath.Join(root, filepath.FromSlash(paths.SettingsFile)), data); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

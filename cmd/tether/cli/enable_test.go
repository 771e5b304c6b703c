package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tetherhq/cli/cmd/tether/cli/settings"
)

func TestSetEnabled_Disable(t *testing.T) {
	root := setupTestRepo(t)

	var stdout bytes.Buffer
	if err := setEnabled(&stdout, false); err != nil {
		t.Fatalf("setEnabled() error = %v", err)
	}

	if !strings.Contains(stdout.String(), "tether disabled") {
		t.Errorf("expected output to confirm disable, got: %s", stdout.String())
	}

	s, err := settings.LoadFrom(root)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if s.Enabled {
		t.Error("settings should record disabled state")
	}
}

func TestSetEnabled_ReEnable(t *testing.T) {
	root := setupTestRepo(t)
	writeSettings(t, root, &settings.Settings{Enabled: false})

	var stdout bytes.Buffer
	if err := setEnabled(&stdout, true); err != nil {
		t.Fatalf("setEnabled() error = %v", err)
	}

	if !strings.Contains(stdout.String(), "tether enabled") {
		t.Errorf("expected output to confirm enable, got: %s", stdout.String())
	}

	s, err := settings.LoadFrom(root)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if !s.Enabled {
		t.Error("settings should record enabled state")
	}
}

func TestSetEnabled_AlreadyEnabled(t *testing.T) {
	setupTestRepo(t)

	// Enabled is the default, so enabling again is a no-op.
	var stdout bytes.Buffer
	if err := setEnabled(&stdout, true); err != nil {
		t.Fatalf("setEnabled() error = %v", err)
	}

	if !strings.Contains(stdout.String(), "already enabled") {
		t.Errorf("expected 'already enabled', got: %s", stdout.String())
	}
}

func TestSetEnabled_NotGitRepository(t *testing.T) {
	setupTestDir(t)

	var stdout bytes.Buffer
	if err := setEnabled(&stdout, true); err == nil {
		t.Fatal("setEnabled() expected error outside a git repository")
	}
}

package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/tetherhq/cli/cmd/tether/cli/jsonutil"
	"github.com/tetherhq/cli/cmd/tether/cli/orchestrator"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
	"github.com/tetherhq/cli/cmd/tether/cli/settings"
)

// newTestCmd returns a bare cobra command with a context, suitable for
// passing to run functions outside Execute.
func newTestCmd(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.SetContext(context.Background())
	return cmd
}

// newHealthServer serves a 200 on /health and closes with the test.
func newHealthServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRunStatus_NotGitRepository(t *testing.T) {
	setupTestDir(t)

	var stdout bytes.Buffer
	if err := runStatus(newTestCmd(t), &stdout); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "not a git repository") {
		t.Errorf("expected 'not a git repository', got: %s", stdout.String())
	}
}

func TestRunStatus_EnabledWithServer(t *testing.T) {
	root := setupTestRepo(t)
	server := newHealthServer(t)
	writeSettings(t, root, &settings.Settings{Enabled: true, ServerURL: server.URL})

	var stdout bytes.Buffer
	if err := runStatus(newTestCmd(t), &stdout); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "tether is enabled") {
		t.Errorf("expected enabled line, got: %s", output)
	}
	if !strings.Contains(output, "✓ agent server "+server.URL) {
		t.Errorf("expected reachable server line, got: %s", output)
	}
}

func TestRunStatus_Disabled(t *testing.T) {
	root := setupTestRepo(t)
	server := newHealthServer(t)
	writeSettings(t, root, &settings.Settings{Enabled: false, ServerURL: server.URL})

	var stdout bytes.Buffer
	if err := runStatus(newTestCmd(t), &stdout); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "tether is disabled") {
		t.Errorf("expected disabled line, got: %s", stdout.String())
	}
}

func TestRunStatus_ServerUnreachable(t *testing.T) {
	root := setupTestRepo(t)
	// A server that is immediately closed leaves a refused port behind.
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	writeSettings(t, root, &settings.Settings{Enabled: true, ServerURL: url})

	var stdout bytes.Buffer
	if err := runStatus(newTestCmd(t), &stdout); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "not responding") {
		t.Errorf("expected unreachable server line, got: %s", stdout.String())
	}
}

func TestRunStatus_ReportsSessionsAndPending(t *testing.T) {
	root := setupTestRepo(t)
	server := newHealthServer(t)
	writeSettings(t, root, &settings.Settings{Enabled: true, ServerURL: server.URL})

	commonDir := seedPending(t, root, "sess-1",
		reconcile.Entry{Path: "a.go", After: "a"},
		reconcile.Entry{Path: "b.go", After: "b"},
	)

	state := orchestrator.State{
		SessionID: "sess-1",
		Busy:      true,
		Turn:      3,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := jsonutil.MarshalIndentWithNewline(state, "", "  ")
	if err != nil {
		t.Fatalf("marshaling state: %v", err)
	}
	statePath := paths.SessionStateFile(commonDir, "sess-1")
	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(statePath, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var stdout bytes.Buffer
	if err := runStatus(newTestCmd(t), &stdout); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "session sess-1: busy, turn 3") {
		t.Errorf("expected session line, got: %s", output)
	}
	if !strings.Contains(output, "2 pending diff(s)") {
		t.Errorf("expected pending count, got: %s", output)
	}
}

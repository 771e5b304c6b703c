package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tetherhq/cli/cmd/tether/cli/jsonutil"
	"github.com/tetherhq/cli/cmd/tether/cli/logging"
)

// State is the session status snapshot persisted after every transition so
// the status command, running in another process, can report it.
type State struct {
	SessionID string    `json:"session_id"`
	Busy      bool      `json:"busy"`
	Turn      int       `json:"turn"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) saveState(ctx context.Context) {
	if s.statePath == "" {
		return
	}
	state := State{
		SessionID: s.id,
		Busy:      s.tracker.Busy(),
		Turn:      s.tracker.TurnNumber(),
		UpdatedAt: time.Now().UTC(),
	}
	data, err := jsonutil.MarshalIndentWithNewline(state, "", "  ")
	if err != nil {
		logging.Warn(ctx, "marshaling session state failed", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.statePath), 0o755); err != nil {
		logging.Warn(ctx, "creating state dir failed", "error", err)
		return
	}
	if err := jsonutil.WriteFileAtomic(s.statePath, data); err != nil {
		logging.Warn(ctx, "persisting session state failed", "error", err)
	}
}

// LoadState reads a persisted session state. Returns (nil, nil) when no
// state file exists.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}
	return &state, nil
}

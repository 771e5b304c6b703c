// Package sessionid provides session ID formatting and transformation
// functions. This package has minimal dependencies to avoid import cycles.
package sessionid

import (
	"time"

	"github.com/google/uuid"
)

// New generates a fresh Tether session ID: YYYY-MM-DD-<uuid>.
// The date prefix keeps per-session log files sortable by day.
func New() string {
	return TetherSessionID(uuid.NewString())
}

// TetherSessionID builds the full Tether session ID from an agent session ID.
// The format is: YYYY-MM-DD-<agent-session-id>
func TetherSessionID(agentSessionID string) string {
	return time.Now().Format("2006-01-02") + "-" + agentSessionID
}

// AgentSessionID extracts the agent session ID from a Tether session ID.
// Returns the original string if it doesn't match the expected format.
func AgentSessionID(tetherSessionID string) string {
	// Expected format: YYYY-MM-DD-<agent-id> (11 chars prefix: "2026-08-31-")
	if len(tetherSessionID) > 11 && tetherSessionID[4] == '-' && tetherSessionID[7] == '-' && tetherSessionID[10] == '-' {
		return tetherSessionID[11:]
	}
	return tetherSessionID
}

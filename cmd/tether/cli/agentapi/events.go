// Package agentapi is the client side of the agent server's HTTP API and
// its server-push event stream. Everything it returns is best-effort
// signal, never ground truth; callers cross-check against local evidence.
package agentapi

import (
	"encoding/json"
	"fmt"
)

// Event is the closed set of push events the agent server emits. The one
// dispatch point is the orchestrator's event loop; new kinds are added here
// and matched exhaustively there.
type Event interface {
	isEvent()
	Session() string
}

// SessionStatus reports a session turning busy or idle.
type SessionStatus struct {
	SessionID string `json:"session_id"`
	Busy      bool   `json:"busy"`
}

// FileEdited reports that the agent claims to have edited a file.
type FileEdited struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

// MessageComplete reports that a message finished, carrying the id used to
// correlate the diff query.
type MessageComplete struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

func (SessionStatus) isEvent()   {}
func (FileEdited) isEvent()      {}
func (MessageComplete) isEvent() {}

func (e SessionStatus) Session() string   { return e.SessionID }
func (e FileEdited) Session() string      { return e.SessionID }
func (e MessageComplete) Session() string { return e.SessionID }

// Wire names for the event kinds.
const (
	eventSessionStatus   = "session_status"
	eventFileEdited      = "file_edited"
	eventMessageComplete = "message_complete"
)

// parseEvent decodes one SSE frame. Unknown event kinds return (nil, nil);
// the server may grow kinds we do not care about.
func parseEvent(kind string, data []byte) (Event, error) {
	switch kind {
	case eventSessionStatus:
		var e SessionStatus
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", kind, err)
		}
		return e, nil
	case eventFileEdited:
		var e FileEdited
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", kind, err)
		}
		return e, nil
	case eventMessageComplete:
		var e MessageComplete
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", kind, err)
		}
		return e, nil
	default:
		return nil, nil
	}
}

package logging

import (
	"context"
)

// Context keys for logging values.
// Using a private type to avoid key collisions.
type contextKey int

const (
	sessionIDKey contextKey = iota
	turnKey
	componentKey
)

// WithSession adds a session ID to the context.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithTurn adds a turn number to the context.
func WithTurn(ctx context.Context, turn int) context.Context {
	return context.WithValue(ctx, turnKey, turn)
}

// WithComponent adds a component name to the context. Component names
// identify the subsystem generating logs (e.g., "orchestrator", "reconcile",
// "watcher").
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// SessionIDFromContext extracts the session ID from the context.
// Returns empty string if not set.
func SessionIDFromContext(ctx context.Context) string {
	if v := ctx.Value(sessionIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// TurnFromContext extracts the turn number from the context.
func TurnFromContext(ctx context.Context) (int, bool) {
	if v := ctx.Value(turnKey); v != nil {
		if n, ok := v.(int); ok {
			return n, true
		}
	}
	return 0, false
}

// ComponentFromContext extracts the component name from the context.
// Returns empty string if not set.
func ComponentFromContext(ctx context.Context) string {
	if v := ctx.Value(componentKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

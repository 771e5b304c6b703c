package cli

import (
	"os"

	"github.com/charmbracelet/huh"
)

// SilentError signals that the command already printed a user-facing
// message; main.go skips the generic error line for it.
type SilentError struct {
	err error
}

func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string { return e.err.Error() }
func (e *SilentError) Unwrap() error { return e.err }

// isAccessibleMode reports whether prompts should use plain text instead of
// interactive TUI elements, for screen readers.
func isAccessibleMode() bool {
	return os.Getenv("ACCESSIBLE") != ""
}

// NewAccessibleForm builds a huh form honoring accessibility mode.
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).WithAccessible(isAccessibleMode())
}

// Package validation provides input validation functions for the Tether CLI.
// This package has no dependencies to avoid import cycles.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// pathSafeRegex matches alphanumeric characters, underscores, dots, and
// hyphens. Used to validate identifiers embedded in file paths and git refs.
var pathSafeRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateSessionID validates that a session ID doesn't contain path
// separators. This prevents path traversal when session IDs are used in
// file paths (log files, pending state).
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("invalid session ID %q: contains path separators", id)
	}
	return nil
}

// ValidateLabel validates that a checkpoint label is safe to embed in a git
// reference name.
func ValidateLabel(label string) error {
	if label == "" {
		return errors.New("checkpoint label cannot be empty")
	}
	if !pathSafeRegex.MatchString(label) {
		return fmt.Errorf("invalid checkpoint label %q: must be alphanumeric with dots/underscores/hyphens only", label)
	}
	if strings.HasPrefix(label, ".") || strings.HasSuffix(label, ".") {
		return fmt.Errorf("invalid checkpoint label %q: cannot begin or end with a dot", label)
	}
	return nil
}

// SanitizeLabelPart replaces every character that is not ref-safe with a
// hyphen, so arbitrary strings (file paths, timestamps) can contribute to a
// checkpoint label.
func SanitizeLabelPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

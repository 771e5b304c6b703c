// Package reconcile turns the agent's reported diffs and a finished turn's
// snapshot into the final set of diff entries worth showing the user. It
// rescues changes the server omitted, resolves each entry's before content
// from the best available source, and suppresses anything stale, foreign,
// or touched by the human.
package reconcile

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff is a single file change as reported by the agent server.
type Diff struct {
	Path      string `json:"path"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Sources for an entry's resolved before content.
const (
	SourceServer     = "server"
	SourceCapture    = "turn-capture"
	SourceCheckpoint = "checkpoint"
	SourceLastKnown  = "last-known"
	SourceDisk       = "disk"
)

// Entry is a resolved, display-ready diff held in the pending table until
// the user accepts or rejects it.
type Entry struct {
	Path      string `json:"path"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`

	// IsNew marks a file the agent created this turn; rejecting it deletes
	// the file instead of restoring content.
	IsNew bool `json:"is_new,omitempty"`

	// Rescued marks an entry synthesized locally rather than reported by
	// the server.
	Rescued bool `json:"rescued,omitempty"`

	Turn         int    `json:"turn"`
	BeforeSource string `json:"before_source,omitempty"`
}

// lineCounts computes added and deleted line counts for a content pair.
// Used for rescued entries, where no server-reported counts exist.
func lineCounts(before, after string) (additions, deletions int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if n == 0 && d.Text != "" {
			n = 1
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += n
		case diffmatchpatch.DiffDelete:
			deletions += n
		}
	}
	return additions, deletions
}

package turn

import "sort"

// Snapshot is the immutable capture of everything tracked during one turn,
// produced by Tracker.EndTurn and consumed read-only by reconciliation.
// Because the tracker rotates its mutable sets at turn end, a fast-starting
// next turn can never mutate a snapshot already handed out.
type Snapshot struct {
	number       int
	label        string
	fsChanged    map[string]struct{}
	agentClaimed map[string]struct{}
	created      map[string]struct{}
	humanEdited  map[string]struct{}
	captured     map[string]string
	lastKnown    map[string]string
}

// Number returns the turn number.
func (s *Snapshot) Number() int { return s.number }

// CheckpointLabel returns the version-history checkpoint label taken at turn
// start, or empty if checkpoint creation failed.
func (s *Snapshot) CheckpointLabel() string { return s.label }

// FSChanged reports whether a file-system mutation event was observed for
// the path during the turn.
func (s *Snapshot) FSChanged(path string) bool {
	_, ok := s.fsChanged[path]
	return ok
}

// AgentClaimed reports whether the agent explicitly claimed to have edited
// the path during the turn.
func (s *Snapshot) AgentClaimed(path string) bool {
	_, ok := s.agentClaimed[path]
	return ok
}

// Created reports whether the path was physically created during the turn.
func (s *Snapshot) Created(path string) bool {
	_, ok := s.created[path]
	return ok
}

// HumanEdited reports whether the human edited the path during the turn.
func (s *Snapshot) HumanEdited(path string) bool {
	_, ok := s.humanEdited[path]
	return ok
}

// CapturedBefore returns the pre-change content captured for the path
// during the turn.
func (s *Snapshot) CapturedBefore(path string) (string, bool) {
	c, ok := s.captured[path]
	return c, ok
}

// LastKnownBefore returns the path's content as recorded at the end of an
// earlier turn.
func (s *Snapshot) LastKnownBefore(path string) (string, bool) {
	c, ok := s.lastKnown[path]
	return c, ok
}

// HasSignal reports turn-local evidence tying the path to this turn: an
// agent claim, an observed file-system event, a physical creation, or a
// content capture.
func (s *Snapshot) HasSignal(path string) bool {
	return s.AgentClaimed(path) || s.FSChanged(path) || s.Created(path) || func() bool {
		_, ok := s.captured[path]
		return ok
	}()
}

// CandidatePaths returns the sorted union of file-system-changed paths and
// captured-content paths. These are the rescue candidates for files the
// server failed to report.
func (s *Snapshot) CandidatePaths() []string {
	seen := make(map[string]struct{}, len(s.fsChanged)+len(s.captured))
	for p := range s.fsChanged {
		seen[p] = struct{}{}
	}
	for p := range s.captured {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TouchedPaths returns the sorted union of every tracked set.
func (s *Snapshot) TouchedPaths() []string {
	seen := make(map[string]struct{})
	for p := range s.fsChanged {
		seen[p] = struct{}{}
	}
	for p := range s.agentClaimed {
		seen[p] = struct{}{}
	}
	for p := range s.created {
		seen[p] = struct{}{}
	}
	for p := range s.humanEdited {
		seen[p] = struct{}{}
	}
	for p := range s.captured {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
)

func TestRenderEntry_Tags(t *testing.T) {
	tests := []struct {
		name  string
		entry reconcile.Entry
		want  []string
	}{
		{
			name:  "plain edit",
			entry: reconcile.Entry{Path: "main.go", Before: "a\n", After: "b\n", Additions: 1, Deletions: 1, Turn: 2},
			want:  []string{"main.go", "+1 -1", "(turn 2)"},
		},
		{
			name:  "new file",
			entry: reconcile.Entry{Path: "new.go", After: "x\n", IsNew: true, Additions: 1},
			want:  []string{"[new file]"},
		},
		{
			name:  "deletion",
			entry: reconcile.Entry{Path: "gone.go", Before: "x\n", Deletions: 1},
			want:  []string{"[deleted]"},
		},
		{
			name:  "rescued deletion",
			entry: reconcile.Entry{Path: "gone.go", Before: "x\n", Rescued: true},
			want:  []string{"rescued"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderEntry(tt.entry, false)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("renderEntry() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestRenderEntry_FlagsPossibleSecret(t *testing.T) {
	entry := reconcile.Entry{
		Path:  ".env",
		After: "API_KEY: sk-ant-REDACTED\n",
	}
	got := renderEntry(entry, false)
	if !strings.Contains(got, "may contain a secret") {
		t.Errorf("expected secret tag, got %q", got)
	}
}

func TestRenderEntry_WithContent(t *testing.T) {
	entry := reconcile.Entry{Path: "main.go", Before: "old line\n", After: "new line\n"}
	got := renderEntry(entry, true)
	if !strings.Contains(got, "-old line") {
		t.Errorf("expected removed line in diff, got %q", got)
	}
	if !strings.Contains(got, "+new line") {
		t.Errorf("expected added line in diff, got %q", got)
	}
}

func TestRenderDiff_MarksChangedLines(t *testing.T) {
	before := "one\ntwo\nthree\n"
	after := "one\n2\nthree\n"

	got := renderDiff(before, after)

	if !strings.Contains(got, "  -two") {
		t.Errorf("expected deletion marker, got %q", got)
	}
	if !strings.Contains(got, "  +2") {
		t.Errorf("expected insertion marker, got %q", got)
	}
	if !strings.Contains(got, "   one") {
		t.Errorf("expected unchanged context line, got %q", got)
	}
}

func TestRunReview_NoPendingDiffs(t *testing.T) {
	setupTestRepo(t)

	var stdout bytes.Buffer
	if err := runReview(&stdout, "", false); err != nil {
		t.Fatalf("runReview() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "no pending diffs") {
		t.Errorf("expected empty-state message, got: %s", stdout.String())
	}
}

func TestRunReview_ListsEntries(t *testing.T) {
	root := setupTestRepo(t)
	seedPending(t, root, "sess-1",
		reconcile.Entry{Path: "a.go", Before: "x\n", After: "y\n", Additions: 1, Deletions: 1, Turn: 1},
		reconcile.Entry{Path: "b.go", After: "new\n", IsNew: true, Additions: 1, Turn: 1},
	)

	var stdout bytes.Buffer
	if err := runReview(&stdout, "", false); err != nil {
		t.Fatalf("runReview() error = %v", err)
	}

	output := stdout.String()
	for _, want := range []string{"session sess-1:", "a.go", "b.go", "2 pending diff(s)"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestRunReview_SinglePath(t *testing.T) {
	root := setupTestRepo(t)
	seedPending(t, root, "sess-1",
		reconcile.Entry{Path: "a.go", Before: "old\n", After: "new\n", Additions: 1, Deletions: 1, Turn: 1},
	)

	var stdout bytes.Buffer
	if err := runReview(&stdout, "a.go", false); err != nil {
		t.Fatalf("runReview() error = %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "-old") || !strings.Contains(output, "+new") {
		t.Errorf("expected full diff for single path, got: %s", output)
	}
}

func TestRunReview_UnknownPath(t *testing.T) {
	setupTestRepo(t)

	var stdout bytes.Buffer
	if err := runReview(&stdout, "nope.go", false); err != nil {
		t.Fatalf("runReview() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "no pending diff for nope.go") {
		t.Errorf("expected missing-path message, got: %s", stdout.String())
	}
}

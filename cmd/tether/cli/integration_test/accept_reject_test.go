//go:build integration

package integration

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
)

func TestAcceptStagesFileAndClearsPending(t *testing.T) {
	t.Parallel()
	env := NewRepoEnv(t)

	env.WriteFile("main.go", "package main\n")
	env.SeedPending("sess-1", reconcile.Entry{
		Path:      "main.go",
		Before:    "",
		After:     "package main\n",
		Additions: 1,
		IsNew:     true,
		Turn:      1,
	})

	output, err := env.RunCommand("accept", "main.go")
	if err != nil {
		t.Fatalf("accept failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "accepted main.go") {
		t.Errorf("expected accept confirmation, got: %s", output)
	}

	if !strings.Contains(env.GitStaged(), "main.go") {
		t.Error("main.go should be staged after accept")
	}
	if env.LoadPending("sess-1").Len() != 0 {
		t.Error("pending table should be empty after accept")
	}
}

func TestRejectRestoresPreviousContent(t *testing.T) {
	t.Parallel()
	env := NewRepoEnv(t)

	env.WriteFile("config.go", "package config // agent version\n")
	env.SeedPending("sess-1", reconcile.Entry{
		Path:      "config.go",
		Before:    "package config\n",
		After:     "package config // agent version\n",
		Additions: 1,
		Deletions: 1,
		Turn:      1,
	})

	output, err := env.RunCommand("reject", "config.go")
	if err != nil {
		t.Fatalf("reject failed: %v\n%s", err, output)
	}

	if got := env.ReadFile("config.go"); got != "package config\n" {
		t.Errorf("file content = %q, want pre-turn content", got)
	}
	if env.LoadPending("sess-1").Len() != 0 {
		t.Error("pending table should be empty after reject")
	}
}

func TestRejectNewFileDeletesIt(t *testing.T) {
	t.Parallel()
	env := NewRepoEnv(t)

	env.WriteFile("extra.go", "package extra\n")
	env.SeedPending("sess-1", reconcile.Entry{
		Path:      "extra.go",
		After:     "package extra\n",
		Additions: 1,
		IsNew:     true,
		Turn:      1,
	})

	output, err := env.RunCommand("reject", "extra.go")
	if err != nil {
		t.Fatalf("reject failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "file deleted") {
		t.Errorf("expected deletion notice, got: %s", output)
	}
	if env.FileExists("extra.go") {
		t.Error("extra.go should be deleted after rejecting a created file")
	}
}

func TestRejectDriftedFilePromptsForConfirmation(t *testing.T) {
	t.Parallel()
	env := NewRepoEnv(t)

	// The file changed again after reconciliation, so reject must confirm
	// before overwriting.
	env.WriteFile("main.go", "package main // edited after the turn\n")
	env.SeedPending("sess-1", reconcile.Entry{
		Path:      "main.go",
		Before:    "package main\n",
		After:     "package main // agent version\n",
		Additions: 1,
		Deletions: 1,
		Turn:      1,
	})

	output, err := env.RunCommandInteractive([]string{"reject", "main.go"}, func(ptyFile *os.File) string {
		out, err := WaitForPromptAndRespond(ptyFile, "Reject anyway", "y\n", 5*time.Second)
		if err != nil {
			t.Logf("prompt interaction: %v", err)
		}
		return out
	})
	if err != nil {
		t.Fatalf("reject failed: %v\n%s", err, output)
	}

	if got := env.ReadFile("main.go"); got != "package main\n" {
		t.Errorf("file content = %q, want pre-turn content after confirmed reject", got)
	}
}

func TestRejectDriftedFileDeclinedKeepsDisk(t *testing.T) {
	t.Parallel()
	env := NewRepoEnv(t)

	edited := "package main // edited after the turn\n"
	env.WriteFile("main.go", edited)
	env.SeedPending("sess-1", reconcile.Entry{
		Path:      "main.go",
		Before:    "package main\n",
		After:     "package main // agent version\n",
		Additions: 1,
		Deletions: 1,
		Turn:      1,
	})

	output, err := env.RunCommandInteractive([]string{"reject", "main.go"}, func(ptyFile *os.File) string {
		out, err := WaitForPromptAndRespond(ptyFile, "Reject anyway", "n\n", 5*time.Second)
		if err != nil {
			t.Logf("prompt interaction: %v", err)
		}
		return out
	})
	if err != nil {
		t.Fatalf("reject failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "reject canceled") {
		t.Errorf("expected cancellation notice, got: %s", output)
	}

	if got := env.ReadFile("main.go"); got != edited {
		t.Errorf("file content = %q, declined reject must not touch the file", got)
	}
	if env.LoadPending("sess-1").Len() != 1 {
		t.Error("pending entry should remain after a declined reject")
	}
}

func TestRejectDriftedFileForceSkipsPrompt(t *testing.T) {
	t.Parallel()
	env := NewRepoEnv(t)

	env.WriteFile("main.go", "package main // edited after the turn\n")
	env.SeedPending("sess-1", reconcile.Entry{
		Path:      "main.go",
		Before:    "package main\n",
		After:     "package main // agent version\n",
		Additions: 1,
		Deletions: 1,
		Turn:      1,
	})

	output, err := env.RunCommand("reject", "--force", "main.go")
	if err != nil {
		t.Fatalf("reject --force failed: %v\n%s", err, output)
	}

	if got := env.ReadFile("main.go"); got != "package main\n" {
		t.Errorf("file content = %q, want pre-turn content", got)
	}
}

func TestReviewListsSeededEntries(t *testing.T) {
	t.Parallel()
	env := NewRepoEnv(t)

	env.SeedPending("sess-1",
		reconcile.Entry{Path: "a.go", Before: "x\n", After: "y\n", Additions: 1, Deletions: 1, Turn: 2},
		reconcile.Entry{Path: "b.go", After: "new\n", Additions: 1, IsNew: true, Turn: 2},
	)

	output, err := env.RunCommand("review")
	if err != nil {
		t.Fatalf("review failed: %v\n%s", err, output)
	}
	for _, want := range []string{"a.go", "b.go", "[new file]", "2 pending diff(s)"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in review output, got: %s", want, output)
		}
	}
}

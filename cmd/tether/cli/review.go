package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
	"github.com/tetherhq/cli/redact"
)

func newReviewCmd() *cobra.Command {
	var showContent bool

	cmd := &cobra.Command{
		Use:   "review [path]",
		Short: "Show pending diffs from the agent's last turns",
		Long: "List the diff entries waiting for a decision. With a path argument, " +
			"show that file's full diff. Resolve entries with 'tether accept' or 'tether reject'.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runReview(cmd.OutOrStdout(), path, showContent)
		},
	}

	cmd.Flags().BoolVar(&showContent, "full", false, "Show full diffs for every pending entry")

	return cmd
}

func runReview(w io.Writer, path string, showContent bool) error {
	if _, err := paths.RepoRoot(); err != nil {
		return errors.New("not in a git repository")
	}
	commonDir, err := paths.GitCommonDir()
	if err != nil {
		return fmt.Errorf("resolving git dir: %w", err)
	}

	if path != "" {
		entry, _, found, err := findPendingEntry(commonDir, path)
		if err != nil {
			return fmt.Errorf("loading pending diffs: %w", err)
		}
		if !found {
			fmt.Fprintf(w, "no pending diff for %s\n", path)
			return nil
		}
		outputWithPager(w, renderEntry(entry, true))
		return nil
	}

	ids, err := pendingSessions(commonDir)
	if err != nil {
		return fmt.Errorf("loading pending diffs: %w", err)
	}

	var sb strings.Builder
	total := 0
	for _, id := range ids {
		table, err := loadPendingTable(commonDir, id)
		if err != nil {
			return fmt.Errorf("loading pending diffs for %s: %w", id, err)
		}
		entries := table.All()
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "session %s:\n", id)
		for _, entry := range entries {
			sb.WriteString(renderEntry(entry, showContent))
		}
		total += len(entries)
	}

	if total == 0 {
		fmt.Fprintln(w, "no pending diffs")
		return nil
	}
	fmt.Fprintf(&sb, "\n%d pending diff(s); resolve with 'tether accept <path>' or 'tether reject <path>'\n", total)
	outputWithPager(w, sb.String())
	return nil
}

func renderEntry(entry reconcile.Entry, showContent bool) string {
	var sb strings.Builder

	var tags []string
	if entry.IsNew {
		tags = append(tags, "new file")
	}
	if entry.After == "" {
		tags = append(tags, "deleted")
	}
	if entry.Rescued {
		tags = append(tags, "rescued")
	}
	if redact.HasSecret(entry.After) {
		tags = append(tags, "may contain a secret")
	}
	suffix := ""
	if len(tags) > 0 {
		suffix = " [" + strings.Join(tags, ", ") + "]"
	}
	fmt.Fprintf(&sb, "  %s  +%d -%d%s (turn %d)\n", entry.Path, entry.Additions, entry.Deletions, suffix, entry.Turn)

	if showContent {
		sb.WriteString(renderDiff(entry.Before, entry.After))
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderDiff produces a unified-style line diff, truncated to the terminal
// width so long lines do not wrap into noise.
func renderDiff(before, after string) string {
	width := terminalWidth()

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "   "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "  +"
		case diffmatchpatch.DiffDelete:
			prefix = "  -"
		case diffmatchpatch.DiffEqual:
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			if len(line) > width-len(prefix) {
				line = line[:width-len(prefix)-1] + "…"
			}
			sb.WriteString(prefix + line + "\n")
		}
	}
	return sb.String()
}

func terminalWidth() int {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 20 {
			return width
		}
	}
	return 100
}

// outputWithPager pipes long output through a pager when writing to a
// terminal, matching git's behavior for diff-sized content.
func outputWithPager(w io.Writer, content string) {
	if f, ok := w.(*os.File); ok && f == os.Stdout && term.IsTerminal(int(f.Fd())) {
		_, height, err := term.GetSize(int(f.Fd()))
		if err != nil {
			height = 24
		}
		if strings.Count(content, "\n") > height-2 {
			pager := os.Getenv("PAGER")
			if pager == "" {
				pager = "less"
			}
			cmd := exec.CommandContext(context.Background(), pager) //nolint:gosec // pager from env is expected
			cmd.Stdin = strings.NewReader(content)
			cmd.Stdout = f
			cmd.Stderr = os.Stderr
			if err := cmd.Run(); err == nil {
				return
			}
		}
	}
	fmt.Fprint(w, content)
}

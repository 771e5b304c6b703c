package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tetherhq/cli/cmd/tether/cli/apply"
	"github.com/tetherhq/cli/cmd/tether/cli/checkpoint"
	"github.com/tetherhq/cli/cmd/tether/cli/logging"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
)

func newAcceptCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "accept [path]",
		Short: "Accept a pending diff and stage the file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return runAcceptAll(cmd.Context(), cmd.OutOrStdout())
			}
			if len(args) != 1 {
				return errors.New("a path is required unless --all is given")
			}
			return runAccept(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Accept every pending diff")

	return cmd
}

func runAccept(ctx context.Context, w io.Writer, path string) error {
	root, commonDir, err := repoDirs()
	if err != nil {
		return err
	}

	entry, table, found, err := findPendingEntry(commonDir, path)
	if err != nil {
		return fmt.Errorf("loading pending diffs: %w", err)
	}
	if !found {
		fmt.Fprintf(w, "no pending diff for %s\n", path)
		return nil
	}

	ex := newCLIExecutor(ctx, root, table)
	if err := ex.Accept(ctx, entry); err != nil {
		fmt.Fprintf(w, "✕ accepting %s failed: %v (entry kept, retry when resolved)\n", entry.Path, err)
		return NewSilentError(err)
	}
	fmt.Fprintf(w, "✓ accepted %s\n", entry.Path)
	return nil
}

func runAcceptAll(ctx context.Context, w io.Writer) error {
	root, commonDir, err := repoDirs()
	if err != nil {
		return err
	}
	ids, err := pendingSessions(commonDir)
	if err != nil {
		return fmt.Errorf("loading pending diffs: %w", err)
	}

	accepted, failed := 0, 0
	for _, id := range ids {
		table, err := loadPendingTable(commonDir, id)
		if err != nil {
			return fmt.Errorf("loading pending diffs for %s: %w", id, err)
		}
		ex := newCLIExecutor(ctx, root, table)
		for _, entry := range table.All() {
			if err := ex.Accept(ctx, entry); err != nil {
				fmt.Fprintf(w, "✕ %s: %v\n", entry.Path, err)
				failed++
				continue
			}
			fmt.Fprintf(w, "✓ accepted %s\n", entry.Path)
			accepted++
		}
	}

	if accepted == 0 && failed == 0 {
		fmt.Fprintln(w, "no pending diffs")
		return nil
	}
	if failed > 0 {
		return NewSilentError(fmt.Errorf("%d diff(s) could not be accepted", failed))
	}
	return nil
}

// repoDirs resolves the workspace root and the shared git directory.
func repoDirs() (root, commonDir string, err error) {
	root, err = paths.RepoRoot()
	if err != nil {
		return "", "", errors.New("not in a git repository")
	}
	commonDir, err = paths.GitCommonDir()
	if err != nil {
		return "", "", fmt.Errorf("resolving git dir: %w", err)
	}
	return root, commonDir, nil
}

// newCLIExecutor builds an executor for a one-shot command invocation. The
// run daemon's last-known cache lives in another process; its next turn
// refreshes from disk instead.
func newCLIExecutor(ctx context.Context, root string, table *reconcile.Table) *apply.Executor {
	store, err := checkpoint.Open(root)
	if err != nil {
		logging.Warn(ctx, "checkpoint store unavailable", "error", err)
		store = nil
	}
	return apply.NewExecutor(root, store, table, nil)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
)

func newRejectCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reject <path>",
		Short: "Reject a pending diff and restore the previous content",
		Long: "Restore the file to its pre-turn content, or delete it if the agent created it. " +
			"A checkpoint of the current state is written first, so the agent's version stays recoverable.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReject(cmd.Context(), cmd.OutOrStdout(), args[0], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation when the file changed after reconciliation")

	return cmd
}

func runReject(ctx context.Context, w io.Writer, path string, force bool) error {
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

	// The file may have been edited again after reconciliation; rejecting
	// would overwrite that work too.
	if _, drifted := ex.DiskDrift(entry); drifted && !force {
		ok, err := confirmDriftedReject(entry)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(w, "reject canceled")
			return nil
		}
	}

	if err := ex.Reject(ctx, entry); err != nil {
		fmt.Fprintf(w, "✕ rejecting %s failed: %v (entry kept, retry when resolved)\n", entry.Path, err)
		return NewSilentError(err)
	}
	if entry.IsNew {
		fmt.Fprintf(w, "✓ rejected %s (file deleted)\n", entry.Path)
	} else {
		fmt.Fprintf(w, "✓ rejected %s (previous content restored)\n", entry.Path)
	}
	return nil
}

func confirmDriftedReject(entry reconcile.Entry) (bool, error) {
	var confirmed bool
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s changed after the agent's turn. Reject anyway and lose those edits?", entry.Path)).
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get confirmation: %w", err)
	}
	return confirmed, nil
}

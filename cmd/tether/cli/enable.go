package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/settings"
)

func newEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Enable tether in this repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setEnabled(cmd.OutOrStdout(), true)
		},
	}
}

func newDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable tether in this repository",
		Long:  "Stop tracking turns. Settings and pending diffs are kept; 'tether enable' turns tracking back on.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setEnabled(cmd.OutOrStdout(), false)
		},
	}
}

func setEnabled(w io.Writer, enabled bool) error {
	root, err := paths.RepoRoot()
	if err != nil {
		return errors.New("not in a git repository")
	}
	s, err := settings.LoadFrom(root)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if s.Enabled == enabled {
		if enabled {
			fmt.Fprintln(w, "tether is already enabled")
		} else {
			fmt.Fprintln(w, "tether is already disabled")
		}
		return nil
	}

	s.Enabled = enabled
	if err := settings.Save(root, s); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	if enabled {
		fmt.Fprintln(w, "✓ tether enabled")
	} else {
		fmt.Fprintln(w, "✓ tether disabled")
	}
	return nil
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tetherhq/cli/cmd/tether/cli/agentapi"
	"github.com/tetherhq/cli/cmd/tether/cli/orchestrator"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/settings"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tether status",
		Long:  "Show configuration, server reachability, tracked sessions, and pending diff counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cmd.OutOrStdout())
		},
	}
	return cmd
}

func runStatus(cmd *cobra.Command, w io.Writer) error {
	root, err := paths.RepoRoot()
	if err != nil {
		fmt.Fprintln(w, "✕ not a git repository")
		return nil //nolint:nilerr // not being in a git repo is a valid status
	}

	s, err := settings.LoadFrom(root)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	if s.Enabled {
		fmt.Fprintln(w, "✓ tether is enabled")
	} else {
		fmt.Fprintln(w, "✕ tether is disabled")
	}

	if s.ServerURL == "" {
		fmt.Fprintln(w, "✕ no agent server configured (run 'tether connect')")
	} else if err := agentapi.NewClient(s.ServerURL).Health(cmd.Context()); err != nil {
		fmt.Fprintf(w, "✕ agent server %s not responding\n", s.ServerURL)
	} else {
		fmt.Fprintf(w, "✓ agent server %s\n", s.ServerURL)
	}

	commonDir, err := paths.GitCommonDir()
	if err != nil {
		return fmt.Errorf("resolving git dir: %w", err)
	}
	printSessions(w, commonDir)
	return printPending(w, commonDir)
}

func printSessions(w io.Writer, commonDir string) {
	stateDir := filepath.Join(commonDir, "tether", "state")
	entries, err := os.ReadDir(stateDir)
	if errors.Is(err, fs.ErrNotExist) || err != nil {
		return
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		state, err := orchestrator.LoadState(filepath.Join(stateDir, name))
		if err != nil || state == nil {
			continue
		}
		activity := "idle"
		if state.Busy {
			activity = "busy"
		}
		fmt.Fprintf(w, "  session %s: %s, turn %d (updated %s)\n",
			state.SessionID, activity, state.Turn, state.UpdatedAt.Local().Format(time.RFC822))
	}
}

func printPending(w io.Writer, commonDir string) error {
	ids, err := pendingSessions(commonDir)
	if err != nil {
		return fmt.Errorf("loading pending diffs: %w", err)
	}

	total := 0
	for _, id := range ids {
		table, err := loadPendingTable(commonDir, id)
		if err != nil {
			continue
		}
		total += table.Len()
	}
	if total > 0 {
		fmt.Fprintf(w, "  %d pending diff(s); run 'tether review'\n", total)
	}
	return nil
}

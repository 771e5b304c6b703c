package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tetherhq/cli/cmd/tether/cli/agentapi"
	"github.com/tetherhq/cli/cmd/tether/cli/checkpoint"
	"github.com/tetherhq/cli/cmd/tether/cli/logging"
	"github.com/tetherhq/cli/cmd/tether/cli/orchestrator"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
	"github.com/tetherhq/cli/cmd/tether/cli/sessionid"
	"github.com/tetherhq/cli/cmd/tether/cli/settings"
	"github.com/tetherhq/cli/cmd/tether/cli/turn"
	"github.com/tetherhq/cli/cmd/tether/cli/watcher"
)

func newRunCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Track the agent's turns and reconcile its diffs",
		Long: "Connect to the agent server's event stream and watch the working tree. " +
			"Each time a turn finishes, the server's reported diffs are reconciled against " +
			"what actually changed on disk; surviving entries become pending diffs for " +
			"'tether review'. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, serverURL)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Agent server URL (overrides settings)")

	return cmd
}

func runRun(cmd *cobra.Command, serverURL string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	root, err := paths.RepoRoot()
	if err != nil {
		return errors.New("not in a git repository")
	}
	s, err := settings.LoadFrom(root)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if !s.Enabled {
		fmt.Fprintln(w, "✕ tether is disabled; run 'tether enable' first")
		return nil
	}

	if serverURL == "" {
		serverURL = s.ServerURL
	}
	if serverURL == "" {
		var ok bool
		serverURL, ok = agentapi.DiscoverFirst(ctx, s.ProbePorts)
		if !ok {
			fmt.Fprintln(w, "✕ no agent server found; run 'tether connect' first")
			return NewSilentError(errors.New("no agent server found"))
		}
	}

	client := agentapi.NewClient(serverURL)
	if err := client.Health(ctx); err != nil {
		fmt.Fprintf(w, "✕ agent server at %s is not responding\n", serverURL)
		return NewSilentError(err)
	}

	logging.SetLogLevelGetter(func() string { return s.LogLevel })
	if err := logging.Init(sessionid.New()); err != nil {
		fmt.Fprintf(w, "warning: file logging unavailable: %v\n", err)
	}
	defer logging.Close()

	commonDir, err := paths.GitCommonDir()
	if err != nil {
		return fmt.Errorf("resolving git dir: %w", err)
	}

	// Checkpoints are an enhancement, not a requirement; without them the
	// capture chain simply has one fewer source.
	store, err := checkpoint.Open(root)
	if err != nil {
		logging.Warn(ctx, "checkpoint store unavailable", "error", err)
		store = nil
	}

	fsw, err := watcher.New(root, s.IgnorePatterns)
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer fsw.Close()

	hub := orchestrator.NewHub(func(agentSessionID string) *orchestrator.Session {
		pending := reconcile.NewTable(paths.PendingFile(commonDir, agentSessionID))
		tracker := turn.NewTracker(root, agentSessionID, store)
		return orchestrator.NewSession(orchestrator.Config{
			SessionID: agentSessionID,
			Tracker:   tracker,
			Engine:    reconcile.NewEngine(root, store, pending),
			API:       client,
			Presenter: newTerminalPresenter(w),
			StatePath: paths.SessionStateFile(commonDir, agentSessionID),
		})
	})

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		if err := fsw.Run(watchCtx, func(ev watcher.Event) {
			hub.HandleFileEvent(watchCtx, ev)
		}); err != nil {
			logging.Error(watchCtx, "file watcher stopped", "error", err)
		}
	}()

	fmt.Fprintf(w, "✓ tracking %s (ctrl-c to stop)\n", serverURL)
	client.StreamWithRetry(ctx, func(ev agentapi.Event) {
		hub.HandleEvent(ctx, ev)
	})
	hub.Wait()
	return nil
}

// terminalPresenter announces reconciled turns on stdout; the diffs
// themselves are inspected with 'tether review'.
type terminalPresenter struct {
	w io.Writer
}

func newTerminalPresenter(w io.Writer) *terminalPresenter {
	return &terminalPresenter{w: w}
}

func (p *terminalPresenter) Present(_ context.Context, sessionID string, entries []reconcile.Entry) {
	total := 0
	for _, e := range entries {
		total += e.Additions + e.Deletions
	}
	fmt.Fprintf(p.w, "turn finished: %d file(s) changed, %d line(s); run 'tether review' (session %s)\n",
		len(entries), total, sessionID)
}

// Package cli implements the tether command line interface: the bridge
// between a local working tree and a terminal AI coding agent's HTTP
// server. Its core reconciles the diffs the agent reports after each turn
// against what actually happened on disk, then lets the user review,
// accept, or reject each change.
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tetherhq/cli/cmd/tether/cli/settings"
	"github.com/tetherhq/cli/cmd/tether/cli/telemetry"
	"github.com/tetherhq/cli/cmd/tether/cli/versioncheck"
)

const gettingStarted = `

Getting Started:
  Run 'tether connect' to find your agent server, then 'tether run' to
  start tracking its turns. After a turn, 'tether review' shows the
  pending diffs and 'tether accept'/'tether reject' resolve them.

`

const accessibilityHelp = `
Environment Variables:
  ACCESSIBLE    Set to any value (e.g., ACCESSIBLE=1) to enable accessibility
                mode. This uses simpler text prompts instead of interactive
                TUI elements, which works better with screen readers.
`

// Version information (can be set at build time)
var (
	Version = "dev"
	Commit  = "unknown"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tether",
		Short: "Tether CLI",
		Long:  "A turn-by-turn diff bridge for terminal coding agents" + gettingStarted + accessibilityHelp,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		// Hide completion command from help but keep it functional
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			var telemetryEnabled *bool
			var enabled, connected bool
			if s, err := settings.Load(); err == nil {
				telemetryEnabled = s.Telemetry
				enabled = s.Enabled
				connected = s.ServerURL != ""
			}

			telemetryClient := telemetry.NewClient(Version, telemetryEnabled)
			defer telemetryClient.Close()
			telemetryClient.TrackCommand(cmd, enabled, connected)

			versioncheck.CheckAndNotify(cmd, Version)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReviewCmd())
	cmd.AddCommand(newAcceptCmd())
	cmd.AddCommand(newRejectCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newEnableCmd())
	cmd.AddCommand(newDisableCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("Tether CLI %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

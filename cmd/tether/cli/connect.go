package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tetherhq/cli/cmd/tether/cli/agentapi"
	"github.com/tetherhq/cli/cmd/tether/cli/paths"
	"github.com/tetherhq/cli/cmd/tether/cli/settings"
)

func newConnectCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Find and save the agent server to track",
		Long:  "Probe local ports for a running agent server and save its address to .tether/settings.json",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnect(cmd, serverURL)
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "", "Skip discovery and use this server URL")

	return cmd
}

func runConnect(cmd *cobra.Command, serverURL string) error {
	w := cmd.OutOrStdout()
	root, err := paths.RepoRoot()
	if err != nil {
		return errors.New("not in a git repository")
	}

	s, err := settings.LoadFrom(root)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	if serverURL == "" {
		serverURL, err = discoverServer(cmd, w, s.ProbePorts)
		if err != nil {
			return err
		}
	}

	if err := agentapi.NewClient(serverURL).Health(cmd.Context()); err != nil {
		fmt.Fprintf(w, "✕ no agent server responding at %s\n", serverURL)
		return NewSilentError(err)
	}

	s.ServerURL = serverURL
	if err := settings.Save(root, s); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	fmt.Fprintf(w, "✓ connected to %s\n", serverURL)
	return nil
}

func discoverServer(cmd *cobra.Command, w io.Writer, ports []int) (string, error) {
	alive := agentapi.Discover(cmd.Context(), ports)
	switch len(alive) {
	case 0:
		fmt.Fprintln(w, "✕ no agent server found; is the agent running?")
		return "", NewSilentError(errors.New("no agent server found"))
	case 1:
		return alive[0], nil
	}

	// More than one server answered; let the user pick.
	options := make([]huh.Option[string], len(alive))
	for i, url := range alive {
		options[i] = huh.NewOption(url, url)
	}
	var chosen string
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Multiple agent servers found. Which one should tether track?").
				Options(options...).
				Value(&chosen),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", NewSilentError(errors.New("connect aborted"))
		}
		return "", fmt.Errorf("failed to get selection: %w", err)
	}
	return chosen, nil
}

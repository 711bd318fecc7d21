package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stagehand-dev/stagehand/pkg/debugcli"
	"github.com/stagehand-dev/stagehand/pkg/param"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/realtime"
	"github.com/stagehand-dev/stagehand/pkg/stream"
)

func DebugConsoleCmd() *cobra.Command {
	var projectID string
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "debug-console [command] [flags]",
		Short: "Interactive debug console for stagehand",
		Long: `A development tool that provides an interactive console for inspecting
projects, documents, workflows, and checkpoints without going through the
agent pipeline.

When run without arguments, it launches an interactive console mode.
When run with a command, it executes that command and exits, suitable for scripting.

Examples:
  # Interactive mode
  debug-console

  # Run a single command (non-interactive mode)
  debug-console list-documents --project-id abc123
  debug-console checkpoints wf123 --project-id abc123`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// params come from the os env here, never SSM
			if err := param.Init(nil); err != nil {
				return fmt.Errorf("failed to init params: %w", err)
			}

			pgOpts := persistence.PostgresOpts{
				URI: param.Get().PGURI,
			}
			if err := persistence.InitPostgres(pgOpts); err != nil {
				return fmt.Errorf("failed to initialize postgres connection: %w", err)
			}

			realtime.Init(stream.NewBus())

			if len(args) > 0 {
				nonInteractive = true
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := debugcli.ConsoleOptions{
				ProjectID:      projectID,
				NonInteractive: nonInteractive,
				Command:        args,
			}
			return debugcli.RunConsole(opts)
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID to use for commands")

	return cmd
}

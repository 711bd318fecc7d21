package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stagehand-dev/stagehand/pkg/listener"
	"github.com/stagehand-dev/stagehand/pkg/param"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/realtime"
	"github.com/stagehand-dev/stagehand/pkg/stream"
)

func RunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the worker",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.GetViper()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			sess, err := session.NewSession(aws.NewConfig().WithCredentialsChainVerboseErrors(true))
			if err != nil {
				// logging is not initialized yet
				fmt.Printf("Failed to create aws session: %v\n", err)
			}

			if err := param.Init(sess); err != nil {
				return fmt.Errorf("failed to init params: %w", err)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			bus := stream.NewBus()
			defer bus.Shutdown()
			realtime.Init(bus)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := runWorker(ctx, param.Get().PGURI); err != nil {
				return fmt.Errorf("worker error: %w", err)
			}
			return nil
		},
	}

	return runCmd
}

func runWorker(ctx context.Context, pgURI string) error {
	pgOpts := persistence.PostgresOpts{
		URI: pgURI,
	}
	if err := persistence.InitPostgres(pgOpts); err != nil {
		return fmt.Errorf("failed to initialize postgres connection: %w", err)
	}

	// Keep connections warm before the listeners start claiming work.
	listener.StartHeartbeat(ctx)

	if err := listener.StartListeners(ctx); err != nil {
		return fmt.Errorf("failed to start listeners: %w", err)
	}

	return nil
}

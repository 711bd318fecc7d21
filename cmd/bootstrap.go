package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stagehand-dev/stagehand/pkg/param"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/workspace"
)

func BootstrapCmd() *cobra.Command {
	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Apply the database schema and prepare local directories",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.GetViper()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			sess, err := session.NewSession(aws.NewConfig().WithCredentialsChainVerboseErrors(true))
			if err != nil {
				fmt.Printf("Failed to create aws session: %v\n", err)
			}

			if err := param.Init(sess); err != nil {
				return fmt.Errorf("failed to init params: %w", err)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pgOpts := persistence.PostgresOpts{
				URI: param.Get().PGURI,
			}
			if err := persistence.InitPostgres(pgOpts); err != nil {
				return fmt.Errorf("failed to initialize postgres connection: %w", err)
			}

			if err := persistence.Bootstrap(ctx); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}

			for _, dir := range []string{param.Get().DataDir, param.Get().WorkspaceDir} {
				if dir == "" {
					continue
				}
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create %s: %w", dir, err)
				}
			}

			seedName := viper.GetString("seed-project")
			if seedName != "" {
				project, err := workspace.CreateProject(ctx, seedName)
				if err != nil {
					return fmt.Errorf("failed to seed project: %w", err)
				}
				fmt.Printf("Created project %s (%s)\n", project.Name, project.ID)
			}

			fmt.Println("Bootstrap complete")
			return nil
		},
	}

	bootstrapCmd.Flags().String("seed-project", "", "Name of a project to create after bootstrapping")

	return bootstrapCmd
}

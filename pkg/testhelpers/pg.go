package testhelpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

type CreatePostgresContainerOpts struct {
	CreateSchema bool
}

// CreatePostgresContainer starts a disposable postgres for integration
// tests, optionally initialized with the worker schema.
func CreatePostgresContainer(ctx context.Context, opts CreatePostgresContainerOpts) (*PostgresContainer, error) {
	var initScripts []string

	if opts.CreateSchema {
		schemaFile := filepath.Join(os.TempDir(), fmt.Sprintf("stagehand-schema-%d.sql", time.Now().UnixNano()))
		if err := os.WriteFile(schemaFile, []byte(persistence.Schema), 0644); err != nil {
			return nil, fmt.Errorf("failed to write schema init script: %w", err)
		}
		initScripts = append(initScripts, schemaFile)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithInitScripts(initScripts...),
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.
				ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(10*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("container failed: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}

	return &PostgresContainer{
		PostgresContainer: pgContainer,
		ConnectionString:  connStr,
	}, nil
}

package storage

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/storage/migrations"
)

// runMigrations applies every pending goose migration
func (s *Storage) runMigrations(ctx context.Context) error {
	provider, err := s.migrationProvider()
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Info("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version
func (s *Storage) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := s.migrationProvider()
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func (s *Storage) migrationProvider() (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, nil,
		goose.WithGoMigrations(migrations.All()...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Migrate runs all pending schema migrations for the open backend.
func (s *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(s.d.name()); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations/"+s.d.name()); err != nil {
		return fmt.Errorf("%w: run migrations: %v", ErrStoreUnavailable, err)
	}

	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	s.logger.Info("schema up to date", "dialect", s.d.name(), "version", version)
	return nil
}

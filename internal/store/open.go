package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/config"
)

// Open builds the form repository selected by cfg.Backend. The returned close function
// releases any pool that was opened and is never nil.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (schemas.FormRepository, func(), error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		repo, err := NewFileFormRepository(cfg.FormsDir, logger)
		if err != nil {
			return nil, func() {}, err
		}
		return repo, func() {}, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to create connection pool: %w", err)
		}
		repo, err := New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return repo, pool.Close, nil
	}
	return nil, func() {}, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	sqlCreateForms = `
        CREATE TABLE IF NOT EXISTS forms (
            owner_id   TEXT PRIMARY KEY,
            document   JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlUpsertForm = `
        INSERT INTO forms (owner_id, document, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (owner_id) DO UPDATE SET
            document = EXCLUDED.document,
            updated_at = EXCLUDED.updated_at;
    `
	sqlSelectForm = `
        SELECT document FROM forms WHERE owner_id = $1;
    `
)

// PostgresFormRepository keeps one schema document per owner in the forms table.
type PostgresFormRepository struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.FormRepository = (*PostgresFormRepository)(nil)

// New creates a new Postgres repository and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresFormRepository, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresFormRepository{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the forms table when it is missing.
func (s *PostgresFormRepository) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateForms); err != nil {
		return fmt.Errorf("failed to create forms table: %w", err)
	}
	return nil
}

// Load returns the schema stored for ownerID.
func (s *PostgresFormRepository) Load(ctx context.Context, ownerID string) (*schemas.Form, error) {
	var document []byte
	err := s.pool.QueryRow(ctx, sqlSelectForm, ownerID).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("owner %q: %w", ownerID, schemas.ErrFormNotFound)
		}
		return nil, fmt.Errorf("failed to query form: %w", err)
	}

	form, err := schemas.DecodeForm(document)
	if err != nil {
		return nil, fmt.Errorf("stored form for owner %q is invalid: %w", ownerID, err)
	}
	return form, nil
}

// Save upserts the whole schema document for ownerID.
func (s *PostgresFormRepository) Save(ctx context.Context, ownerID string, form *schemas.Form) error {
	document, err := schemas.EncodeForm(form)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, sqlUpsertForm, ownerID, document, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert form: %w", err)
	}
	if tag.RowsAffected() != 1 {
		s.log.Warn("Unexpected row count on form upsert.",
			zap.String("owner_id", ownerID),
			zap.Int64("rows", tag.RowsAffected()),
		)
	}
	return nil
}

// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/thilojaeggi/fynncloud-backend/internal/dbx"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/migrations"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/files"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/multipart"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/quota"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Files returns a files.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return files.NewPostgresRepository(db)
}

// Quota returns a quota.Ledger bound to the provided DBTX.
func (m *PostgresRepositoryManager) Quota(db dbx.DBTX) quota.Ledger {
	return quota.NewPostgresLedger(db)
}

// Multipart returns a multipart.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Multipart(db dbx.DBTX) multipart.Repository {
	return multipart.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}

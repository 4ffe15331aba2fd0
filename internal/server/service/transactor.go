package service

import (
	"context"
	"database/sql"

	"github.com/thilojaeggi/fynncloud-backend/internal/dbx"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/files"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/quota"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/repomanager"
)

// Transactor opens an atomic scope spanning the HierarchyIndex and
// QuotaLedger, for operations whose metadata change and quota adjustment
// must commit or roll back together.
type Transactor interface {
	WithTx(ctx context.Context, fn func(files.Repository, quota.Ledger) error) error
}

// DBTransactor is the production Transactor: it opens a real database/sql
// transaction via dbx.WithTx and hands the callback repositories bound to
// that transaction, via the same RepositoryManager constructors used for
// the pool-scoped instances.
type DBTransactor struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

// NewDBTransactor constructs a Transactor over db, vending repositories
// through repos.
func NewDBTransactor(db *sql.DB, repos repomanager.RepositoryManager) *DBTransactor {
	return &DBTransactor{db: db, repos: repos}
}

func (t *DBTransactor) WithTx(ctx context.Context, fn func(files.Repository, quota.Ledger) error) error {
	return dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(t.repos.Files(tx), t.repos.Quota(tx))
	})
}

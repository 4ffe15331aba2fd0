package repomanager

import (
	"context"
	"database/sql"

	"github.com/thilojaeggi/fynncloud-backend/internal/dbx"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/files"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/multipart"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/quota"
)

// RepositoryManager vends repository implementations bound to a given DBTX
// and owns the schema migration hook, so callers can run the same repo
// constructors inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Quota(db dbx.DBTX) quota.Ledger
	Multipart(db dbx.DBTX) multipart.Repository
}

package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thilojaeggi/fynncloud-backend/internal/common"
	"github.com/thilojaeggi/fynncloud-backend/internal/dbx"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
)

// uniqueViolation is the Postgres SQLSTATE for a unique-key conflict.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique-constraint conflict,
// the concurrency backstop behind uq_file_nodes_owner_parent_name for the
// race EnsureUniqueName's own check-then-insert can't close by itself.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or
// *sql.Tx), so every method runs equally inside or outside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) EnsureUniqueName(ctx context.Context, ownerID string, parentID *string, name string) error {
	query := `
		SELECT 1 FROM file_nodes
		WHERE owner_id = $1 AND name = $2 AND deleted_at IS NULL
		  AND parent_id IS NOT DISTINCT FROM $3
		LIMIT 1`

	var dummy int
	err := r.db.QueryRowContext(ctx, query, ownerID, name, parentID).Scan(&dummy)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("ensure unique name: %w", err)
	default:
		return common.ErrNameConflict
	}
}

func (r *PostgresRepository) ValidateOwnership(ctx context.Context, ownerID, fileID string) (*models.FileNode, error) {
	node, err := r.scanOne(ctx, `
		SELECT id, owner_id, parent_id, name, content_type, size, is_directory,
		       is_favorite, is_shared, created_at, updated_at, last_modified_at, deleted_at
		FROM file_nodes WHERE id = $1 AND owner_id = $2`, fileID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("validate ownership: %w", err)
	}
	return node, nil
}

func (r *PostgresRepository) Breadcrumbs(ctx context.Context, ownerID string, parentID *string, maxDepth int) ([]*models.FileNode, error) {
	var crumbs []*models.FileNode

	cur := parentID
	for depth := 0; cur != nil && depth < maxDepth; depth++ {
		node, err := r.scanOne(ctx, `
			SELECT id, owner_id, parent_id, name, content_type, size, is_directory,
			       is_favorite, is_shared, created_at, updated_at, last_modified_at, deleted_at
			FROM file_nodes WHERE id = $1 AND owner_id = $2`, *cur, ownerID)
		if errors.Is(err, sql.ErrNoRows) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("breadcrumbs: %w", err)
		}
		crumbs = append(crumbs, node)
		cur = node.ParentID
	}

	for i, j := 0, len(crumbs)-1; i < j; i, j = i+1, j-1 {
		crumbs[i], crumbs[j] = crumbs[j], crumbs[i]
	}
	return crumbs, nil
}

func (r *PostgresRepository) Descendants(ctx context.Context, ownerID, rootID string) ([]*models.FileNode, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT * FROM file_nodes WHERE id = $1 AND owner_id = $2
			UNION ALL
			SELECT f.* FROM file_nodes f
			JOIN subtree s ON f.parent_id = s.id
			WHERE f.owner_id = $2
		)
		SELECT id, owner_id, parent_id, name, content_type, size, is_directory,
		       is_favorite, is_shared, created_at, updated_at, last_modified_at, deleted_at
		FROM subtree`

	return r.scanMany(ctx, query, rootID, ownerID)
}

func (r *PostgresRepository) List(ctx context.Context, ownerID string, filter models.ListFilter) ([]*models.FileNode, error) {
	cols := `id, owner_id, parent_id, name, content_type, size, is_directory,
	         is_favorite, is_shared, created_at, updated_at, last_modified_at, deleted_at`

	switch filter.Kind {
	case models.ListFolder:
		query := fmt.Sprintf(`SELECT %s FROM file_nodes
			WHERE owner_id = $1 AND deleted_at IS NULL AND parent_id IS NOT DISTINCT FROM $2
			ORDER BY is_directory DESC, name ASC`, cols)
		return r.scanMany(ctx, query, ownerID, filter.ParentID)
	case models.ListAll:
		query := fmt.Sprintf(`SELECT %s FROM file_nodes
			WHERE owner_id = $1 AND deleted_at IS NULL
			ORDER BY updated_at DESC`, cols)
		return r.scanMany(ctx, query, ownerID)
	case models.ListFavorites:
		query := fmt.Sprintf(`SELECT %s FROM file_nodes
			WHERE owner_id = $1 AND deleted_at IS NULL AND is_favorite
			ORDER BY updated_at DESC`, cols)
		return r.scanMany(ctx, query, ownerID)
	case models.ListRecent:
		query := fmt.Sprintf(`SELECT %s FROM file_nodes
			WHERE owner_id = $1 AND deleted_at IS NULL AND NOT is_directory
			ORDER BY updated_at DESC LIMIT 50`, cols)
		return r.scanMany(ctx, query, ownerID)
	case models.ListShared:
		query := fmt.Sprintf(`SELECT %s FROM file_nodes
			WHERE owner_id = $1 AND deleted_at IS NULL AND is_shared
			ORDER BY updated_at DESC`, cols)
		return r.scanMany(ctx, query, ownerID)
	case models.ListTrash:
		query := fmt.Sprintf(`SELECT %s FROM file_nodes
			WHERE owner_id = $1 AND deleted_at IS NOT NULL
			ORDER BY deleted_at DESC`, cols)
		return r.scanMany(ctx, query, ownerID)
	default:
		return nil, fmt.Errorf("list: %w", common.ErrInternal)
	}
}

func (r *PostgresRepository) Insert(ctx context.Context, node *models.FileNode) error {
	query := `
		INSERT INTO file_nodes (id, owner_id, parent_id, name, content_type, size,
		                         is_directory, is_favorite, is_shared,
		                         created_at, updated_at, last_modified_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		node.ID, node.OwnerID, node.ParentID, node.Name, node.ContentType, node.Size,
		node.IsDirectory, node.IsFavorite, node.IsShared,
		node.CreatedAt, node.UpdatedAt, node.LastModifiedAt, node.DeletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrNameConflict
		}
		return fmt.Errorf("insert file node: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, node *models.FileNode) error {
	query := `
		UPDATE file_nodes SET
			parent_id = $1, name = $2, content_type = $3, size = $4,
			is_favorite = $5, is_shared = $6, updated_at = $7, last_modified_at = $8
		WHERE id = $9 AND owner_id = $10`

	res, err := r.db.ExecContext(ctx, query,
		node.ParentID, node.Name, node.ContentType, node.Size,
		node.IsFavorite, node.IsShared, node.UpdatedAt, node.LastModifiedAt,
		node.ID, node.OwnerID)
	if err != nil {
		return fmt.Errorf("update file node: %w", err)
	}
	return requireSingleRow(res)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, ownerID, fileID string, deletedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE file_nodes SET deleted_at = $1
		WHERE id = $2 AND owner_id = $3 AND deleted_at IS NULL`, deletedAt, fileID, ownerID)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	return requireSingleRow(res)
}

func (r *PostgresRepository) Restore(ctx context.Context, node *models.FileNode) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE file_nodes SET parent_id = $1, name = $2, deleted_at = NULL, updated_at = $3
		WHERE id = $4 AND owner_id = $5`,
		node.ParentID, node.Name, node.UpdatedAt, node.ID, node.OwnerID)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return requireSingleRow(res)
}

// DeleteMany removes every id in one statement, so a descendant-subtree
// hard-delete can never leave a partially-deleted prefix behind; the
// caller binds this to a transaction alongside the matching quota release.
func (r *PostgresRepository) DeleteMany(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM file_nodes WHERE owner_id = $1 AND id = ANY($2)`, ownerID, ids); err != nil {
		return fmt.Errorf("delete many: %w", err)
	}
	return nil
}

func requireSingleRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*models.FileNode, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	return scanRow(row)
}

func (r *PostgresRepository) scanMany(ctx context.Context, query string, args ...any) ([]*models.FileNode, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query file nodes: %w", err)
	}
	defer rows.Close()

	var result []*models.FileNode
	for rows.Next() {
		node, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// rowScanner is the subset of *sql.Row / *sql.Rows shared by scanRow.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*models.FileNode, error) {
	node := &models.FileNode{}
	err := row.Scan(
		&node.ID, &node.OwnerID, &node.ParentID, &node.Name, &node.ContentType, &node.Size,
		&node.IsDirectory, &node.IsFavorite, &node.IsShared,
		&node.CreatedAt, &node.UpdatedAt, &node.LastModifiedAt, &node.DeletedAt)
	if err != nil {
		return nil, err
	}
	return node, nil
}

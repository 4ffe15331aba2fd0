// Package multipart persists MultipartSession rows: the audit/cleanup
// record that backs the stateless multipart upload protocol.
package multipart

import (
	"context"
	"fmt"
	"time"

	"github.com/thilojaeggi/fynncloud-backend/internal/dbx"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
)

// Repository is the MultipartSession persistence contract.
type Repository interface {
	Insert(ctx context.Context, session *models.MultipartSession) error
	Delete(ctx context.Context, id string) error
	ExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.MultipartSession, error)
}

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, session *models.MultipartSession) error {
	query := `
		INSERT INTO multipart_sessions
			(id, file_id, provider_upload_id, owner_id, parent_id, filename, content_type, total_size, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.FileID, session.ProviderUploadID, session.OwnerID, session.ParentID,
		session.Filename, session.ContentType, session.TotalSize, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert multipart session: %w", err)
	}
	return nil
}

// Delete is idempotent: deleting an already-gone session is not an error,
// since both Complete and Abort race the expiry sweeper for the same row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM multipart_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete multipart session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.MultipartSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, file_id, provider_upload_id, owner_id, parent_id, filename, content_type, total_size, created_at, expires_at
		FROM multipart_sessions
		WHERE expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select expired multipart sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.MultipartSession
	for rows.Next() {
		s := &models.MultipartSession{}
		if err := rows.Scan(&s.ID, &s.FileID, &s.ProviderUploadID, &s.OwnerID, &s.ParentID,
			&s.Filename, &s.ContentType, &s.TotalSize, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

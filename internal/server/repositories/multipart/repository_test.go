package multipart

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`INSERT INTO multipart_sessions`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Insert(context.Background(), &models.MultipartSession{
		ID: "sess-1", FileID: "file-1", ProviderUploadID: "up-1", OwnerID: "u1",
		Filename: "big.bin", ContentType: "application/octet-stream", TotalSize: 15 << 20,
		CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	})
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpiredBefore_ReturnsRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	cols := []string{"id", "file_id", "provider_upload_id", "owner_id", "parent_id",
		"filename", "content_type", "total_size", "created_at", "expires_at"}
	mock.ExpectQuery(`SELECT .* FROM multipart_sessions`).
		WithArgs(now, 10).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"sess-1", "file-1", "up-1", "u1", nil, "big.bin", "application/octet-stream",
			int64(15<<20), now.Add(-25*time.Hour), now.Add(-time.Hour)))

	sessions, err := repo.ExpiredBefore(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

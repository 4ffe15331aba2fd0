package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/thilojaeggi/fynncloud-backend/internal/clock"
	"github.com/thilojaeggi/fynncloud-backend/internal/common"
	"github.com/thilojaeggi/fynncloud-backend/internal/logging"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/auth"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/files"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/multipart"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/quota"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/storage"
)

const (
	minPartNumber = 1
	maxPartNumber = 10000
)

// InitiateResult is returned to the client as the opening handshake of a
// multipart upload.
type InitiateResult struct {
	SessionID    string
	FileID       string
	UploadID     string
	MaxChunkSize int64
	Token        string
}

// PartResult is returned to the client after a single chunk is accepted.
type PartResult struct {
	PartNumber int
	ETag       string
	Size       int64
}

// MultipartCoordinator drives the stateless multipart upload protocol: an
// Initiate call mints a signed UploadToken carrying every claim the hot
// upload-part path needs, so that path never touches the database. Complete
// and Abort verify the same token and tear down the MultipartSession record.
type MultipartCoordinator struct {
	provider     storage.Provider
	ledger       quota.Ledger
	index        files.Repository
	sessions     multipart.Repository
	clock        clock.Clock
	log          logging.Logger
	sync         SyncEventSink
	secretKey    []byte
	tokenTTL     time.Duration
	maxChunkSize int64
}

// NewMultipartCoordinator constructs a MultipartCoordinator. secretKey signs
// and verifies every UploadToken; tokenTTL is also used as the
// MultipartSession's expiry window, since the session is useless once its
// token can no longer authenticate a part upload.
func NewMultipartCoordinator(
	provider storage.Provider,
	ledger quota.Ledger,
	index files.Repository,
	sessions multipart.Repository,
	c clock.Clock,
	log logging.Logger,
	sink SyncEventSink,
	secretKey []byte,
	tokenTTL time.Duration,
	maxChunkSize int64,
) *MultipartCoordinator {
	return &MultipartCoordinator{
		provider:     provider,
		ledger:       ledger,
		index:        index,
		sessions:     sessions,
		clock:        c,
		log:          log,
		sync:         sink,
		secretKey:    secretKey,
		tokenTTL:     tokenTTL,
		maxChunkSize: maxChunkSize,
	}
}

// Initiate validates the destination, reserves the full claimed size
// up-front, opens a provider-native multipart upload, and mints the signed
// token that drives every subsequent call for this session.
func (c *MultipartCoordinator) Initiate(ctx context.Context, ownerID, filename, contentType string, parentID *string, totalSize int64, lastModified int64) (*InitiateResult, error) {
	if parentID != nil {
		parent, err := c.index.ValidateOwnership(ctx, ownerID, *parentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsDirectory {
			return nil, common.ErrConflict
		}
	}
	if err := c.index.EnsureUniqueName(ctx, ownerID, parentID, filename); err != nil {
		return nil, err
	}

	if err := c.ledger.Reserve(ctx, ownerID, totalSize); err != nil {
		return nil, err
	}

	fileID := uuid.NewString()
	uploadID, err := c.provider.InitiateMultipart(ctx, fileID, ownerID)
	if err != nil {
		c.release(ctx, ownerID, totalSize)
		return nil, err
	}

	now := c.clock.Now()
	sessionID := uuid.NewString()
	session := &models.MultipartSession{
		ID:               sessionID,
		FileID:           fileID,
		ProviderUploadID: uploadID,
		OwnerID:          ownerID,
		ParentID:         parentID,
		Filename:         filename,
		ContentType:      contentType,
		TotalSize:        totalSize,
		CreatedAt:        now,
		ExpiresAt:        now.Add(c.tokenTTL),
	}
	if err := c.sessions.Insert(ctx, session); err != nil {
		c.abortProviderUpload(ctx, fileID, ownerID, uploadID)
		c.release(ctx, ownerID, totalSize)
		return nil, err
	}

	claims := auth.UploadClaims{
		SessionID:        sessionID,
		FileID:           fileID,
		ProviderUploadID: uploadID,
		OwnerID:          ownerID,
		Filename:         filename,
		ContentType:      contentType,
		TotalSize:        totalSize,
		MaxChunkSize:     c.maxChunkSize,
		LastModified:     lastModified,
	}
	if parentID != nil {
		claims.ParentID = *parentID
	}

	token, err := auth.GenerateUploadToken(claims, c.secretKey, c.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}

	return &InitiateResult{
		SessionID:    sessionID,
		FileID:       fileID,
		UploadID:     uploadID,
		MaxChunkSize: c.maxChunkSize,
		Token:        token,
	}, nil
}

// UploadPart is the hot path: it verifies the token, checks the part number
// and declared length against the token's claims, then streams directly
// into the provider. It touches zero database rows.
func (c *MultipartCoordinator) UploadPart(ctx context.Context, sessionID, token string, partNumber int, contentLength int64, body io.Reader) (*PartResult, error) {
	claims, err := c.verifyToken(sessionID, token)
	if err != nil {
		return nil, err
	}

	if partNumber < minPartNumber || partNumber > maxPartNumber {
		return nil, fmt.Errorf("%w: part number out of range", common.ErrBadChunkSet)
	}
	if contentLength > claims.MaxChunkSize {
		return nil, common.ErrOversizeStream
	}

	part, err := c.provider.UploadPart(ctx, claims.FileID, claims.OwnerID, claims.ProviderUploadID, partNumber, body, contentLength)
	if err != nil {
		return nil, err
	}

	return &PartResult{PartNumber: part.PartNumber, ETag: part.ETag, Size: part.Size}, nil
}

// Complete validates the client's manifest, finalizes the provider-side
// object, and commits the FileNode. A FileNode already existing for the
// token's file id makes the token single-use.
func (c *MultipartCoordinator) Complete(ctx context.Context, sessionID, token string, parts []models.Part) (*models.FileNode, error) {
	claims, err := c.verifyToken(sessionID, token)
	if err != nil {
		return nil, err
	}

	if _, err := c.index.ValidateOwnership(ctx, claims.OwnerID, claims.FileID); err == nil {
		return nil, common.ErrConflict
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	sorted, err := validateManifest(parts)
	if err != nil {
		return nil, err
	}

	providerParts := make([]storage.Part, len(sorted))
	for i, p := range sorted {
		providerParts[i] = storage.Part{PartNumber: p.PartNumber, ETag: p.ETag, Size: p.Size}
	}

	if err := c.provider.CompleteMultipart(ctx, claims.FileID, claims.OwnerID, claims.ProviderUploadID, providerParts); err != nil {
		return nil, err
	}

	now := c.clock.Now()
	var parentID *string
	if claims.ParentID != "" {
		parentID = &claims.ParentID
	}
	node := &models.FileNode{
		ID:             claims.FileID,
		OwnerID:        claims.OwnerID,
		ParentID:       parentID,
		Name:           claims.Filename,
		ContentType:    claims.ContentType,
		Size:           claims.TotalSize,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastModifiedAt: unixOrFallback(claims.LastModified, now),
	}

	if err := c.index.Insert(ctx, node); err != nil {
		return nil, err
	}

	c.deleteSessionBestEffort(ctx, sessionID)
	c.appendSync(ctx, claims.OwnerID, claims.FileID, SyncEventMultipartComplete, true)
	return node, nil
}

// Abort releases the reservation and discards the provider-side upload.
// Every step is best-effort: the expiry sweeper is the safety net for
// whatever this call cannot clean up synchronously.
func (c *MultipartCoordinator) Abort(ctx context.Context, sessionID, token string) error {
	claims, err := c.verifyToken(sessionID, token)
	if err != nil {
		return err
	}

	c.release(ctx, claims.OwnerID, claims.TotalSize)
	c.abortProviderUpload(ctx, claims.FileID, claims.OwnerID, claims.ProviderUploadID)
	c.deleteSessionBestEffort(ctx, sessionID)
	return nil
}

// SweepExpired scans MultipartSession rows past their expiry, releasing
// their reservation and discarding their provider upload before deleting
// the row. Safe to run concurrently with itself and with in-flight
// Complete/Abort calls racing the same rows.
func (c *MultipartCoordinator) SweepExpired(ctx context.Context, limit int) (int, error) {
	expired, err := c.sessions.ExpiredBefore(ctx, c.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	for _, session := range expired {
		c.release(ctx, session.OwnerID, session.TotalSize)
		c.abortProviderUpload(ctx, session.FileID, session.OwnerID, session.ProviderUploadID)
		c.deleteSessionBestEffort(ctx, session.ID)
	}

	return len(expired), nil
}

func (c *MultipartCoordinator) verifyToken(sessionID, token string) (*auth.UploadClaims, error) {
	claims, err := auth.ParseUploadToken(token, c.secretKey)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// validateManifest checks that part numbers form the contiguous set
// {1..N} with no duplicates, and returns them sorted ascending.
func validateManifest(parts []models.Part) ([]models.Part, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty manifest", common.ErrBadChunkSet)
	}

	sorted := append([]models.Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	for i, p := range sorted {
		if p.PartNumber != i+1 {
			return nil, fmt.Errorf("%w: part numbers are not a contiguous set starting at 1", common.ErrBadChunkSet)
		}
	}

	return sorted, nil
}

func (c *MultipartCoordinator) release(ctx context.Context, ownerID string, amount int64) {
	if amount <= 0 {
		return
	}
	if err := c.ledger.Release(ctx, ownerID, amount); err != nil {
		c.log.Warn(ctx, "quota release failed during multipart compensation", "owner_id", ownerID, "amount", amount, "error", err)
	}
}

func (c *MultipartCoordinator) abortProviderUpload(ctx context.Context, fileID, ownerID, uploadID string) {
	if err := c.provider.AbortMultipart(ctx, fileID, ownerID, uploadID); err != nil {
		c.log.Warn(ctx, "provider abort failed during multipart compensation", "file_id", fileID, "owner_id", ownerID, "error", err)
	}
}

func (c *MultipartCoordinator) deleteSessionBestEffort(ctx context.Context, sessionID string) {
	if err := c.sessions.Delete(ctx, sessionID); err != nil {
		c.log.Warn(ctx, "multipart session delete failed", "session_id", sessionID, "error", err)
	}
}

func (c *MultipartCoordinator) appendSync(ctx context.Context, ownerID, fileID string, kind SyncEventKind, contentUpdated bool) {
	if err := c.sync.Append(ctx, SyncEvent{OwnerID: ownerID, FileID: fileID, Kind: kind, ContentUpdated: contentUpdated}); err != nil {
		c.log.Warn(ctx, "sync event append failed", "owner_id", ownerID, "file_id", fileID, "kind", kind, "error", err)
	}
}

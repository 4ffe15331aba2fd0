// Package storage implements the StorageProvider capability set: physical
// byte I/O against a local filesystem or S3-compatible object store, plus
// the ByteCountingBody streaming guard shared by both backends' callers.
package storage

import (
	"context"
	"io"
)

// Part is one uploaded chunk of a multipart session, as reported by a
// provider's UploadPart and consumed by its CompleteMultipart.
type Part struct {
	PartNumber int
	ETag       string
	Size       int64
}

// Provider is the capability set implemented by the Local and S3 backends.
// Every method is scoped to (ownerID, fileID); a single Provider instance
// is shared across requests and must be safe for concurrent use.
type Provider interface {
	// Save writes the entire stream to the object addressed by
	// (ownerID, fileID), failing with common.ErrOversizeStream if more
	// than maxSize bytes are read. Returns the number of bytes actually
	// written; on failure the object is left absent, never torn.
	Save(ctx context.Context, fileID, ownerID string, r io.Reader, maxSize int64) (actualBytes int64, err error)

	// GetResponse opens a byte stream over the whole object for download
	// along with its content length; it takes no byte range.
	GetResponse(ctx context.Context, fileID, ownerID string) (io.ReadCloser, int64, error)

	// Delete removes the object. Idempotent; absence is not an error.
	Delete(ctx context.Context, fileID, ownerID string) error

	// Exists reports whether the object is present.
	Exists(ctx context.Context, fileID, ownerID string) (bool, error)

	// InitiateMultipart returns a provider-scoped upload id.
	InitiateMultipart(ctx context.Context, fileID, ownerID string) (uploadID string, err error)

	// UploadPart streams r (at most maxSize bytes) into the given part of
	// an in-progress multipart upload.
	UploadPart(ctx context.Context, fileID, ownerID, uploadID string, partNumber int, r io.Reader, maxSize int64) (Part, error)

	// CompleteMultipart finalizes the upload from parts, which must be in
	// ascending part-number order. The provider verifies each etag.
	CompleteMultipart(ctx context.Context, fileID, ownerID, uploadID string, parts []Part) error

	// AbortMultipart discards an in-progress upload. Idempotent; must
	// succeed even if some chunks are missing.
	AbortMultipart(ctx context.Context, fileID, ownerID, uploadID string) error

	// DeleteUserData removes every object owned by ownerID. Used by
	// account-level cleanup; not part of the per-file hot path.
	DeleteUserData(ctx context.Context, ownerID string) error

	// GetUserStorageSize sums the size of every object owned by ownerID,
	// for reconciliation against QuotaLedger.
	GetUserStorageSize(ctx context.Context, ownerID string) (int64, error)
}

package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/thilojaeggi/fynncloud-backend/internal/common"
	"github.com/thilojaeggi/fynncloud-backend/internal/logging"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/files"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/quota"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/storage"
)

// -------- test fakes --------

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fixedClock struct{ at time.Time }

func (f fixedClock) Now() time.Time { return f.at }

type fakeProvider struct {
	storage.Provider

	savedBytes   int64
	saveErr      error
	deleteCalls  []string
	deleteErr    error
	existsResult bool

	initiateUploadID string
	initiateErr      error

	uploadPartResult storage.Part
	uploadPartErr    error

	completeErr error
	abortCalls  []string
	abortErr    error
}

func (f *fakeProvider) Save(ctx context.Context, fileID, ownerID string, r io.Reader, maxSize int64) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	if f.savedBytes != 0 {
		return f.savedBytes, nil
	}
	_, _ = io.Copy(io.Discard, r)
	return maxSize, nil
}

func (f *fakeProvider) Delete(ctx context.Context, fileID, ownerID string) error {
	f.deleteCalls = append(f.deleteCalls, fileID)
	return f.deleteErr
}

func (f *fakeProvider) Exists(ctx context.Context, fileID, ownerID string) (bool, error) {
	return f.existsResult, nil
}

func (f *fakeProvider) GetResponse(ctx context.Context, fileID, ownerID string) (io.ReadCloser, int64, error) {
	return io.NopCloser(nil), 0, nil
}

func (f *fakeProvider) InitiateMultipart(ctx context.Context, fileID, ownerID string) (string, error) {
	if f.initiateErr != nil {
		return "", f.initiateErr
	}
	return f.initiateUploadID, nil
}

func (f *fakeProvider) UploadPart(ctx context.Context, fileID, ownerID, uploadID string, partNumber int, r io.Reader, maxSize int64) (storage.Part, error) {
	if f.uploadPartErr != nil {
		return storage.Part{}, f.uploadPartErr
	}
	_, _ = io.Copy(io.Discard, r)
	return f.uploadPartResult, nil
}

func (f *fakeProvider) CompleteMultipart(ctx context.Context, fileID, ownerID, uploadID string, parts []storage.Part) error {
	return f.completeErr
}

func (f *fakeProvider) AbortMultipart(ctx context.Context, fileID, ownerID, uploadID string) error {
	f.abortCalls = append(f.abortCalls, uploadID)
	return f.abortErr
}

type fakeLedger struct {
	reserveErr error
	reserved   []int64
	released   []int64
	releaseErr error
	adjustErr  error
}

func (f *fakeLedger) Reserve(ctx context.Context, ownerID string, amount int64) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.reserved = append(f.reserved, amount)
	return nil
}

func (f *fakeLedger) Release(ctx context.Context, ownerID string, amount int64) error {
	f.released = append(f.released, amount)
	return f.releaseErr
}

func (f *fakeLedger) Adjust(ctx context.Context, ownerID string, delta int64) error {
	return f.adjustErr
}

func (f *fakeLedger) GetUsage(ctx context.Context, ownerID string) (int64, int64, error) {
	return 0, 0, nil
}

type fakeIndex struct {
	ensureUniqueErr error

	nodes map[string]*models.FileNode

	insertErr error
	updateErr error

	softDeleteErr error
	restoreErr    error
	deleteManyErr error

	descendants    []*models.FileNode
	descendantsErr error

	listResult []*models.FileNode
	listErr    error

	breadcrumbs []*models.FileNode
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{nodes: map[string]*models.FileNode{}}
}

func (f *fakeIndex) EnsureUniqueName(ctx context.Context, ownerID string, parentID *string, name string) error {
	return f.ensureUniqueErr
}

func (f *fakeIndex) ValidateOwnership(ctx context.Context, ownerID, fileID string) (*models.FileNode, error) {
	n, ok := f.nodes[fileID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return n, nil
}

func (f *fakeIndex) Breadcrumbs(ctx context.Context, ownerID string, parentID *string, maxDepth int) ([]*models.FileNode, error) {
	return f.breadcrumbs, nil
}

func (f *fakeIndex) Descendants(ctx context.Context, ownerID, rootID string) ([]*models.FileNode, error) {
	return f.descendants, f.descendantsErr
}

func (f *fakeIndex) List(ctx context.Context, ownerID string, filter models.ListFilter) ([]*models.FileNode, error) {
	return f.listResult, f.listErr
}

func (f *fakeIndex) Insert(ctx context.Context, node *models.FileNode) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nodes[node.ID] = node
	return nil
}

func (f *fakeIndex) Update(ctx context.Context, node *models.FileNode) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.nodes[node.ID] = node
	return nil
}

func (f *fakeIndex) SoftDelete(ctx context.Context, ownerID, fileID string, deletedAt time.Time) error {
	if f.softDeleteErr != nil {
		return f.softDeleteErr
	}
	if n, ok := f.nodes[fileID]; ok {
		n.DeletedAt = &deletedAt
	}
	return nil
}

func (f *fakeIndex) Restore(ctx context.Context, node *models.FileNode) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.nodes[node.ID] = node
	return nil
}

func (f *fakeIndex) DeleteMany(ctx context.Context, ownerID string, ids []string) error {
	if f.deleteManyErr != nil {
		return f.deleteManyErr
	}
	for _, id := range ids {
		delete(f.nodes, id)
	}
	return nil
}

type fakeSessions struct {
	inserted []*models.MultipartSession
	insertErr error

	deleted   []string
	deleteErr error

	expired    []*models.MultipartSession
	expiredErr error
}

func (f *fakeSessions) Insert(ctx context.Context, session *models.MultipartSession) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, session)
	return nil
}

func (f *fakeSessions) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeSessions) ExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.MultipartSession, error) {
	return f.expired, f.expiredErr
}

type fakeSync struct {
	events  []SyncEvent
	appendErr error
}

func (f *fakeSync) Append(ctx context.Context, event SyncEvent) error {
	f.events = append(f.events, event)
	return f.appendErr
}

// fakeTransactor runs fn directly against the index/ledger it was built
// with, so HardDelete's in-transaction mutations are visible on the same
// fakes the test asserts against; txErr simulates the transaction as a
// whole failing (and therefore rolling back) before fn's effects apply.
type fakeTransactor struct {
	index  files.Repository
	ledger quota.Ledger
	txErr  error
}

func (f *fakeTransactor) WithTx(ctx context.Context, fn func(files.Repository, quota.Ledger) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	return fn(f.index, f.ledger)
}

type testError string

func (e testError) Error() string { return string(e) }

package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thilojaeggi/fynncloud-backend/internal/common"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/auth"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
)

var testSecret = []byte("test-secret-key")

func newTestCoordinator(provider *fakeProvider, ledger *fakeLedger, index *fakeIndex, sessions *fakeSessions, sink SyncEventSink) *MultipartCoordinator {
	if sink == nil {
		sink = NoopSyncEventSink{}
	}
	c := fixedClock{at: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMultipartCoordinator(provider, ledger, index, sessions, c, discardLogger(), sink, testSecret, 24*time.Hour, 16<<20)
}

func TestInitiate_Success(t *testing.T) {
	provider := &fakeProvider{initiateUploadID: "upload-1"}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	result, err := c.Initiate(context.Background(), "owner-1", "movie.mp4", "video/mp4", nil, 1<<30, 0)
	require.NoError(t, err)
	assert.Equal(t, "upload-1", result.UploadID)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, int64(16<<20), result.MaxChunkSize)
	assert.Equal(t, []int64{1 << 30}, ledger.reserved)
	require.Len(t, sessions.inserted, 1)
	assert.Equal(t, result.FileID, sessions.inserted[0].FileID)

	claims, err := auth.ParseUploadToken(result.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, result.SessionID, claims.SessionID)
	assert.Equal(t, "owner-1", claims.OwnerID)
	assert.Equal(t, "movie.mp4", claims.Filename)
}

func TestInitiate_QuotaExceeded(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{reserveErr: common.ErrQuotaExceeded}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	_, err := c.Initiate(context.Background(), "owner-1", "f.bin", "application/octet-stream", nil, 100, 0)
	assert.ErrorIs(t, err, common.ErrQuotaExceeded)
}

func TestInitiate_ProviderFailureReleasesReservation(t *testing.T) {
	provider := &fakeProvider{initiateErr: common.ErrProviderTransient}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	_, err := c.Initiate(context.Background(), "owner-1", "f.bin", "application/octet-stream", nil, 100, 0)
	assert.ErrorIs(t, err, common.ErrProviderTransient)
	assert.Equal(t, []int64{100}, ledger.released)
}

func TestInitiate_SessionInsertFailureAbortsAndReleases(t *testing.T) {
	provider := &fakeProvider{initiateUploadID: "upload-1"}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{insertErr: common.ErrInternal}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	_, err := c.Initiate(context.Background(), "owner-1", "f.bin", "application/octet-stream", nil, 100, 0)
	assert.ErrorIs(t, err, common.ErrInternal)
	assert.Equal(t, []int64{100}, ledger.released)
	assert.Contains(t, provider.abortCalls, "upload-1")
}

func issueTestToken(t *testing.T, claims auth.UploadClaims) string {
	t.Helper()
	token, err := auth.GenerateUploadToken(claims, testSecret, 24*time.Hour)
	require.NoError(t, err)
	return token
}

func TestUploadPart_Success(t *testing.T) {
	provider := &fakeProvider{}
	provider.uploadPartResult.PartNumber = 1
	provider.uploadPartResult.ETag = "etag-1"
	provider.uploadPartResult.Size = 5
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", ProviderUploadID: "upload-1", MaxChunkSize: 100})

	result, err := c.UploadPart(context.Background(), "sess-1", token, 1, 5, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "etag-1", result.ETag)
	assert.Equal(t, int64(5), result.Size)
}

func TestUploadPart_SessionMismatchRejected(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", MaxChunkSize: 100})

	_, err := c.UploadPart(context.Background(), "sess-OTHER", token, 1, 5, bytes.NewReader([]byte("hello")))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestUploadPart_PartNumberOutOfRange(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", MaxChunkSize: 100})

	_, err := c.UploadPart(context.Background(), "sess-1", token, 0, 5, bytes.NewReader(nil))
	assert.ErrorIs(t, err, common.ErrBadChunkSet)

	_, err = c.UploadPart(context.Background(), "sess-1", token, 10001, 5, bytes.NewReader(nil))
	assert.ErrorIs(t, err, common.ErrBadChunkSet)
}

func TestUploadPart_ContentLengthExceedsMaxChunk(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", MaxChunkSize: 10})

	_, err := c.UploadPart(context.Background(), "sess-1", token, 1, 100, bytes.NewReader(nil))
	assert.ErrorIs(t, err, common.ErrOversizeStream)
}

func TestUploadPart_ExpiredToken(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token, err := auth.GenerateUploadToken(auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", MaxChunkSize: 100}, testSecret, -time.Hour)
	require.NoError(t, err)

	_, err = c.UploadPart(context.Background(), "sess-1", token, 1, 5, bytes.NewReader(nil))
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestComplete_Success(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	sink := &fakeSync{}
	c := newTestCoordinator(provider, ledger, index, sessions, sink)

	token := issueTestToken(t, auth.UploadClaims{
		SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1",
		ProviderUploadID: "upload-1", Filename: "a.bin", ContentType: "application/octet-stream", TotalSize: 10,
	})

	node, err := c.Complete(context.Background(), "sess-1", token, []models.Part{
		{PartNumber: 1, ETag: "e1", Size: 5},
		{PartNumber: 2, ETag: "e2", Size: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, "file-1", node.ID)
	assert.Equal(t, int64(10), node.Size)
	assert.Equal(t, []string{"sess-1"}, sessions.deleted)
	require.Len(t, sink.events, 1)
	assert.Equal(t, SyncEventMultipartComplete, sink.events[0].Kind)
}

func TestComplete_DuplicateCompletionIsConflict(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	index.nodes["file-1"] = &models.FileNode{ID: "file-1", OwnerID: "owner-1"}
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", TotalSize: 10})

	_, err := c.Complete(context.Background(), "sess-1", token, []models.Part{{PartNumber: 1, ETag: "e1", Size: 10}})
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestComplete_RejectsNonContiguousManifest(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", TotalSize: 10})

	_, err := c.Complete(context.Background(), "sess-1", token, []models.Part{
		{PartNumber: 1, ETag: "e1", Size: 5},
		{PartNumber: 3, ETag: "e2", Size: 5},
	})
	assert.ErrorIs(t, err, common.ErrBadChunkSet)
}

func TestComplete_RejectsEmptyManifest(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", TotalSize: 10})

	_, err := c.Complete(context.Background(), "sess-1", token, nil)
	assert.ErrorIs(t, err, common.ErrBadChunkSet)
}

func TestComplete_EtagMismatchIsBadChunkSetAndKeepsReservation(t *testing.T) {
	provider := &fakeProvider{completeErr: common.ErrBadChunkSet}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", TotalSize: 10})

	_, err := c.Complete(context.Background(), "sess-1", token, []models.Part{{PartNumber: 1, ETag: "bad", Size: 10}})
	assert.ErrorIs(t, err, common.ErrBadChunkSet)
	assert.Empty(t, ledger.released)
	assert.Empty(t, sessions.deleted)
}

func TestAbort_ReleasesAndDeletesBestEffort(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", ProviderUploadID: "upload-1", TotalSize: 42})

	err := c.Abort(context.Background(), "sess-1", token)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ledger.released)
	assert.Contains(t, provider.abortCalls, "upload-1")
	assert.Equal(t, []string{"sess-1"}, sessions.deleted)
}

func TestAbort_SucceedsDespiteProviderAndReleaseFailures(t *testing.T) {
	provider := &fakeProvider{abortErr: common.ErrProviderTransient}
	ledger := &fakeLedger{releaseErr: common.ErrInternal}
	index := newFakeIndex()
	sessions := &fakeSessions{deleteErr: common.ErrInternal}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	token := issueTestToken(t, auth.UploadClaims{SessionID: "sess-1", FileID: "file-1", OwnerID: "owner-1", ProviderUploadID: "upload-1", TotalSize: 42})

	err := c.Abort(context.Background(), "sess-1", token)
	assert.NoError(t, err)
}

func TestSweepExpired_ReleasesAbortsAndDeletesEach(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{}
	index := newFakeIndex()
	sessions := &fakeSessions{
		expired: []*models.MultipartSession{
			{ID: "s1", FileID: "f1", OwnerID: "owner-1", ProviderUploadID: "u1", TotalSize: 10},
			{ID: "s2", FileID: "f2", OwnerID: "owner-2", ProviderUploadID: "u2", TotalSize: 20},
		},
	}
	c := newTestCoordinator(provider, ledger, index, sessions, nil)

	n, err := c.SweepExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int64{10, 20}, ledger.released)
	assert.ElementsMatch(t, []string{"u1", "u2"}, provider.abortCalls)
	assert.ElementsMatch(t, []string{"s1", "s2"}, sessions.deleted)
}

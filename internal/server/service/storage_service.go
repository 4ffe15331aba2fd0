// Package service implements StorageService, the orchestrator composing
// StorageProvider, QuotaLedger, and HierarchyIndex into the user-visible
// file operations. Every method here owns its own compensation path: on
// any failure the reservations, provider writes, and metadata rows it
// made along the way are unwound in reverse order. The one exception is
// UpdateContent: once its provider write has replaced the object, a later
// failure compensates only the reservation and leaves the new bytes.
package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thilojaeggi/fynncloud-backend/internal/clock"
	"github.com/thilojaeggi/fynncloud-backend/internal/common"
	"github.com/thilojaeggi/fynncloud-backend/internal/logging"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/files"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/quota"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/storage"
)

// sizeTolerance bounds the gap between a claimed upload size and the bytes
// actually written: both the max-allowed overrun and the hard-reject
// threshold derive from it.
const sizeTolerance = 1 << 20 // 1 MiB

// StorageService is the orchestrator for the user-visible file operations:
// upload, update, move/rename/favorite, recursive delete, restore, and
// directory creation, each composing Provider + Ledger + Index.
type StorageService struct {
	provider storage.Provider
	ledger   quota.Ledger
	index    files.Repository
	tx       Transactor
	clock    clock.Clock
	log      logging.Logger
	sync     SyncEventSink
}

// New constructs a StorageService. sink may be NoopSyncEventSink{}. tx binds
// the metadata-delete + quota-release step of HardDelete to a single
// transaction.
func New(provider storage.Provider, ledger quota.Ledger, index files.Repository, tx Transactor, c clock.Clock, log logging.Logger, sink SyncEventSink) *StorageService {
	return &StorageService{provider: provider, ledger: ledger, index: index, tx: tx, clock: c, log: log, sync: sink}
}

func maxAllowed(claimed int64) int64 {
	tolerance := claimed / 20
	if tolerance < sizeTolerance {
		tolerance = sizeTolerance
	}
	return claimed + tolerance
}

// Upload runs validate → reserve → write → reconcile → commit, compensating
// backwards on every failure.
func (s *StorageService) Upload(ctx context.Context, ownerID, filename, contentType string, parentID *string, claimedSize int64, lastModified int64, body io.Reader) (*models.FileNode, error) {
	if err := s.index.EnsureUniqueName(ctx, ownerID, parentID, filename); err != nil {
		return nil, err
	}

	if err := s.ledger.Reserve(ctx, ownerID, claimedSize); err != nil {
		return nil, err
	}

	fileID := uuid.NewString()
	actualBytes, err := s.provider.Save(ctx, fileID, ownerID, body, maxAllowed(claimedSize))
	if err != nil {
		s.release(ctx, ownerID, claimedSize)
		return nil, err
	}

	if actualBytes > claimedSize+sizeTolerance {
		s.deleteObjectBestEffort(ctx, fileID, ownerID)
		s.release(ctx, ownerID, claimedSize)
		return nil, common.ErrSizeMismatch
	}

	if diff := claimedSize - actualBytes; diff > sizeTolerance {
		s.release(ctx, ownerID, diff)
	}

	now := s.clock.Now()
	node := &models.FileNode{
		ID:             fileID,
		OwnerID:        ownerID,
		ParentID:       parentID,
		Name:           filename,
		ContentType:    contentType,
		Size:           actualBytes,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastModifiedAt: unixOrFallback(lastModified, now),
	}

	if err := s.index.Insert(ctx, node); err != nil {
		s.deleteObjectBestEffort(ctx, fileID, ownerID)
		s.release(ctx, ownerID, actualBytes)
		return nil, err
	}

	s.appendSync(ctx, ownerID, fileID, SyncEventUpload, true)
	s.log.Info(ctx, "upload committed", "file_id", fileID, "owner_id", ownerID, "size", actualBytes)
	return node, nil
}

// UpdateContent overwrites a file's bytes and reconciles its reservation
// against the actual delta written.
func (s *StorageService) UpdateContent(ctx context.Context, ownerID, fileID, contentType string, claimedSize int64, lastModified int64, body io.Reader) (*models.FileNode, error) {
	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if node.IsDirectory {
		return nil, common.ErrConflict
	}

	existingSize := node.Size
	estimatedDelta := claimedSize - existingSize

	if estimatedDelta > 0 {
		if err := s.ledger.Reserve(ctx, ownerID, estimatedDelta); err != nil {
			return nil, err
		}
	}

	actualBytes, err := s.provider.Save(ctx, fileID, ownerID, body, maxAllowed(claimedSize))
	if err != nil {
		if estimatedDelta > 0 {
			s.release(ctx, ownerID, estimatedDelta)
		}
		return nil, err
	}

	actualDelta := actualBytes - existingSize
	switch {
	case actualDelta > estimatedDelta:
		if err := s.ledger.Reserve(ctx, ownerID, actualDelta-estimatedDelta); err != nil {
			if estimatedDelta > 0 {
				s.release(ctx, ownerID, estimatedDelta)
			}
			return nil, err
		}
	case actualDelta < estimatedDelta:
		s.release(ctx, ownerID, estimatedDelta-actualDelta)
	}

	node.Size = actualBytes
	node.ContentType = contentType
	node.UpdatedAt = s.clock.Now()
	node.LastModifiedAt = unixOrFallback(lastModified, node.UpdatedAt)

	if err := s.index.Update(ctx, node); err != nil {
		// The provider object is already in its new state; reverting it
		// is out of scope here, so only the reservation is compensated.
		s.release(ctx, ownerID, actualDelta)
		s.log.Error(ctx, "update content metadata commit failed, provider object already replaced", "file_id", fileID, "owner_id", ownerID)
		return nil, err
	}

	s.appendSync(ctx, ownerID, fileID, SyncEventUpdate, true)
	return node, nil
}

// Move reparents a node, rejecting moves into a non-directory or into the
// node's own subtree.
func (s *StorageService) Move(ctx context.Context, ownerID, fileID string, newParentID *string) (*models.FileNode, error) {
	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	if newParentID != nil {
		newParent, err := s.index.ValidateOwnership(ctx, ownerID, *newParentID)
		if err != nil {
			return nil, err
		}
		if !newParent.IsDirectory {
			return nil, common.ErrConflict
		}
		if node.IsDirectory {
			if err := s.rejectSelfDescendantMove(ctx, ownerID, node.ID, *newParentID); err != nil {
				return nil, err
			}
		}
	}

	if err := s.index.EnsureUniqueName(ctx, ownerID, newParentID, node.Name); err != nil {
		return nil, err
	}

	node.ParentID = newParentID
	node.UpdatedAt = s.clock.Now()
	if err := s.index.Update(ctx, node); err != nil {
		return nil, err
	}

	s.appendSync(ctx, ownerID, fileID, SyncEventMove, false)
	return node, nil
}

// rejectSelfDescendantMove guards against moving a directory into one of
// its own descendants, which would otherwise sever the tree.
func (s *StorageService) rejectSelfDescendantMove(ctx context.Context, ownerID, nodeID, destParentID string) error {
	descendants, err := s.index.Descendants(ctx, ownerID, nodeID)
	if err != nil {
		return err
	}
	for _, d := range descendants {
		if d.ID == destParentID {
			return common.ErrConflict
		}
	}
	return nil
}

// Rename changes a node's name within its current parent.
func (s *StorageService) Rename(ctx context.Context, ownerID, fileID, newName string) (*models.FileNode, error) {
	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	if err := s.index.EnsureUniqueName(ctx, ownerID, node.ParentID, newName); err != nil {
		return nil, err
	}

	node.Name = newName
	node.UpdatedAt = s.clock.Now()
	if err := s.index.Update(ctx, node); err != nil {
		return nil, err
	}

	s.appendSync(ctx, ownerID, fileID, SyncEventRename, false)
	return node, nil
}

// Favorite flips or sets a node's favorite flag.
func (s *StorageService) Favorite(ctx context.Context, ownerID, fileID string, isFavorite bool) (*models.FileNode, error) {
	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	node.IsFavorite = isFavorite
	node.UpdatedAt = s.clock.Now()
	if err := s.index.Update(ctx, node); err != nil {
		return nil, err
	}

	s.appendSync(ctx, ownerID, fileID, SyncEventFavorite, false)
	return node, nil
}

// SoftDelete moves a node to the trash view.
func (s *StorageService) SoftDelete(ctx context.Context, ownerID, fileID string) error {
	if _, err := s.index.ValidateOwnership(ctx, ownerID, fileID); err != nil {
		return err
	}
	if err := s.index.SoftDelete(ctx, ownerID, fileID, s.clock.Now()); err != nil {
		return err
	}
	s.appendSync(ctx, ownerID, fileID, SyncEventDelete, false)
	return nil
}

// HardDelete recursively removes a subtree: best-effort provider cleanup per
// file, then the metadata delete and quota release run inside one
// transaction, so a partial failure leaves neither a ghost row nor a
// dropped reservation behind.
func (s *StorageService) HardDelete(ctx context.Context, ownerID, rootID string) error {
	descendants, err := s.index.Descendants(ctx, ownerID, rootID)
	if err != nil {
		return err
	}
	if len(descendants) == 0 {
		return common.ErrNotFound
	}

	var reclaim int64
	var ids []string
	// Children-first ordering: deepest nodes first so foreign-key
	// constraints hold when rows are deleted in this order.
	for i := len(descendants) - 1; i >= 0; i-- {
		node := descendants[i]
		ids = append(ids, node.ID)
		if !node.IsDirectory {
			reclaim += node.Size
			if err := s.provider.Delete(ctx, node.ID, ownerID); err != nil {
				s.log.Warn(ctx, "provider delete failed during recursive hard-delete, orphaning bytes over metadata", "file_id", node.ID, "error", err)
			}
		}
	}

	err = s.tx.WithTx(ctx, func(index files.Repository, ledger quota.Ledger) error {
		if err := index.DeleteMany(ctx, ownerID, ids); err != nil {
			return err
		}
		if reclaim > 0 {
			return ledger.Release(ctx, ownerID, reclaim)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.appendSync(ctx, ownerID, rootID, SyncEventDelete, false)
	return nil
}

// Restore clears a soft-deleted node's deleted_at, reparenting to root if
// the original parent is gone and renaming on conflict.
func (s *StorageService) Restore(ctx context.Context, ownerID, fileID string) (*models.FileNode, error) {
	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if !node.IsDeleted() {
		return nil, common.ErrConflict
	}

	parentID := node.ParentID
	if parentID != nil {
		if _, err := s.index.ValidateOwnership(ctx, ownerID, *parentID); errors.Is(err, common.ErrNotFound) {
			parentID = nil
		} else if err != nil {
			return nil, err
		}
	}

	name := node.Name
	for {
		err := s.index.EnsureUniqueName(ctx, ownerID, parentID, name)
		if err == nil {
			break
		}
		if !errors.Is(err, common.ErrNameConflict) {
			return nil, err
		}
		name = appendRestoredSuffix(name, node.IsDirectory)
	}

	node.ParentID = parentID
	node.Name = name
	node.DeletedAt = nil
	node.UpdatedAt = s.clock.Now()

	if err := s.index.Restore(ctx, node); err != nil {
		return nil, err
	}

	s.appendSync(ctx, ownerID, fileID, SyncEventRestore, false)
	return node, nil
}

// appendRestoredSuffix inserts " (restored)" before the extension (or at
// the end, for directories), producing a fresh candidate name each call so
// Restore's conflict loop converges.
func appendRestoredSuffix(name string, isDirectory bool) string {
	if isDirectory {
		return name + " (restored)"
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return stem + " (restored)" + ext
}

// CreateDirectory inserts a zero-size directory node.
func (s *StorageService) CreateDirectory(ctx context.Context, ownerID, name string, parentID *string) (*models.FileNode, error) {
	if parentID != nil {
		parent, err := s.index.ValidateOwnership(ctx, ownerID, *parentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsDirectory {
			return nil, common.ErrConflict
		}
	}

	if err := s.index.EnsureUniqueName(ctx, ownerID, parentID, name); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	node := &models.FileNode{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ParentID:       parentID,
		Name:           name,
		ContentType:    models.DirectoryContentType,
		IsDirectory:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastModifiedAt: now,
	}

	if err := s.index.Insert(ctx, node); err != nil {
		return nil, err
	}

	s.appendSync(ctx, ownerID, node.ID, SyncEventCreateDir, false)
	return node, nil
}

// Get returns a single node the caller owns.
func (s *StorageService) Get(ctx context.Context, ownerID, fileID string) (*models.FileNode, error) {
	return s.index.ValidateOwnership(ctx, ownerID, fileID)
}

// List dispatches to the HierarchyIndex and, for folder views, also
// computes breadcrumbs for the requested parent.
func (s *StorageService) List(ctx context.Context, ownerID string, filter models.ListFilter) ([]*models.FileNode, []*models.FileNode, error) {
	nodes, err := s.index.List(ctx, ownerID, filter)
	if err != nil {
		return nil, nil, err
	}

	var breadcrumbs []*models.FileNode
	if filter.Kind == models.ListFolder {
		breadcrumbs, err = s.index.Breadcrumbs(ctx, ownerID, filter.ParentID, 512)
		if err != nil {
			return nil, nil, err
		}
	}

	return nodes, breadcrumbs, nil
}

// Download returns the whole byte stream of a file the caller owns; byte
// ranges are not supported.
func (s *StorageService) Download(ctx context.Context, ownerID, fileID string) (*models.FileNode, io.ReadCloser, int64, error) {
	node, err := s.index.ValidateOwnership(ctx, ownerID, fileID)
	if err != nil {
		return nil, nil, 0, err
	}
	if node.IsDirectory {
		return nil, nil, 0, common.ErrConflict
	}

	rc, size, err := s.provider.GetResponse(ctx, fileID, ownerID)
	if err != nil {
		return nil, nil, 0, err
	}
	return node, rc, size, nil
}

func (s *StorageService) release(ctx context.Context, ownerID string, amount int64) {
	if amount <= 0 {
		return
	}
	if err := s.ledger.Release(ctx, ownerID, amount); err != nil {
		s.log.Warn(ctx, "quota release failed during compensation", "owner_id", ownerID, "amount", amount, "error", err)
	}
}

func (s *StorageService) deleteObjectBestEffort(ctx context.Context, fileID, ownerID string) {
	if err := s.provider.Delete(ctx, fileID, ownerID); err != nil {
		s.log.Warn(ctx, "provider delete failed during compensation", "file_id", fileID, "owner_id", ownerID, "error", err)
	}
}

func (s *StorageService) appendSync(ctx context.Context, ownerID, fileID string, kind SyncEventKind, contentUpdated bool) {
	if err := s.sync.Append(ctx, SyncEvent{OwnerID: ownerID, FileID: fileID, Kind: kind, ContentUpdated: contentUpdated}); err != nil {
		s.log.Warn(ctx, "sync event append failed", "owner_id", ownerID, "file_id", fileID, "kind", kind, "error", err)
	}
}

// unixOrFallback converts a client-supplied Unix-seconds timestamp to
// time.Time, falling back to fallback when the client omitted it (sec <= 0).
func unixOrFallback(sec int64, fallback time.Time) time.Time {
	if sec <= 0 {
		return fallback
	}
	return time.Unix(sec, 0).UTC()
}

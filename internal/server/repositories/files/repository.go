// Package files implements the HierarchyIndex: metadata operations over
// the FileNode store (parent links, soft-delete, favorites, ownership,
// and per-parent name uniqueness).
package files

import (
	"context"
	"time"

	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
)

// Repository is the HierarchyIndex contract consumed by StorageService and
// MultipartCoordinator.
type Repository interface {
	// EnsureUniqueName fails with common.ErrNameConflict if a non-deleted
	// sibling under parentID already has name.
	EnsureUniqueName(ctx context.Context, ownerID string, parentID *string, name string) error

	// ValidateOwnership returns the node or common.ErrNotFound.
	ValidateOwnership(ctx context.Context, ownerID, fileID string) (*models.FileNode, error)

	// Breadcrumbs walks parent pointers from parentID to the root, ordered
	// root-first. Bounded by maxDepth to defeat pathological tree depth.
	Breadcrumbs(ctx context.Context, ownerID string, parentID *string, maxDepth int) ([]*models.FileNode, error)

	// Descendants returns the subtree rooted at rootID, root included.
	Descendants(ctx context.Context, ownerID, rootID string) ([]*models.FileNode, error)

	// List dispatches on filter.Kind; see models.ListFilter.
	List(ctx context.Context, ownerID string, filter models.ListFilter) ([]*models.FileNode, error)

	// Insert persists a brand-new node.
	Insert(ctx context.Context, node *models.FileNode) error

	// Update persists mutable fields of an existing node (name, parent,
	// content type, size, favorite, last-modified, updated-at).
	Update(ctx context.Context, node *models.FileNode) error

	// SoftDelete stamps deleted_at on the node.
	SoftDelete(ctx context.Context, ownerID, fileID string, deletedAt time.Time) error

	// Restore clears deleted_at and persists the (possibly reparented,
	// possibly renamed) node in the same call.
	Restore(ctx context.Context, node *models.FileNode) error

	// DeleteMany removes rows by id, children-first order, inside the
	// caller's transaction.
	DeleteMany(ctx context.Context, ownerID string, ids []string) error
}

// Package models defines the server-side data model persisted in the
// database: FileNode (the single entity for both files and directories),
// UserQuota, Tier, and MultipartSession.
package models

import "time"

// DirectoryContentType is the sentinel content type stored on directory
// nodes; directories always have size 0.
const DirectoryContentType = "directory"

// FileNode is the single entity for both files and directories.
type FileNode struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	ParentID       *string    `json:"parentId,omitempty"`
	Name           string     `json:"name"`
	ContentType    string     `json:"contentType"`
	Size           int64      `json:"size"`
	IsDirectory    bool       `json:"isDirectory"`
	IsFavorite     bool       `json:"isFavorite"`
	IsShared       bool       `json:"isShared"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastModifiedAt time.Time  `json:"lastModifiedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// IsDeleted reports whether the node is currently soft-deleted.
func (f *FileNode) IsDeleted() bool {
	return f != nil && f.DeletedAt != nil
}

// ListFilter selects which view of the hierarchy HierarchyIndex.List
// should return. It is a closed sum type: exactly one of the fields
// below is meaningful per value of Kind.
type ListFilterKind int

const (
	ListFolder ListFilterKind = iota
	ListAll
	ListFavorites
	ListRecent
	ListShared
	ListTrash
)

// ListFilter dispatches HierarchyIndex.List on its Kind; ParentID is only
// meaningful when Kind == ListFolder (nil means the root folder).
type ListFilter struct {
	Kind     ListFilterKind
	ParentID *string
}

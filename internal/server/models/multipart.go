package models

import "time"

// MultipartSession is an audit/cleanup record only — the protocol itself
// is stateless and driven by the signed UploadToken. The row exists so an
// expiry sweeper can find and abort abandoned uploads, and so completion
// has something to delete on success.
type MultipartSession struct {
	ID             string
	FileID         string
	ProviderUploadID string
	OwnerID        string
	ParentID       *string
	Filename       string
	ContentType    string
	TotalSize      int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Part is one entry of a client-supplied completion manifest.
type Part struct {
	PartNumber int
	ETag       string
	Size       int64
}

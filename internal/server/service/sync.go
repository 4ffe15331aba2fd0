package service

import "context"

// SyncEventKind tags the kind of mutation a SyncEventSink records.
type SyncEventKind string

const (
	SyncEventUpload            SyncEventKind = "upload"
	SyncEventUpdate            SyncEventKind = "update"
	SyncEventMove              SyncEventKind = "move"
	SyncEventRename            SyncEventKind = "rename"
	SyncEventFavorite          SyncEventKind = "favorite"
	SyncEventDelete            SyncEventKind = "delete"
	SyncEventRestore           SyncEventKind = "restore"
	SyncEventCreateDir         SyncEventKind = "create_directory"
	SyncEventMultipartComplete SyncEventKind = "multipart_complete"
)

// SyncEvent is one append-only record of a state mutation.
type SyncEvent struct {
	OwnerID        string
	FileID         string
	Kind           SyncEventKind
	ContentUpdated bool
}

// SyncEventSink is the optional append-only timeline collaborator. When
// wired, every mutation below appends one event; NoopSyncEventSink is used
// by default so a caller that never configures a sink gets inert behavior
// rather than a silent partial timeline.
type SyncEventSink interface {
	Append(ctx context.Context, event SyncEvent) error
}

// NoopSyncEventSink discards every event.
type NoopSyncEventSink struct{}

func (NoopSyncEventSink) Append(ctx context.Context, event SyncEvent) error { return nil }

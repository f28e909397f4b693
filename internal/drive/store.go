// Package drive provides access to the hierarchical file-storage service.
//
// The engine talks to storage exclusively through [Store], so tests run
// against [MemStore] while production uses the HTTP [Client].
package drive

import (
	"context"
	"errors"
	"time"
)

// MimeFolder is the MIME type marking a file as a folder.
const MimeFolder = "application/vnd.google-apps.folder"

// ErrNotFound is returned when a file or folder does not exist.
var ErrNotFound = errors.New("file not found")

// File is a file or folder in the storage hierarchy.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	Parents      []string  `json:"parents,omitempty"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Trashed      bool      `json:"trashed,omitempty"`
	Size         int64     `json:"size,omitempty,string"`
}

// IsFolder reports whether the file is a folder.
func (f *File) IsFolder() bool {
	return f.MimeType == MimeFolder
}

// Store is the capability surface the engine needs from the storage
// service: folder/file CRUD, rename, move, trash, child listing, and
// full-content read/write.
type Store interface {
	// CreateFolder creates a folder under parentID.
	CreateFolder(ctx context.Context, parentID, name string) (*File, error)

	// CreateFile creates a file with the given content under parentID.
	CreateFile(ctx context.Context, parentID, name, mimeType string, content []byte) (*File, error)

	// Get retrieves file metadata by ID.
	Get(ctx context.Context, id string) (*File, error)

	// ListChildren lists the non-trashed direct children of parentID.
	ListChildren(ctx context.Context, parentID string) ([]*File, error)

	// Rename changes a file's name.
	Rename(ctx context.Context, id, name string) (*File, error)

	// Move reparents a file from oldParentID to newParentID.
	Move(ctx context.Context, id, oldParentID, newParentID string) error

	// Trash moves a file to the trash. It is not permanently deleted.
	Trash(ctx context.Context, id string) error

	// ReadContent reads a file's full content.
	ReadContent(ctx context.Context, id string) ([]byte, error)

	// WriteContent replaces a file's full content in place, preserving
	// its identity.
	WriteContent(ctx context.Context, id string, content []byte) (*File, error)
}

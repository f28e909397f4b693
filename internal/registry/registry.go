// Package registry defines the spreadsheet/registry collaborator boundary.
//
// After each pass the engine publishes a flat projection of collections
// and their properties for human visibility. The projection is
// write-only from the engine's perspective; the collaborator owns its
// presentation and storage.
package registry

import (
	"context"

	"github.com/vibevesselio/snapsync/internal/audit"
	"github.com/vibevesselio/snapsync/internal/models"
)

// Row is one property of one collection in the flat projection.
type Row struct {
	CollectionID   string              `json:"collection_id"`
	CollectionName string              `json:"collection_name"`
	FolderID       string              `json:"folder_id"`
	SnapshotID     string              `json:"snapshot_id"`
	Property       string              `json:"property"`
	Type           models.PropertyType `json:"type"`
}

// Publisher receives the projection.
type Publisher interface {
	Publish(ctx context.Context, rows []Row) error
}

// LogPublisher emits the projection through the audit logger. It stands
// in when no spreadsheet backend is configured.
type LogPublisher struct {
	Log audit.Logger
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, rows []Row) error {
	collections := make(map[string]int)
	for i := range rows {
		collections[rows[i].CollectionID]++
	}
	p.Log.Debug("registry projection", "collections", len(collections), "properties", len(rows))
	return nil
}

// NopPublisher discards the projection.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, []Row) error { return nil }

package registry

import (
	"context"

	"github.com/vibevesselio/snapsync/internal/jsonldb"
)

// FilePublisher materializes the projection as a local JSONL file,
// replaced wholesale after each pass.
type FilePublisher struct {
	table *jsonldb.Table[Row]
}

// NewFilePublisher opens (or creates) the projection file.
func NewFilePublisher(path string) (*FilePublisher, error) {
	table, err := jsonldb.Open[Row](path)
	if err != nil {
		return nil, err
	}
	return &FilePublisher{table: table}, nil
}

// Publish implements Publisher.
func (p *FilePublisher) Publish(_ context.Context, rows []Row) error {
	return p.table.Replace(rows)
}

// Rows returns the last published projection.
func (p *FilePublisher) Rows() []Row {
	return p.table.All()
}

package audit

import (
	"context"

	"github.com/vibevesselio/snapsync/internal/jsonldb"
)

// FileSink appends run records to a local JSONL file, keeping a durable
// run history alongside the rotation state.
type FileSink struct {
	table *jsonldb.Table[RunRecord]
	next  Sink
}

// NewFileSink opens (or creates) the run-history file. next, when not
// nil, also receives every record.
func NewFileSink(path string, next Sink) (*FileSink, error) {
	table, err := jsonldb.Open[RunRecord](path)
	if err != nil {
		return nil, err
	}
	return &FileSink{table: table, next: next}, nil
}

// Record implements Sink.
func (s *FileSink) Record(ctx context.Context, rec *RunRecord) error {
	if err := s.table.Append(*rec); err != nil {
		return err
	}
	if s.next != nil {
		return s.next.Record(ctx, rec)
	}
	return nil
}

// History returns all recorded runs, oldest first.
func (s *FileSink) History() []RunRecord {
	return s.table.All()
}

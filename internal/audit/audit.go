// Package audit defines the logging collaborator boundary.
//
// The engine logs through the [Logger] capability, injected once per run.
// Production wires it to slog; tests use [NopLogger]. The engine calls
// the collaborator but does not own its storage format.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Logger accepts structured log events with level, message and context.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlog adapts a slog.Logger to the Logger capability.
func NewSlog(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

type nopLogger struct{}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// CollectionRecord summarizes one collection's pass within a run.
type CollectionRecord struct {
	CollectionID string        `json:"collection_id"`
	Title        string        `json:"title"`
	FolderID     string        `json:"folder_id,omitempty"`
	SchemaAdded  int           `json:"schema_added"`
	SchemaRemove int           `json:"schema_removed"`
	RowsCreated  int           `json:"rows_created"`
	RowsUpdated  int           `json:"rows_updated"`
	RowsSkipped  int           `json:"rows_skipped"`
	RowsExported int           `json:"rows_exported"`
	Duration     time.Duration `json:"duration"`
	Errors       []string      `json:"errors,omitempty"`
}

// RunRecord is the durable summary of a whole run.
type RunRecord struct {
	RunID       string             `json:"run_id"`
	Started     time.Time          `json:"started"`
	Finished    time.Time          `json:"finished"`
	Collections []CollectionRecord `json:"collections"`
	Deferred    bool               `json:"deferred,omitempty"` // another run held the lock
}

// Sink receives completed run records.
type Sink interface {
	Record(ctx context.Context, rec *RunRecord) error
}

// LogSink emits run records through a Logger.
type LogSink struct {
	Log Logger
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, rec *RunRecord) error {
	totalCreated, totalUpdated, totalSkipped := 0, 0, 0
	for i := range rec.Collections {
		c := &rec.Collections[i]
		totalCreated += c.RowsCreated
		totalUpdated += c.RowsUpdated
		totalSkipped += c.RowsSkipped
	}
	s.Log.Info("run complete",
		"runID", rec.RunID,
		"collections", len(rec.Collections),
		"created", totalCreated,
		"updated", totalUpdated,
		"skipped", totalSkipped,
		"deferred", rec.Deferred,
		"duration", rec.Finished.Sub(rec.Started).Round(time.Millisecond))
	return nil
}

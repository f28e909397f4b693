// Run orchestration: whole-run locking, rotation, and time budgeting
// across collections.

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vibevesselio/snapsync/internal/audit"
	snaperr "github.com/vibevesselio/snapsync/internal/errors"
	"github.com/vibevesselio/snapsync/internal/locksvc"
	"github.com/vibevesselio/snapsync/internal/models"
	"github.com/vibevesselio/snapsync/internal/notion"
	"github.com/vibevesselio/snapsync/internal/registry"
)

const (
	// RunLockName serializes whole runs across processes.
	RunLockName = "snapsync-run"

	runLockRetries = 2
	runLockTTL     = 30 * time.Minute
)

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	// RootFolderID is the storage folder all collection folders live
	// under.
	RootFolderID string

	// Collections lists explicit collection ids. Empty means discover
	// via the remote search endpoint.
	Collections []string

	// StatePath locates the rotation pointer file. Empty disables
	// rotation persistence (every run starts at the first collection).
	StatePath string

	// MaxRuntime bounds a run's wall clock. Zero means unbounded.
	MaxRuntime time.Duration

	// SafetyMargin is the headroom a new collection needs before the
	// runtime bound. Defaults to 2 minutes when MaxRuntime is set.
	SafetyMargin time.Duration
}

// Runner sequences collection passes under a whole-run lock.
type Runner struct {
	eng      *Engine
	cfg      RunnerConfig
	sink     audit.Sink
	registry registry.Publisher
}

// NewRunner wires a runner. sink and pub may be nil.
func NewRunner(eng *Engine, cfg RunnerConfig, sink audit.Sink, pub registry.Publisher) *Runner {
	if cfg.MaxRuntime > 0 && cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = 2 * time.Minute
	}
	if sink == nil {
		sink = &audit.LogSink{Log: eng.log}
	}
	if pub == nil {
		pub = registry.NopPublisher{}
	}
	return &Runner{eng: eng, cfg: cfg, sink: sink, registry: pub}
}

// Run performs one full pass. When another run holds the lock the pass
// defers cleanly: the returned record is marked Deferred and the error
// is nil. Per-collection failures are recorded and do not abort the
// remaining collections.
func (r *Runner) Run(ctx context.Context) (*audit.RunRecord, error) {
	rec := &audit.RunRecord{
		RunID:   uuid.NewString(),
		Started: r.eng.now(),
	}
	defer func() {
		rec.Finished = r.eng.now()
		if err := r.sink.Record(ctx, rec); err != nil {
			r.eng.log.Warn("failed to record run", "runID", rec.RunID, "err", err)
		}
	}()

	lease, err := locksvc.Acquire(ctx, r.eng.locks, RunLockName, runLockTTL, runLockRetries)
	if err != nil {
		if errors.Is(err, locksvc.ErrNotAcquired) {
			r.eng.log.Info("another run in progress, deferring", "runID", rec.RunID)
			rec.Deferred = true
			return rec, nil
		}
		return rec, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			r.eng.log.Warn("failed to release run lock", "err", err)
		}
	}()

	ids := r.cfg.Collections
	if len(ids) == 0 {
		ids, err = r.discover(ctx)
		if err != nil {
			return rec, err
		}
	}
	if len(ids) == 0 {
		r.eng.log.Info("no collections to synchronize", "runID", rec.RunID)
		return rec, nil
	}

	st := &RotationState{Version: stateVersion}
	if r.cfg.StatePath != "" {
		st = LoadRotationState(r.cfg.StatePath)
	}
	start := st.Start(len(ids))

	var regRows []registry.Row
	processed := 0
	for n := 0; n < len(ids); n++ {
		if r.overBudget(rec.Started) {
			r.eng.log.Warn("runtime budget reached, stopping before next collection",
				"runID", rec.RunID, "processed", processed, "total", len(ids))
			break
		}
		if ctx.Err() != nil {
			break
		}
		id := ids[(start+n)%len(ids)]
		crec, rows := r.syncCollection(ctx, id)
		rec.Collections = append(rec.Collections, *crec)
		regRows = append(regRows, rows...)
		processed++
	}

	st.Advance(processed, len(ids))
	if r.cfg.StatePath != "" {
		if err := st.Save(r.cfg.StatePath); err != nil {
			r.eng.log.Warn("failed to persist rotation state", "path", r.cfg.StatePath, "err", err)
		}
	}

	if len(regRows) > 0 {
		if err := r.registry.Publish(ctx, regRows); err != nil {
			r.eng.log.Warn("failed to publish registry projection", "err", err)
		}
	}
	return rec, nil
}

// syncCollection runs the full pipeline for one collection. Every
// failure is captured in the record; a failed stage skips the stages
// after it but never panics the run.
func (r *Runner) syncCollection(ctx context.Context, id string) (*audit.CollectionRecord, []registry.Row) {
	started := r.eng.now()
	crec := &audit.CollectionRecord{CollectionID: id}
	fail := func(stage string, err error) {
		kind := snaperr.Classify(err)
		crec.Errors = append(crec.Errors, fmt.Sprintf("%s [%s]: %v", stage, kind, err))
		r.eng.log.Error("collection pass failed",
			"collection", id, "stage", stage, "kind", kind, "err", err)
	}
	defer func() { crec.Duration = r.eng.now().Sub(started) }()

	db, err := r.eng.remote.GetDatabase(ctx, id)
	if err != nil {
		fail("fetch", err)
		return crec, nil
	}
	crec.Title = db.PlainTitle()

	folder, err := r.eng.EnsureFolder(ctx, r.cfg.RootFolderID, db)
	if err != nil {
		fail("provision", err)
		return crec, nil
	}
	crec.FolderID = folder.ID

	if sr, err := r.eng.ReconcileSchema(ctx, folder, db); err != nil {
		fail("schema", err)
	} else {
		crec.SchemaAdded = len(sr.Added)
		crec.SchemaRemove = len(sr.Deleted)
		if len(sr.Added) > 0 || len(sr.Deleted) > 0 {
			// Pick up the reconciled schema before pushing values.
			if fresh, err := r.eng.remote.GetDatabase(ctx, id); err == nil {
				db = fresh
			}
		}
	}

	if vr, err := r.eng.SyncValues(ctx, folder, db); err != nil {
		fail("values", err)
	} else {
		crec.RowsCreated = vr.Created
		crec.RowsUpdated = vr.Updated
		crec.RowsSkipped = vr.Skipped
	}

	er, err := r.eng.ExportSnapshot(ctx, folder, db)
	if err != nil {
		fail("export", err)
		return crec, r.registryRows(db, folder.ID, "")
	}
	crec.RowsExported = er.Pages
	return crec, r.registryRows(db, folder.ID, er.File.ID)
}

func (r *Runner) registryRows(db *notion.Database, folderID, snapshotID string) []registry.Row {
	rows := make([]registry.Row, 0, len(db.Properties))
	for name, prop := range db.Properties {
		rows = append(rows, registry.Row{
			CollectionID:   db.ID,
			CollectionName: db.PlainTitle(),
			FolderID:       folderID,
			SnapshotID:     snapshotID,
			Property:       name,
			Type:           models.ParseType(prop.Type),
		})
	}
	return rows
}

// discover lists every collection the integration can see.
func (r *Runner) discover(ctx context.Context) ([]string, error) {
	dbs, err := r.eng.remote.SearchDatabases(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("discover collections: %w", err)
	}
	ids := make([]string, 0, len(dbs))
	for i := range dbs {
		ids = append(ids, dbs[i].ID)
	}
	r.eng.log.Info("discovered collections", "count", len(ids))
	return ids, nil
}

func (r *Runner) overBudget(started time.Time) bool {
	if r.cfg.MaxRuntime <= 0 {
		return false
	}
	return r.eng.now().Sub(started) > r.cfg.MaxRuntime-r.cfg.SafetyMargin
}

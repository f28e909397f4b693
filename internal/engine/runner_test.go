package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/locksvc"
	"github.com/vibevesselio/snapsync/internal/notion"
	"github.com/vibevesselio/snapsync/internal/registry"
)

type capturePublisher struct {
	rows []registry.Row
}

func (p *capturePublisher) Publish(_ context.Context, rows []registry.Row) error {
	p.rows = append(p.rows, rows...)
	return nil
}

func TestRunnerFullPass(t *testing.T) {
	ctx := context.Background()
	db := testDatabase("db1", "Scripts", map[string]notion.DBProperty{
		"Name": {Type: "title"},
	})
	remote := newFakeRemote(db)
	remote.addPage("db1", map[string]notion.PropertyValue{
		"Name": {Type: "title", Title: notion.TextValue("Only")},
	}, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))

	eng, store := newTestEngine(t, remote, Options{})
	pub := &capturePublisher{}
	runner := NewRunner(eng, RunnerConfig{
		RootFolderID: "root",
		Collections:  []string{"db1"},
		StatePath:    filepath.Join(t.TempDir(), "rotation.json"),
	}, nil, pub)

	rec, err := runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Deferred {
		t.Fatal("run deferred with no contention")
	}
	if len(rec.Collections) != 1 {
		t.Fatalf("collections = %+v", rec.Collections)
	}
	crec := rec.Collections[0]
	if crec.Title != "Scripts" || crec.FolderID == "" {
		t.Errorf("record = %+v", crec)
	}
	if crec.RowsExported != 1 {
		t.Errorf("RowsExported = %d, want 1", crec.RowsExported)
	}
	if len(crec.Errors) != 0 {
		t.Errorf("errors = %v", crec.Errors)
	}

	// The pass materialized a snapshot under the collection folder.
	children, err := store.ListChildren(ctx, crec.FolderID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range children {
		if c.Name == SnapshotFileName(db) {
			found = true
		}
	}
	if !found {
		t.Error("snapshot file missing after run")
	}

	// Registry projection carries the schema.
	if len(pub.rows) != 1 {
		t.Fatalf("registry rows = %+v", pub.rows)
	}
	if pub.rows[0].Property != "Name" || pub.rows[0].CollectionID != "db1" {
		t.Errorf("registry row = %+v", pub.rows[0])
	}
}

func TestRunnerDefersWhenLocked(t *testing.T) {
	ctx := context.Background()
	db := testDatabase("db1", "Scripts", map[string]notion.DBProperty{"Name": {Type: "title"}})
	remote := newFakeRemote(db)
	locks := locksvc.NewMemoryLocker()

	// Hold the run lock long enough to outlast the bounded wait.
	lease, err := locks.TryAcquire(ctx, RunLockName, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lease.Release(ctx) }()

	eng := New(remote, drive.NewMemStore(), locks, nil, Options{})
	runner := NewRunner(eng, RunnerConfig{RootFolderID: "root", Collections: []string{"db1"}}, nil, nil)

	rec, err := runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Deferred {
		t.Error("run did not defer to the lock holder")
	}
	if len(rec.Collections) != 0 {
		t.Errorf("deferred run processed %d collections", len(rec.Collections))
	}
	if remote.createCalls+remote.updateCalls != 0 {
		t.Error("deferred run touched the remote")
	}
}

func TestRunnerRotationAdvances(t *testing.T) {
	ctx := context.Background()
	db1 := testDatabase("db1", "One", map[string]notion.DBProperty{"Name": {Type: "title"}})
	db2 := testDatabase("db2", "Two", map[string]notion.DBProperty{"Name": {Type: "title"}})
	remote := newFakeRemote(db1, db2)

	eng, _ := newTestEngine(t, remote, Options{})
	statePath := filepath.Join(t.TempDir(), "rotation.json")
	runner := NewRunner(eng, RunnerConfig{
		RootFolderID: "root",
		Collections:  []string{"db1", "db2"},
		StatePath:    statePath,
	}, nil, nil)

	if _, err := runner.Run(ctx); err != nil {
		t.Fatal(err)
	}

	st := LoadRotationState(statePath)
	if st.Cycle != 1 || st.Index != 0 {
		t.Errorf("state after full pass = %+v, want cycle 1 index 0", st)
	}
}

func TestRunnerBudgetStopsEarly(t *testing.T) {
	ctx := context.Background()
	db1 := testDatabase("db1", "One", map[string]notion.DBProperty{"Name": {Type: "title"}})
	db2 := testDatabase("db2", "Two", map[string]notion.DBProperty{"Name": {Type: "title"}})
	remote := newFakeRemote(db1, db2)

	eng, _ := newTestEngine(t, remote, Options{})
	// Clock jumps an hour on every read: the budget is blown after the
	// first collection.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	eng.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Hour)
	}

	statePath := filepath.Join(t.TempDir(), "rotation.json")
	runner := NewRunner(eng, RunnerConfig{
		RootFolderID: "root",
		Collections:  []string{"db1", "db2"},
		StatePath:    statePath,
		MaxRuntime:   90 * time.Minute,
		SafetyMargin: 10 * time.Minute,
	}, nil, nil)

	rec, err := runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Collections) >= 2 {
		t.Errorf("processed %d collections, want the budget to stop the run early", len(rec.Collections))
	}

	// The rotation pointer only advances past processed collections.
	st := LoadRotationState(statePath)
	if st.Index != len(rec.Collections)%2 {
		t.Errorf("rotation index = %d after %d processed", st.Index, len(rec.Collections))
	}
}

func TestRunnerDiscoversCollections(t *testing.T) {
	ctx := context.Background()
	db := testDatabase("db1", "Scripts", map[string]notion.DBProperty{"Name": {Type: "title"}})
	remote := newFakeRemote(db)

	eng, _ := newTestEngine(t, remote, Options{})
	runner := NewRunner(eng, RunnerConfig{RootFolderID: "root"}, nil, nil)

	rec, err := runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Collections) != 1 || rec.Collections[0].CollectionID != "db1" {
		t.Errorf("collections = %+v, want discovered db1", rec.Collections)
	}
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/vibevesselio/snapsync/internal/notion"
)

func scriptsDB() *notion.Database {
	return testDatabase("db1", "Scripts", map[string]notion.DBProperty{
		"Name":  {Type: "title"},
		"Notes": {Type: "rich_text"},
	})
}

func TestSyncValuesCreatesPages(t *testing.T) {
	ctx := context.Background()
	db := scriptsDB()
	remote := newFakeRemote(db)
	eng, store := newTestEngine(t, remote, Options{LifecycleDisabled: true})
	folder := provision(t, eng, db)

	writeSnapshot(t, store, folder.ID, db, &Snapshot{
		Columns: []Column{
			{Name: "Name", Type: "title"},
			{Name: "Notes", Type: "rich_text"},
		},
		Rows: []Row{
			{Cells: []string{"First", "alpha"}},
			{Cells: []string{"Second", "beta"}},
		},
	})

	res, err := eng.SyncValues(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 || res.Updated != 0 || res.Skipped != 0 {
		t.Fatalf("result = %+v, want 2 created", res)
	}
	if len(remote.pages) != 2 {
		t.Errorf("%d remote pages, want 2", len(remote.pages))
	}

	// The snapshot was rewritten with the new page ids.
	snap, _, err := eng.loadSnapshot(ctx, folder.ID, db)
	if err != nil {
		t.Fatal(err)
	}
	for i, row := range snap.Rows {
		if row.PageID == "" {
			t.Errorf("row %d: page id not written back", i)
		}
		if row.LastSyncedAt == "" {
			t.Errorf("row %d: sync timestamp not written back", i)
		}
	}
}

func TestSyncValuesUpdatesExistingPages(t *testing.T) {
	ctx := context.Background()
	db := scriptsDB()
	remote := newFakeRemote(db)
	page := remote.addPage("db1", map[string]notion.PropertyValue{}, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	eng, store := newTestEngine(t, remote, Options{LifecycleDisabled: true})
	folder := provision(t, eng, db)

	// Snapshot synced after the remote's last edit: guard passes.
	writeSnapshot(t, store, folder.ID, db, &Snapshot{
		Columns: []Column{{Name: "Name", Type: "title"}, {Name: "Notes", Type: "rich_text"}},
		Rows: []Row{{
			PageID:       page.ID,
			LastSyncedAt: "2026-08-02T00:00:00Z",
			Cells:        []string{"First", "edited locally"},
		}},
	})

	res, err := eng.SyncValues(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 {
		t.Fatalf("result = %+v, want 1 updated", res)
	}
	got := remote.pages[page.ID].Properties["Notes"]
	if plainText(got.RichText) != "edited locally" {
		t.Errorf("remote notes = %+v", got)
	}
}

func TestSyncValuesConflictGuard(t *testing.T) {
	ctx := context.Background()
	db := scriptsDB()
	remote := newFakeRemote(db)
	// Remote edited after the snapshot's sync stamp.
	page := remote.addPage("db1", map[string]notion.PropertyValue{
		"Notes": {Type: "rich_text", RichText: notion.TextValue("remote edit")},
	}, time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC))
	eng, store := newTestEngine(t, remote, Options{})
	folder := provision(t, eng, db)

	writeSnapshot(t, store, folder.ID, db, &Snapshot{
		Columns: []Column{{Name: "Name", Type: "title"}, {Name: "Notes", Type: "rich_text"}},
		Rows: []Row{{
			PageID:       page.ID,
			LastSyncedAt: "2026-08-02T00:00:00Z",
			Cells:        []string{"First", "stale local edit"},
		}},
	})

	res, err := eng.SyncValues(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Updated != 0 {
		t.Fatalf("result = %+v, want the conflicting row skipped", res)
	}
	got := remote.pages[page.ID].Properties["Notes"]
	if plainText(got.RichText) != "remote edit" {
		t.Errorf("remote value clobbered: %+v", got)
	}
}

func TestSyncValuesOverwriteMode(t *testing.T) {
	ctx := context.Background()
	db := scriptsDB()
	remote := newFakeRemote(db)
	page := remote.addPage("db1", map[string]notion.PropertyValue{}, time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC))
	eng, store := newTestEngine(t, remote, Options{ConflictMode: ConflictOverwrite})
	folder := provision(t, eng, db)

	writeSnapshot(t, store, folder.ID, db, &Snapshot{
		Columns: []Column{{Name: "Name", Type: "title"}},
		Rows: []Row{{
			PageID:       page.ID,
			LastSyncedAt: "2026-08-02T00:00:00Z", // older than the remote edit
			Cells:        []string{"Forced"},
		}},
	})

	res, err := eng.SyncValues(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 {
		t.Fatalf("result = %+v, want 1 updated in overwrite mode", res)
	}
}

func TestSyncValuesOrphanPrevention(t *testing.T) {
	ctx := context.Background()
	db := scriptsDB()
	remote := newFakeRemote(db)
	eng, store := newTestEngine(t, remote, Options{LifecycleDisabled: true})
	folder := provision(t, eng, db)

	writeSnapshot(t, store, folder.ID, db, &Snapshot{
		Columns: []Column{{Name: "Name", Type: "title"}, {Name: "Notes", Type: "rich_text"}},
		Rows: []Row{
			{Cells: []string{"", "notes but no title"}},
			{Cells: []string{"Titled", "fine"}},
		},
	})

	res, err := eng.SyncValues(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 1 {
		t.Fatalf("result = %+v, want only the titled row created", res)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 for the untitled row", res.Skipped)
	}
	if len(remote.pages) != 1 {
		t.Errorf("%d pages created, want 1", len(remote.pages))
	}
}

func TestSyncValuesRowFailureIsolated(t *testing.T) {
	ctx := context.Background()
	db := scriptsDB()
	remote := newFakeRemote(db)
	eng, store := newTestEngine(t, remote, Options{LifecycleDisabled: true})
	folder := provision(t, eng, db)

	writeSnapshot(t, store, folder.ID, db, &Snapshot{
		Columns: []Column{{Name: "Name", Type: "title"}},
		Rows: []Row{
			{PageID: "missing-page", LastSyncedAt: "2026-08-02T00:00:00Z", Cells: []string{"Broken"}},
			{Cells: []string{"Fine"}},
		},
	})

	res, err := eng.SyncValues(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 for the missing page", res.Skipped)
	}
	if res.Created != 1 {
		t.Errorf("Created = %d, want the healthy row to proceed", res.Created)
	}
}

func TestSyncValuesDropsInvalidRelations(t *testing.T) {
	ctx := context.Background()
	db := testDatabase("db1", "Scripts", map[string]notion.DBProperty{
		"Name":  {Type: "title"},
		"Links": {Type: "relation"},
	})
	remote := newFakeRemote(db)
	target := remote.addPage("db1", nil, time.Time{})
	eng, store := newTestEngine(t, remote, Options{LifecycleDisabled: true})
	folder := provision(t, eng, db)

	writeSnapshot(t, store, folder.ID, db, &Snapshot{
		Columns: []Column{{Name: "Name", Type: "title"}, {Name: "Links", Type: "relation"}},
		Rows:    []Row{{Cells: []string{"Row", target.ID + ",does-not-exist"}}},
	})

	if _, err := eng.SyncValues(ctx, folder, db); err != nil {
		t.Fatal(err)
	}

	var created *notion.Page
	for _, p := range remote.pages {
		if p.ID != target.ID {
			created = p
		}
	}
	if created == nil {
		t.Fatal("row was not created")
	}
	rel := created.Properties["Links"].Relation
	if len(rel) != 1 || rel[0].ID != target.ID {
		t.Errorf("relations = %+v, want only the valid target", rel)
	}
}

func TestSyncValuesLifecycleStamp(t *testing.T) {
	ctx := context.Background()
	db := scriptsDB()
	remote := newFakeRemote(db)
	eng, store := newTestEngine(t, remote, Options{})
	folder := provision(t, eng, db)

	writeSnapshot(t, store, folder.ID, db, &Snapshot{
		Columns: []Column{{Name: "Name", Type: "title"}},
		Rows:    []Row{{Cells: []string{"Fresh"}}},
	})

	if _, err := eng.SyncValues(ctx, folder, db); err != nil {
		t.Fatal(err)
	}

	if _, ok := db.Properties["Lifecycle"]; !ok {
		t.Fatal("lifecycle property not auto-created")
	}
	for _, p := range remote.pages {
		lv := p.Properties["Lifecycle"]
		if lv.Select == nil || lv.Select.Name != "new" {
			t.Errorf("lifecycle stamp = %+v, want new", lv)
		}
	}
}

func TestSyncValuesNoSnapshotIsNoop(t *testing.T) {
	ctx := context.Background()
	db := scriptsDB()
	remote := newFakeRemote(db)
	eng, _ := newTestEngine(t, remote, Options{})
	folder := provision(t, eng, db)

	res, err := eng.SyncValues(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created+res.Updated+res.Skipped != 0 {
		t.Errorf("result = %+v, want noop", res)
	}
	if remote.createCalls+remote.updateCalls != 0 {
		t.Error("remote was called without a snapshot")
	}
}

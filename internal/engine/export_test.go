package engine

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/locksvc"
	"github.com/vibevesselio/snapsync/internal/notion"
)

func exportDB() *notion.Database {
	return testDatabase("db1", "Scripts", map[string]notion.DBProperty{
		"Name":     {Type: "title"},
		"Duration": {Type: "number"},
		"Category": {Type: "select"},
	})
}

func TestExportSnapshot(t *testing.T) {
	ctx := context.Background()
	db := exportDB()
	remote := newFakeRemote(db)
	n := 3.5
	remote.addPage("db1", map[string]notion.PropertyValue{
		"Name":     {Type: "title", Title: notion.TextValue("First")},
		"Duration": {Type: "number", Number: &n},
		"Category": {Type: "select", Select: &notion.SelectValue{Name: "tools"}},
	}, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))

	eng, store := newTestEngine(t, remote, Options{})
	folder := provision(t, eng, db)

	res, err := eng.ExportSnapshot(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	if res.Pages != 1 {
		t.Fatalf("Pages = %d, want 1", res.Pages)
	}

	content, err := store.ReadContent(ctx, res.File.ID)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := DecodeSnapshot(content)
	if err != nil {
		t.Fatal(err)
	}
	// Title first, remaining properties alphabetical.
	wantCols := []string{"Name", "Category", "Duration"}
	if len(snap.Columns) != len(wantCols) {
		t.Fatalf("columns = %+v", snap.Columns)
	}
	for i, want := range wantCols {
		if snap.Columns[i].Name != want {
			t.Errorf("column %d = %q, want %q", i, snap.Columns[i].Name, want)
		}
	}
	row := snap.Rows[0]
	if row.PageID == "" {
		t.Error("page id missing from exported row")
	}
	if row.LastSyncedAt != "2026-08-01T10:00:00Z" {
		t.Errorf("sync stamp = %q", row.LastSyncedAt)
	}
	if row.Cells[0] != "First" || row.Cells[1] != "tools" || row.Cells[2] != "3.5" {
		t.Errorf("cells = %v", row.Cells)
	}
}

func TestExportSnapshotStableAcrossRuns(t *testing.T) {
	ctx := context.Background()
	db := exportDB()
	remote := newFakeRemote(db)
	remote.addPage("db1", map[string]notion.PropertyValue{
		"Name": {Type: "title", Title: notion.TextValue("Only")},
	}, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))

	eng, store := newTestEngine(t, remote, Options{})
	folder := provision(t, eng, db)

	first, err := eng.ExportSnapshot(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := store.ReadContent(ctx, first.File.ID)

	second, err := eng.ExportSnapshot(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := store.ReadContent(ctx, second.File.ID)

	if first.File.ID != second.File.ID {
		t.Error("export replaced the file instead of rewriting in place")
	}
	if !bytes.Equal(a, b) {
		t.Errorf("unchanged data produced different bytes:\n%q\n%q", a, b)
	}
}

func TestExportArchivesPreviousVersion(t *testing.T) {
	ctx := context.Background()
	db := exportDB()
	remote := newFakeRemote(db)
	remote.addPage("db1", map[string]notion.PropertyValue{
		"Name": {Type: "title", Title: notion.TextValue("Only")},
	}, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))

	eng, store := newTestEngine(t, remote, Options{})
	folder := provision(t, eng, db)

	if _, err := eng.ExportSnapshot(ctx, folder, db); err != nil {
		t.Fatal(err)
	}
	res, err := eng.ExportSnapshot(ctx, folder, db)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Archived {
		t.Error("second export did not archive the previous version")
	}

	arch := findChildFolder(t, store, folder.ID, ArchiveFolderName)
	versions, err := store.ListChildren(ctx, arch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 {
		t.Fatalf("%d archived versions, want 1", len(versions))
	}
	if !strings.HasPrefix(versions[0].Name, SnapshotFileName(db)+".") {
		t.Errorf("archive name = %q", versions[0].Name)
	}
}

func TestArchiveRetentionBound(t *testing.T) {
	ctx := context.Background()
	db := exportDB()
	remote := newFakeRemote(db)
	remote.addPage("db1", map[string]notion.PropertyValue{
		"Name": {Type: "title", Title: notion.TextValue("Only")},
	}, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))

	eng, store := newTestEngine(t, remote, Options{ArchiveRetention: 3})
	folder := provision(t, eng, db)

	// Distinct archive stamps need a moving clock.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	eng.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for i := 0; i < 8; i++ {
		if _, err := eng.ExportSnapshot(ctx, folder, db); err != nil {
			t.Fatal(err)
		}
	}

	arch := findChildFolder(t, store, folder.ID, ArchiveFolderName)
	versions, err := store.ListChildren(ctx, arch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 3 {
		t.Errorf("%d archived versions, want retention bound 3", len(versions))
	}
	// The newest versions survive the trim.
	for _, v := range versions {
		if v.Name <= SnapshotFileName(db)+"."+base.Add(4*time.Minute).Format(archiveStampLayout) {
			t.Errorf("old version %q survived the trim", v.Name)
		}
	}
}

// truncatingStore drops the last byte of every read, standing in for a
// storage backend whose stored copy is shorter than the bytes sent.
type truncatingStore struct {
	drive.Store
}

func (s *truncatingStore) ReadContent(ctx context.Context, id string) ([]byte, error) {
	b, err := s.Store.ReadContent(ctx, id)
	if err == nil && len(b) > 0 {
		b = b[:len(b)-1]
	}
	return b, err
}

type captureLogger struct {
	errors []string
}

func (l *captureLogger) Debug(string, ...any)       {}
func (l *captureLogger) Info(string, ...any)        {}
func (l *captureLogger) Warn(string, ...any)        {}
func (l *captureLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }

func TestExportSnapshotDetectsTruncatedWrite(t *testing.T) {
	ctx := context.Background()
	db := exportDB()
	remote := newFakeRemote(db)
	remote.addPage("db1", map[string]notion.PropertyValue{
		"Name": {Type: "title", Title: notion.TextValue("First")},
	}, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))

	log := &captureLogger{}
	store := &truncatingStore{Store: drive.NewMemStore()}
	eng := New(remote, store, locksvc.NewMemoryLocker(), log, Options{})

	folder, err := eng.EnsureFolder(ctx, "root", db)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.ExportSnapshot(ctx, folder, db); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, msg := range log.errors {
		if strings.Contains(msg, "byte length mismatch") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want a byte length mismatch report", log.errors)
	}
}

func findChildFolder(t *testing.T, store drive.Store, parentID, name string) *drive.File {
	t.Helper()
	children, err := store.ListChildren(context.Background(), parentID)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range children {
		if c.IsFolder() && c.Name == name {
			return c
		}
	}
	t.Fatalf("folder %q not found under %s", name, parentID)
	return nil
}

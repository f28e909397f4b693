// Snapshot export: materializing remote pages into the canonical file,
// with bounded archival of the previous version.

package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/models"
	"github.com/vibevesselio/snapsync/internal/notion"
)

// archiveStampLayout names archived snapshot versions; lexical order is
// chronological order.
const archiveStampLayout = "20060102T150405Z"

// ExportResult reports what snapshot export did.
type ExportResult struct {
	File     *drive.File
	Pages    int
	Archived bool
}

// ExportSnapshot queries every page of the collection and rewrites the
// canonical snapshot file in place, archiving the previous content
// first. Column order is stable across runs: the title property first,
// then the rest alphabetically, so repeated exports of unchanged data
// produce identical bytes.
func (e *Engine) ExportSnapshot(ctx context.Context, folder *drive.File, db *notion.Database) (*ExportResult, error) {
	pages, err := e.remote.QueryDatabaseAll(ctx, db.ID, nil, e.opts.MaxQueryBatches)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", db.ID, err)
	}

	snap := buildSnapshot(db, pages)

	file, err := e.EnsureCanonicalFile(ctx, folder.ID, SnapshotFileName(db))
	if err != nil {
		return nil, err
	}

	res := &ExportResult{File: file, Pages: len(pages)}
	if file.Size > 0 {
		if err := e.archiveSnapshot(ctx, folder.ID, file); err != nil {
			e.log.Warn("failed to archive previous snapshot", "file", file.ID, "err", err)
		} else {
			res.Archived = true
		}
	}

	content := EncodeSnapshot(snap)
	if _, err := e.store.WriteContent(ctx, file.ID, content); err != nil {
		return nil, fmt.Errorf("write snapshot %s: %w", file.ID, err)
	}
	// Verify the stored copy itself, not the metadata the write call
	// echoed back. A mismatch means a truncated or mangled upload; the
	// archive still holds the previous version, so flag it rather than
	// retry.
	if stored, err := e.store.ReadContent(ctx, file.ID); err != nil {
		e.log.Warn("failed to re-read snapshot for verification", "file", file.ID, "err", err)
	} else if len(stored) != len(content) {
		e.log.Error("snapshot byte length mismatch after write",
			"file", file.ID, "expected", len(content), "actual", len(stored))
	}

	e.log.Info("exported snapshot", "collection", db.ID,
		"file", file.Name, "pages", len(pages), "bytes", len(content))
	return res, nil
}

// buildSnapshot flattens pages into rows under a deterministic column
// order.
func buildSnapshot(db *notion.Database, pages []notion.Page) *Snapshot {
	cols := orderedColumns(db)
	snap := &Snapshot{Columns: cols}
	for i := range pages {
		page := &pages[i]
		row := Row{
			PageID:       page.ID,
			LastSyncedAt: page.LastEditedTime.UTC().Format(TimestampLayout),
			Cells:        make([]string, len(cols)),
		}
		for j, col := range cols {
			if pv, ok := page.Properties[col.Name]; ok {
				row.Cells[j] = ValueToCell(&pv)
			}
		}
		snap.Rows = append(snap.Rows, row)
	}
	return snap
}

func orderedColumns(db *notion.Database) []Column {
	title := ""
	rest := make([]string, 0, len(db.Properties))
	for name, prop := range db.Properties {
		if prop.Type == "title" && title == "" {
			title = name
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)

	cols := make([]Column, 0, len(db.Properties))
	if title != "" {
		cols = append(cols, Column{Name: title, Type: models.PropertyTypeTitle})
	}
	for _, name := range rest {
		cols = append(cols, Column{Name: name, Type: models.ParseType(db.Properties[name].Type)})
	}
	return cols
}

// archiveSnapshot copies the file's current content into the _archive
// sub-folder under a timestamped name, then trims the archive to the
// retention bound.
func (e *Engine) archiveSnapshot(ctx context.Context, folderID string, file *drive.File) error {
	content, err := e.store.ReadContent(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("read snapshot for archive: %w", err)
	}
	if len(content) == 0 {
		return nil
	}

	arch, err := e.ensureChildFolder(ctx, folderID, ArchiveFolderName)
	if err != nil {
		return err
	}

	name := file.Name + "." + e.now().UTC().Format(archiveStampLayout)
	if _, err := e.store.CreateFile(ctx, arch.ID, name, file.MimeType, content); err != nil {
		return fmt.Errorf("create archive copy %s: %w", name, err)
	}

	e.trimArchive(ctx, arch.ID, file.Name)
	return nil
}

// trimArchive trashes the oldest archived versions of the given
// snapshot until at most ArchiveRetention remain. Trim failures are
// logged; the next run retries.
func (e *Engine) trimArchive(ctx context.Context, archiveID, baseName string) {
	children, err := e.store.ListChildren(ctx, archiveID)
	if err != nil {
		e.log.Warn("failed to list archive for trim", "folder", archiveID, "err", err)
		return
	}

	var versions []*drive.File
	for _, f := range children {
		if strings.HasPrefix(f.Name, baseName+".") {
			versions = append(versions, f)
		}
	}
	if len(versions) <= e.opts.ArchiveRetention {
		return
	}

	// Timestamp suffixes sort lexically, so name order is age order.
	sort.Slice(versions, func(i, j int) bool { return versions[i].Name < versions[j].Name })
	for _, f := range versions[:len(versions)-e.opts.ArchiveRetention] {
		if err := e.store.Trash(ctx, f.ID); err != nil {
			e.log.Warn("failed to trash archived snapshot", "file", f.ID, "name", f.Name, "err", err)
			continue
		}
		e.log.Debug("trimmed archived snapshot", "name", f.Name)
	}
}

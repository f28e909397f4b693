// Conflict-aware value propagation from snapshot rows to remote pages.

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/models"
	"github.com/vibevesselio/snapsync/internal/notion"
)

// SyncResult reports what value synchronization did.
type SyncResult struct {
	Created int
	Updated int
	Skipped int
}

// lifecycleOptions is the enumeration auto-created for the lifecycle
// property on first use.
var lifecycleOptions = []string{"new", "active", "done", "archived"}

// SyncValues pushes every snapshot row to the remote collection,
// creating pages for rows without an id and patching the rest. Conflicts
// are guarded by comparing the remote page's last-modified time against
// the row's recorded sync time: if the remote changed after the snapshot
// was taken, the remote wins and the row is skipped. A single row's
// failure increments Skipped and never aborts the remaining rows.
// Afterwards the pre-sync snapshot content is archived and the snapshot
// is rewritten in place with fresh page ids and sync timestamps.
func (e *Engine) SyncValues(ctx context.Context, folder *drive.File, db *notion.Database) (*SyncResult, error) {
	res := &SyncResult{}

	snap, file, err := e.loadSnapshot(ctx, folder.ID, db)
	if err != nil {
		if errors.Is(err, drive.ErrNotFound) {
			return res, nil // nothing local to push yet
		}
		return nil, err
	}
	if len(snap.Rows) == 0 {
		return res, nil
	}

	schema := make(map[string]models.PropertyType, len(db.Properties))
	titleName := ""
	for name, prop := range db.Properties {
		schema[name] = models.ParseType(prop.Type)
		if prop.Type == "title" {
			titleName = name
		}
	}

	bindings := e.bindColumns(ctx, db, snap, schema)

	changed := false
	for i := range snap.Rows {
		row := &snap.Rows[i]
		outcome, err := e.syncRow(ctx, db, snap, row, bindings, schema, titleName)
		if err != nil {
			res.Skipped++
			e.log.Error("row sync failed", "collection", db.ID, "row", i+1,
				"pageID", row.PageID, "err", err)
			continue
		}
		switch outcome {
		case rowCreated:
			res.Created++
			changed = true
		case rowUpdated:
			res.Updated++
			changed = true
		case rowSkipped:
			res.Skipped++
		}
	}

	if changed {
		if err := e.archiveSnapshot(ctx, folder.ID, file); err != nil {
			e.log.Warn("failed to archive pre-sync snapshot", "file", file.ID, "err", err)
		}
		if _, err := e.store.WriteContent(ctx, file.ID, EncodeSnapshot(snap)); err != nil {
			return res, fmt.Errorf("rewrite snapshot %s: %w", file.ID, err)
		}
	}

	e.log.Info("synchronized values", "collection", db.ID,
		"created", res.Created, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}

// bindColumns resolves each snapshot column to a live property name.
// Columns that still don't resolve get one creation attempt (type from
// the snapshot's type row) followed by one more resolution; columns that
// remain unbound are dropped from payloads, not fatal.
func (e *Engine) bindColumns(ctx context.Context, db *notion.Database, snap *Snapshot, schema map[string]models.PropertyType) []string {
	bindings := make([]string, len(snap.Columns))
	for i := range snap.Columns {
		col := &snap.Columns[i]
		r := ResolveProperty(col.Name, schema, e.opts.ResolveAttempts)
		if !r.Matched {
			if prop := e.buildDBProperty(col.Type, e.sampleColumn(snap, i)); prop != nil {
				patch := &notion.SchemaPatch{Properties: map[string]*notion.DBProperty{col.Name: prop}}
				if _, err := e.remote.UpdateDatabase(ctx, db.ID, patch); err != nil {
					e.log.Warn("failed to create missing property",
						"collection", db.ID, "column", col.Name, "err", err)
				} else {
					schema[col.Name] = col.Type
					r = ResolveProperty(col.Name, schema, e.opts.ResolveAttempts)
				}
			}
		}
		if !r.Matched {
			e.log.Warn("snapshot column has no remote property, dropping from payloads",
				"collection", db.ID, "column", col.Name)
			continue
		}
		if r.Strategy != "exact" {
			e.log.Info("resolved snapshot column to live property",
				"collection", db.ID, "column", col.Name,
				"property", r.ActualName, "strategy", r.Strategy)
		}
		bindings[i] = r.ActualName
	}
	return bindings
}

type rowOutcome int

const (
	rowSkipped rowOutcome = iota
	rowCreated
	rowUpdated
)

func (e *Engine) syncRow(ctx context.Context, db *notion.Database, snap *Snapshot, row *Row, bindings []string, schema map[string]models.PropertyType, titleName string) (rowOutcome, error) {
	payload := make(map[string]notion.PropertyValue)
	hasValue := false
	titleCell := ""

	for i := range snap.Columns {
		actual := bindings[i]
		if actual == "" {
			continue
		}
		typ := schema[actual]
		if typ.SystemAuthored() {
			continue
		}
		cell := ""
		if i < len(row.Cells) {
			cell = row.Cells[i]
		}
		if typ == models.PropertyTypeTitle {
			titleCell = strings.TrimSpace(cell)
		}
		pv := CellToValue(cell, typ)
		if pv == nil {
			continue
		}
		if typ == models.PropertyTypeRelation {
			pv.Relation = e.validRelations(ctx, db.ID, actual, pv.Relation)
		}
		if strings.TrimSpace(cell) != "" {
			hasValue = true
		}
		payload[actual] = *pv
	}

	if !hasValue {
		return rowSkipped, nil
	}

	if row.PageID != "" {
		return e.updateRow(ctx, db, row, payload)
	}

	if titleName == "" || titleCell == "" {
		// A page with a blank identity would be an orphan.
		e.log.Warn("skipping create for row with empty title",
			"collection", db.ID, "title_property", titleName)
		return rowSkipped, nil
	}
	return e.createRow(ctx, db, row, payload, schema)
}

func (e *Engine) updateRow(ctx context.Context, db *notion.Database, row *Row, payload map[string]notion.PropertyValue) (rowOutcome, error) {
	if e.opts.ConflictMode == ConflictGuard {
		page, err := e.remote.GetPage(ctx, row.PageID)
		if err != nil {
			return rowSkipped, fmt.Errorf("fetch page for conflict check: %w", err)
		}
		if syncedAt := row.SyncedAt(); page.LastEditedTime.After(syncedAt) {
			e.log.Warn("conflict: remote page modified after snapshot, remote wins",
				"collection", db.ID, "pageID", row.PageID,
				"remoteModified", page.LastEditedTime, "snapshotSynced", syncedAt)
			return rowSkipped, nil
		}
	}

	if _, err := e.remote.UpdatePage(ctx, row.PageID, &notion.UpdatePageRequest{Properties: payload}); err != nil {
		return rowSkipped, fmt.Errorf("update page %s: %w", row.PageID, err)
	}
	row.LastSyncedAt = e.now().UTC().Format(TimestampLayout)
	return rowUpdated, nil
}

func (e *Engine) createRow(ctx context.Context, db *notion.Database, row *Row, payload map[string]notion.PropertyValue, schema map[string]models.PropertyType) (rowOutcome, error) {
	e.stampLifecycle(ctx, db, payload, schema)

	page, err := e.remote.CreatePage(ctx, &notion.CreatePageRequest{
		Parent:     notion.Parent{Type: "database_id", DatabaseID: db.ID},
		Properties: payload,
	})
	if err != nil {
		return rowSkipped, fmt.Errorf("create page: %w", err)
	}
	row.PageID = page.ID
	row.LastSyncedAt = e.now().UTC().Format(TimestampLayout)
	return rowCreated, nil
}

// validRelations drops references to pages that don't exist or are
// archived/trashed. Invalid references are logged, not fatal.
func (e *Engine) validRelations(ctx context.Context, collectionID, property string, refs []notion.RelationValue) []notion.RelationValue {
	valid := refs[:0]
	for _, ref := range refs {
		page, err := e.remote.GetPage(ctx, ref.ID)
		if err != nil || page.Archived || page.InTrash {
			e.log.Warn("dropping invalid relation reference",
				"collection", collectionID, "property", property, "target", ref.ID, "err", err)
			continue
		}
		valid = append(valid, ref)
	}
	return valid
}

// stampLifecycle sets the lifecycle property to its initial value on the
// create path, auto-creating the property (as a select with a fixed
// enumeration) on first use. Best effort: failures are logged and the
// create proceeds without the stamp.
func (e *Engine) stampLifecycle(ctx context.Context, db *notion.Database, payload map[string]notion.PropertyValue, schema map[string]models.PropertyType) {
	if e.opts.LifecycleDisabled {
		return
	}
	name := e.opts.LifecycleProperty
	typ, ok := schema[name]
	if !ok {
		opts := make([]notion.SelectOption, 0, len(lifecycleOptions))
		for _, o := range lifecycleOptions {
			opts = append(opts, notion.SelectOption{Name: o})
		}
		patch := &notion.SchemaPatch{Properties: map[string]*notion.DBProperty{
			name: {Select: &notion.SelectConfig{Options: opts}},
		}}
		if _, err := e.remote.UpdateDatabase(ctx, db.ID, patch); err != nil {
			e.log.Warn("failed to create lifecycle property",
				"collection", db.ID, "property", name, "err", err)
			return
		}
		schema[name] = models.PropertyTypeSelect
		typ = models.PropertyTypeSelect
	}

	if _, taken := payload[name]; taken {
		return // snapshot already carries a value for it
	}
	switch typ {
	case models.PropertyTypeSelect:
		payload[name] = notion.PropertyValue{Select: &notion.SelectValue{Name: e.opts.LifecycleInitial}}
	case models.PropertyTypeStatus:
		payload[name] = notion.PropertyValue{Status: &notion.SelectValue{Name: e.opts.LifecycleInitial}}
	}
}

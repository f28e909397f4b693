// Schema reconciliation between snapshot columns and the live schema.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/models"
	"github.com/vibevesselio/snapsync/internal/notion"
)

// SchemaResult reports what reconciliation changed.
type SchemaResult struct {
	// Added lists remote properties created from snapshot columns.
	Added []string
	// Deleted lists remote properties removed (destructive edits on).
	Deleted []string
	// WouldDelete lists deletion candidates left untouched because
	// destructive edits are off.
	WouldDelete []string
	// Skipped lists snapshot columns that could not be applied.
	Skipped []string
}

// ReconcileSchema diffs the snapshot's declared columns against the
// collection's live schema and applies one batched schema patch.
// Additions are applied unconditionally (schema growth is safe).
// Deletions are gated behind AllowDestructiveSchema: a column renamed in
// the snapshot otherwise looks like delete-old plus add-new, and the
// delete loses data. Title, relation, computed and system-authored
// properties are never deletion candidates.
func (e *Engine) ReconcileSchema(ctx context.Context, folder *drive.File, db *notion.Database) (*SchemaResult, error) {
	res := &SchemaResult{}

	snap, _, err := e.loadSnapshot(ctx, folder.ID, db)
	if err != nil {
		if errors.Is(err, drive.ErrNotFound) {
			return res, nil // first pass: nothing local to reconcile
		}
		return nil, err
	}
	if len(snap.Columns) == 0 {
		return res, nil
	}

	remoteProps := make(map[string]models.PropertyType, len(db.Properties))
	titleName := ""
	for name, prop := range db.Properties {
		remoteProps[name] = models.ParseType(prop.Type)
		if prop.Type == "title" {
			titleName = name
		}
	}

	// Columns mapped (exactly or via resolution) to a live property.
	resolved := make(map[string]bool, len(snap.Columns))
	additions := make(map[string]*notion.DBProperty)

	for i := range snap.Columns {
		col := &snap.Columns[i]
		r := ResolveProperty(col.Name, remoteProps, e.opts.ResolveAttempts)
		if r.Matched {
			resolved[r.ActualName] = true
			if r.Strategy != "exact" {
				e.log.Info("resolved snapshot column to live property",
					"collection", db.ID, "column", col.Name,
					"property", r.ActualName, "strategy", r.Strategy)
			}
			continue
		}

		if col.Type == models.PropertyTypeTitle && titleName != "" {
			e.log.Warn("skipping second title column: collection already has a title",
				"collection", db.ID, "column", col.Name, "title", titleName)
			res.Skipped = append(res.Skipped, col.Name)
			continue
		}

		prop := e.buildDBProperty(col.Type, e.sampleColumn(snap, i))
		if prop == nil {
			e.log.Warn("cannot create property of this type from a snapshot",
				"collection", db.ID, "column", col.Name, "type", col.Type)
			res.Skipped = append(res.Skipped, col.Name)
			continue
		}
		additions[col.Name] = prop
	}

	var candidates []string
	for name, typ := range remoteProps {
		if resolved[name] || typ.Protected() {
			continue
		}
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)

	patch := &notion.SchemaPatch{Properties: make(map[string]*notion.DBProperty)}
	for name, prop := range additions {
		patch.Properties[name] = prop
		res.Added = append(res.Added, name)
	}
	sort.Strings(res.Added)

	if e.opts.AllowDestructiveSchema {
		for _, name := range candidates {
			patch.Properties[name] = nil
			res.Deleted = append(res.Deleted, name)
		}
	} else {
		for _, name := range candidates {
			e.log.Warn("would delete remote property (destructive schema edits disabled)",
				"collection", db.ID, "property", name)
		}
		res.WouldDelete = candidates
	}

	if len(patch.Properties) == 0 {
		return res, nil
	}

	if _, err := e.remote.UpdateDatabase(ctx, db.ID, patch); err != nil {
		return nil, fmt.Errorf("patch schema for %s: %w", db.ID, err)
	}
	e.log.Info("reconciled schema", "collection", db.ID,
		"added", len(res.Added), "deleted", len(res.Deleted), "skipped", len(res.Skipped))
	return res, nil
}

// sampleColumn returns up to SampleLimit non-empty values of column i.
func (e *Engine) sampleColumn(snap *Snapshot, i int) []string {
	var samples []string
	for r := range snap.Rows {
		if len(samples) >= e.opts.SampleLimit {
			break
		}
		if i < len(snap.Rows[r].Cells) {
			if v := strings.TrimSpace(snap.Rows[r].Cells[i]); v != "" {
				samples = append(samples, v)
			}
		}
	}
	return samples
}

// buildDBProperty builds the creation payload for a snapshot column,
// inferring type-specific configuration from sampled values. Returns nil
// for types the engine must not create (computed, system-authored,
// relation without a known target).
func (e *Engine) buildDBProperty(typ models.PropertyType, samples []string) *notion.DBProperty {
	limit := e.opts.OptionLimit
	switch typ {
	case models.PropertyTypeTitle:
		return &notion.DBProperty{Title: &struct{}{}}
	case models.PropertyTypeText:
		return &notion.DBProperty{RichText: &struct{}{}}
	case models.PropertyTypeNumber:
		return &notion.DBProperty{Number: &notion.NumberConfig{Format: "number"}}
	case models.PropertyTypeCheckbox:
		return &notion.DBProperty{Checkbox: &struct{}{}}
	case models.PropertyTypeDate:
		return &notion.DBProperty{Date: &struct{}{}}
	case models.PropertyTypeSelect:
		return &notion.DBProperty{Select: &notion.SelectConfig{Options: enumerateOptions(samples, false, limit)}}
	case models.PropertyTypeStatus:
		// Status properties cannot be created through the API; a select
		// with the same options is the closest creatable shape.
		return &notion.DBProperty{Select: &notion.SelectConfig{Options: enumerateOptions(samples, false, limit)}}
	case models.PropertyTypeMultiSelect:
		return &notion.DBProperty{MultiSelect: &notion.SelectConfig{Options: enumerateOptions(samples, true, limit)}}
	case models.PropertyTypeURL:
		return &notion.DBProperty{URL: &struct{}{}}
	case models.PropertyTypeEmail:
		return &notion.DBProperty{Email: &struct{}{}}
	case models.PropertyTypePhone:
		return &notion.DBProperty{PhoneNumber: &struct{}{}}
	default:
		return nil
	}
}

// enumerateOptions collects distinct sampled values as select options,
// splitting on comma for multi-valued cells, capped at limit.
func enumerateOptions(samples []string, multi bool, limit int) []notion.SelectOption {
	seen := make(map[string]bool)
	var opts []notion.SelectOption
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] || len(opts) >= limit {
			return
		}
		seen[v] = true
		opts = append(opts, notion.SelectOption{Name: v})
	}
	for _, s := range samples {
		if multi {
			for _, part := range strings.Split(s, ",") {
				add(part)
			}
		} else {
			add(s)
		}
	}
	return opts
}

// Identity-stable folder and snapshot-file provisioning.

package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/locksvc"
	"github.com/vibevesselio/snapsync/internal/notion"
)

const (
	// folderLockTTL bounds how long a crashed run can hold a
	// provisioning lock.
	folderLockTTL = 2 * time.Minute
	// folderLockRetries is the bounded wait on a contended lock
	// (backoff 1s/2s/4s).
	folderLockRetries = 3
	// ArchiveFolderName is the per-collection archive sub-folder.
	ArchiveFolderName = "_archive"
	// SnapshotExt is the snapshot file extension.
	SnapshotExt = ".tsv"
)

// ErrLockTimeout is returned when folder provisioning could not take the
// lock and no existing folder was found. Creating blindly here is the
// race this layer exists to prevent; the caller retries on a later run.
var ErrLockTimeout = errors.New("provisioning lock timeout")

// suffixPattern matches storage-generated collision names: "base (1)".
var suffixPattern = regexp.MustCompile(`^(.*) \((\d+)\)$`)

var hostileChars = regexp.MustCompile(`[\\/:*?"<>|#%&{}$!'@+=` + "`" + `]+`)

// sanitizeTitle normalizes a collection title into a storage-safe name
// fragment.
func sanitizeTitle(title string) string {
	s := hostileChars.ReplaceAllString(title, " ")
	s = strings.Join(strings.Fields(s), "-")
	s = strings.ToLower(s)
	if s == "" {
		s = "untitled"
	}
	const maxLen = 64
	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], "-")
	}
	return s
}

// CanonicalFolderName is the single authoritative folder name for a
// collection: sanitized title plus the stable collection id.
func CanonicalFolderName(db *notion.Database) string {
	return sanitizeTitle(db.PlainTitle()) + "_" + db.ID
}

// SnapshotFileName is the canonical snapshot file name for a collection.
func SnapshotFileName(db *notion.Database) string {
	return CanonicalFolderName(db) + SnapshotExt
}

// EnsureFolder maps a collection to exactly one canonical folder under
// parentID, creating it if needed. Idempotent and safe under concurrent,
// possibly overlapping, invocations: the named lock is acquired before
// any existence check (checking first and locking second leaves a race
// window), duplicates found under the lock are consolidated into a
// primary, and a lock timeout without an existing folder fails rather
// than risking a duplicate.
func (e *Engine) EnsureFolder(ctx context.Context, parentID string, db *notion.Database) (*drive.File, error) {
	lockName := "folder:" + parentID + ":" + db.ID

	lease, err := locksvc.Acquire(ctx, e.locks, lockName, folderLockTTL, e.lockRetries)
	if err != nil {
		if !errors.Is(err, locksvc.ErrNotAcquired) {
			return nil, fmt.Errorf("acquire %s: %w", lockName, err)
		}
		// Best effort: another invocation may already have provisioned
		// the folder. Look, but never create without the lock.
		if f := e.findFolderNoLock(ctx, parentID, db); f != nil {
			e.log.Warn("provisioning lock contended, using existing folder",
				"collection", db.ID, "folder", f.ID)
			return f, nil
		}
		return nil, fmt.Errorf("collection %s: %w", db.ID, ErrLockTimeout)
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			e.log.Warn("failed to release provisioning lock", "lock", lockName, "err", err)
		}
	}()

	canonical := CanonicalFolderName(db)
	matches, err := e.matchingFolders(ctx, parentID, db.ID)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		f, err := e.store.CreateFolder(ctx, parentID, canonical)
		if err != nil {
			return nil, fmt.Errorf("create folder %s: %w", canonical, err)
		}
		e.log.Info("created collection folder", "collection", db.ID, "folder", f.ID, "name", canonical)
		return f, nil
	}

	if len(matches) == 1 && matches[0].Name == canonical {
		return matches[0], nil
	}

	primary := pickPrimary(matches, canonical)
	e.consolidateFolders(ctx, primary, matches)

	if primary.Name != canonical {
		if e.nameTaken(ctx, parentID, canonical, primary.ID) {
			e.log.Warn("canonical folder name still taken after consolidation",
				"collection", db.ID, "name", canonical)
		} else if renamed, err := e.store.Rename(ctx, primary.ID, canonical); err != nil {
			e.log.Warn("failed to rename folder to canonical name",
				"folder", primary.ID, "name", canonical, "err", err)
		} else {
			primary = renamed
		}
	}
	return primary, nil
}

// findFolderNoLock scans for an existing folder without creating.
func (e *Engine) findFolderNoLock(ctx context.Context, parentID string, db *notion.Database) *drive.File {
	matches, err := e.matchingFolders(ctx, parentID, db.ID)
	if err != nil || len(matches) == 0 {
		return nil
	}
	return pickPrimary(matches, CanonicalFolderName(db))
}

// matchingFolders lists folders under parentID whose name embeds the
// collection id.
func (e *Engine) matchingFolders(ctx context.Context, parentID, collectionID string) ([]*drive.File, error) {
	children, err := e.store.ListChildren(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", parentID, err)
	}
	var matches []*drive.File
	for _, c := range children {
		if c.IsFolder() && strings.Contains(c.Name, collectionID) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// pickPrimary orders candidates: exact canonical name, then any
// non-suffixed name, then most recently modified.
func pickPrimary(matches []*drive.File, canonical string) *drive.File {
	sorted := make([]*drive.File, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if (a.Name == canonical) != (b.Name == canonical) {
			return a.Name == canonical
		}
		aSuffixed := suffixPattern.MatchString(strings.TrimSuffix(a.Name, path.Ext(a.Name)))
		bSuffixed := suffixPattern.MatchString(strings.TrimSuffix(b.Name, path.Ext(b.Name)))
		if aSuffixed != bSuffixed {
			return !aSuffixed
		}
		return a.ModifiedTime.After(b.ModifiedTime)
	})
	return sorted[0]
}

// consolidateFolders moves everything out of duplicate folders into the
// primary and trashes the emptied duplicates. Storage errors here are
// logged and non-fatal: partially consolidated state self-heals on the
// next pass.
func (e *Engine) consolidateFolders(ctx context.Context, primary *drive.File, matches []*drive.File) {
	for _, dup := range matches {
		if dup.ID == primary.ID {
			continue
		}
		children, err := e.store.ListChildren(ctx, dup.ID)
		if err != nil {
			e.log.Warn("failed to list duplicate folder", "folder", dup.ID, "err", err)
			continue
		}
		moved := 0
		for _, c := range children {
			if err := e.store.Move(ctx, c.ID, dup.ID, primary.ID); err != nil {
				e.log.Warn("failed to move file during consolidation",
					"file", c.ID, "from", dup.ID, "to", primary.ID, "err", err)
				continue
			}
			moved++
		}
		if moved < len(children) {
			// Leave the duplicate in place; next pass retries.
			continue
		}
		if err := e.store.Trash(ctx, dup.ID); err != nil {
			e.log.Warn("failed to trash duplicate folder", "folder", dup.ID, "err", err)
			continue
		}
		e.log.Info("consolidated duplicate folder",
			"duplicate", dup.ID, "primary", primary.ID, "moved", moved)
	}
}

// nameTaken reports whether another child of parentID (excluding
// excludeID) already has the given name.
func (e *Engine) nameTaken(ctx context.Context, parentID, name, excludeID string) bool {
	children, err := e.store.ListChildren(ctx, parentID)
	if err != nil {
		return true // assume taken rather than collide
	}
	for _, c := range children {
		if c.ID != excludeID && c.Name == name {
			return true
		}
	}
	return false
}

// EnsureCanonicalFile finds or creates the single canonical file with
// the given name in folderID. Follows the same exact-match, else
// suffix-pattern match with best-candidate selection and rename logic as
// EnsureFolder, but without the cross-invocation lock: file creation for
// a folder only happens after that folder's lock-protected provisioning
// completed in the same pass.
func (e *Engine) EnsureCanonicalFile(ctx context.Context, folderID, name string) (*drive.File, error) {
	matches, err := e.matchingFiles(ctx, folderID, name)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		f, err := e.store.CreateFile(ctx, folderID, name, "text/tab-separated-values", nil)
		if err != nil {
			return nil, fmt.Errorf("create file %s: %w", name, err)
		}
		return f, nil
	}

	primary := pickPrimary(matches, name)
	if len(matches) > 1 {
		e.log.Warn("multiple snapshot file candidates", "folder", folderID, "name", name, "count", len(matches))
	}
	if primary.Name != name {
		if renamed, err := e.store.Rename(ctx, primary.ID, name); err != nil {
			e.log.Warn("failed to rename snapshot file", "file", primary.ID, "name", name, "err", err)
		} else {
			primary = renamed
		}
	}
	return primary, nil
}

// matchingFiles lists non-folder children whose name is exactly name or
// a storage-generated collision variant of it ("base (1).ext").
func (e *Engine) matchingFiles(ctx context.Context, folderID, name string) ([]*drive.File, error) {
	children, err := e.store.ListChildren(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folderID, err)
	}
	base := strings.TrimSuffix(name, path.Ext(name))
	ext := path.Ext(name)
	var matches []*drive.File
	for _, c := range children {
		if c.IsFolder() {
			continue
		}
		if c.Name == name {
			matches = append(matches, c)
			continue
		}
		cBase := strings.TrimSuffix(c.Name, path.Ext(c.Name))
		if m := suffixPattern.FindStringSubmatch(cBase); m != nil && m[1] == base && path.Ext(c.Name) == ext {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// findCanonicalFile locates the snapshot file without creating it.
// Returns drive.ErrNotFound when the collection has never been exported.
func (e *Engine) findCanonicalFile(ctx context.Context, folderID, name string) (*drive.File, error) {
	matches, err := e.matchingFiles(ctx, folderID, name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("snapshot %s: %w", name, drive.ErrNotFound)
	}
	return pickPrimary(matches, name), nil
}

// loadSnapshot reads and decodes the collection's snapshot file.
func (e *Engine) loadSnapshot(ctx context.Context, folderID string, db *notion.Database) (*Snapshot, *drive.File, error) {
	f, err := e.findCanonicalFile(ctx, folderID, SnapshotFileName(db))
	if err != nil {
		return nil, nil, err
	}
	content, err := e.store.ReadContent(ctx, f.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot %s: %w", f.ID, err)
	}
	snap, err := DecodeSnapshot(content)
	if err != nil {
		return nil, nil, fmt.Errorf("decode snapshot %s: %w", f.ID, err)
	}
	return snap, f, nil
}

// ensureChildFolder finds or creates a sub-folder by exact name.
func (e *Engine) ensureChildFolder(ctx context.Context, parentID, name string) (*drive.File, error) {
	children, err := e.store.ListChildren(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", parentID, err)
	}
	for _, c := range children {
		if c.IsFolder() && c.Name == name {
			return c, nil
		}
	}
	f, err := e.store.CreateFolder(ctx, parentID, name)
	if err != nil {
		return nil, fmt.Errorf("create folder %s: %w", name, err)
	}
	return f, nil
}

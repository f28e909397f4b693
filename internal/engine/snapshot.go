// Tab-delimited snapshot codec: header row, type row, data rows.

package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/vibevesselio/snapsync/internal/models"
)

// Reserved snapshot columns. They carry sync bookkeeping and are never
// exposed as remote properties.
const (
	ColPageID       = "__page_id"
	ColLastSyncedAt = "__last_synced_at"
)

// TimestampLayout is the format of __last_synced_at cells.
const TimestampLayout = time.RFC3339

// Column is one property column of a snapshot.
type Column struct {
	Name string
	Type models.PropertyType
}

// Row is one data row of a snapshot. Cells aligns with Snapshot.Columns.
type Row struct {
	PageID       string
	LastSyncedAt string
	Cells        []string
}

// SyncedAt parses the row's sync timestamp. Returns the zero time when
// the row was never synced or the cell is unparsable.
func (r *Row) SyncedAt() time.Time {
	if r.LastSyncedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(TimestampLayout, r.LastSyncedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Snapshot is the decoded canonical file of one collection.
type Snapshot struct {
	Columns []Column
	Rows    []Row
}

// ColumnIndex returns the index of the named column, or -1.
func (s *Snapshot) ColumnIndex(name string) int {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return i
		}
	}
	return -1
}

// Cell returns the named cell of row, or "" when the column is absent.
func (s *Snapshot) Cell(row *Row, name string) string {
	i := s.ColumnIndex(name)
	if i < 0 || i >= len(row.Cells) {
		return ""
	}
	return row.Cells[i]
}

// escapeCell makes a cell safe for the tab-delimited format.
func escapeCell(s string) string {
	if !strings.ContainsAny(s, "\t\n\r\\") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// unescapeCell reverses escapeCell.
func unescapeCell(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			switch r {
			case 't':
				b.WriteRune('\t')
			case 'n':
				b.WriteRune('\n')
			default:
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EncodeSnapshot renders the snapshot as tab-delimited text. Reserved
// columns come first, then property columns in declaration order.
func EncodeSnapshot(s *Snapshot) []byte {
	var b strings.Builder

	names := []string{ColPageID, ColLastSyncedAt}
	types := []string{"", ""}
	for i := range s.Columns {
		names = append(names, escapeCell(s.Columns[i].Name))
		types = append(types, string(s.Columns[i].Type))
	}
	b.WriteString(strings.Join(names, "\t"))
	b.WriteByte('\n')
	b.WriteString(strings.Join(types, "\t"))
	b.WriteByte('\n')

	for i := range s.Rows {
		row := &s.Rows[i]
		cells := []string{escapeCell(row.PageID), escapeCell(row.LastSyncedAt)}
		for j := range s.Columns {
			cell := ""
			if j < len(row.Cells) {
				cell = row.Cells[j]
			}
			cells = append(cells, escapeCell(cell))
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// DecodeSnapshot parses tab-delimited snapshot content. Reserved columns
// may appear at any position (hand-edited files move them); rows shorter
// than the header are padded with empty cells.
func DecodeSnapshot(content []byte) (*Snapshot, error) {
	text := strings.TrimRight(string(content), "\n")
	if text == "" {
		return &Snapshot{}, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("snapshot has %d header lines, want 2", len(lines))
	}

	names := strings.Split(lines[0], "\t")
	types := strings.Split(lines[1], "\t")

	s := &Snapshot{}
	pageIDIdx, syncedIdx := -1, -1
	propIdx := make([]int, 0, len(names)) // source column -> position
	for i, raw := range names {
		name := unescapeCell(raw)
		switch name {
		case ColPageID:
			pageIDIdx = i
		case ColLastSyncedAt:
			syncedIdx = i
		default:
			typ := ""
			if i < len(types) {
				typ = strings.TrimSpace(types[i])
			}
			s.Columns = append(s.Columns, Column{Name: name, Type: models.ParseType(typ)})
			propIdx = append(propIdx, i)
		}
	}

	for _, line := range lines[2:] {
		if line == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		at := func(i int) string {
			if i < 0 || i >= len(cells) {
				return ""
			}
			return unescapeCell(cells[i])
		}
		row := Row{
			PageID:       at(pageIDIdx),
			LastSyncedAt: at(syncedIdx),
			Cells:        make([]string, len(s.Columns)),
		}
		for j, src := range propIdx {
			row.Cells[j] = at(src)
		}
		s.Rows = append(s.Rows, row)
	}
	return s, nil
}

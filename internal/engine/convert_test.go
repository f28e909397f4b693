package engine

import (
	"testing"

	"github.com/vibevesselio/snapsync/internal/models"
	"github.com/vibevesselio/snapsync/internal/notion"
)

func TestCellToValue(t *testing.T) {
	t.Run("title", func(t *testing.T) {
		pv := CellToValue("My Page", models.PropertyTypeTitle)
		if pv == nil || plainText(pv.Title) != "My Page" {
			t.Fatalf("got %+v", pv)
		}
	})
	t.Run("number", func(t *testing.T) {
		pv := CellToValue("1,234.5", models.PropertyTypeNumber)
		if pv == nil || pv.Number == nil || *pv.Number != 1234.5 {
			t.Fatalf("got %+v", pv)
		}
	})
	t.Run("number unparsable clears", func(t *testing.T) {
		pv := CellToValue("not a number", models.PropertyTypeNumber)
		if pv == nil || pv.Number != nil {
			t.Fatalf("got %+v", pv)
		}
	})
	t.Run("checkbox tokens", func(t *testing.T) {
		for _, cell := range []string{"true", "Yes", "1", "x", "CHECKED"} {
			pv := CellToValue(cell, models.PropertyTypeCheckbox)
			if pv.Checkbox == nil || !*pv.Checkbox {
				t.Errorf("%q not truthy", cell)
			}
		}
		if pv := CellToValue("no", models.PropertyTypeCheckbox); *pv.Checkbox {
			t.Error("\"no\" parsed as true")
		}
	})
	t.Run("date range variants", func(t *testing.T) {
		for _, cell := range []string{"2026-01-01 → 2026-01-05", "2026-01-01 - 2026-01-05", "2026-01-01..2026-01-05"} {
			pv := CellToValue(cell, models.PropertyTypeDate)
			if pv.Date == nil || pv.Date.Start != "2026-01-01" {
				t.Fatalf("%q: got %+v", cell, pv.Date)
			}
			if pv.Date.End == nil || *pv.Date.End != "2026-01-05" {
				t.Errorf("%q: end = %v", cell, pv.Date.End)
			}
		}
	})
	t.Run("multi_select split", func(t *testing.T) {
		pv := CellToValue("a, b , c", models.PropertyTypeMultiSelect)
		if len(pv.MultiSelect) != 3 || pv.MultiSelect[1].Name != "b" {
			t.Fatalf("got %+v", pv.MultiSelect)
		}
	})
	t.Run("relation ids", func(t *testing.T) {
		pv := CellToValue("id1,id2", models.PropertyTypeRelation)
		if len(pv.Relation) != 2 || pv.Relation[1].ID != "id2" {
			t.Fatalf("got %+v", pv.Relation)
		}
	})
	t.Run("computed types are read-only", func(t *testing.T) {
		for _, typ := range []models.PropertyType{
			models.PropertyTypeFormula,
			models.PropertyTypeRollup,
			models.PropertyTypeCreatedTime,
			models.PropertyTypeUniqueID,
		} {
			if pv := CellToValue("anything", typ); pv != nil {
				t.Errorf("%s: got %+v, want nil", typ, pv)
			}
		}
	})
	t.Run("empty select clears", func(t *testing.T) {
		pv := CellToValue("", models.PropertyTypeSelect)
		if pv == nil || pv.Select != nil {
			t.Fatalf("got %+v", pv)
		}
	})
}

func TestValueToCell(t *testing.T) {
	end := "2026-01-05"
	n := 12.0
	tests := []struct {
		name string
		pv   notion.PropertyValue
		want string
	}{
		{"title", notion.PropertyValue{Type: "title", Title: notion.TextValue("A Page")}, "A Page"},
		{"number trims zeroes", notion.PropertyValue{Type: "number", Number: &n}, "12"},
		{"date range canonical", notion.PropertyValue{Type: "date", Date: &notion.DateValue{Start: "2026-01-01", End: &end}}, "2026-01-01 → 2026-01-05"},
		{"multi_select join", notion.PropertyValue{Type: "multi_select", MultiSelect: []notion.SelectValue{{Name: "x"}, {Name: "y"}}}, "x, y"},
		{"relation join", notion.PropertyValue{Type: "relation", Relation: []notion.RelationValue{{ID: "a"}, {ID: "b"}}}, "a,b"},
		{"empty select", notion.PropertyValue{Type: "select"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValueToCell(&tt.pv); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertRoundTrip(t *testing.T) {
	// A snapshot cell pushed to the remote and flattened back must
	// reproduce itself for writable types.
	tests := []struct {
		cell string
		typ  models.PropertyType
	}{
		{"Hello", models.PropertyTypeTitle},
		{"42.5", models.PropertyTypeNumber},
		{"opt-a", models.PropertyTypeSelect},
		{"a, b", models.PropertyTypeMultiSelect},
		{"2026-01-01 → 2026-01-05", models.PropertyTypeDate},
	}
	for _, tt := range tests {
		pv := CellToValue(tt.cell, tt.typ)
		if pv == nil {
			t.Fatalf("%s: nil value", tt.typ)
		}
		pv.Type = string(tt.typ)
		if got := ValueToCell(pv); got != tt.cell {
			t.Errorf("%s: round trip %q -> %q", tt.typ, tt.cell, got)
		}
	}
}

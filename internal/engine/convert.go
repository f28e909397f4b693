// Converts between flat snapshot cells and native property values.

package engine

import (
	"strconv"
	"strings"

	"github.com/vibevesselio/snapsync/internal/models"
	"github.com/vibevesselio/snapsync/internal/notion"
)

// truthy is the token set accepted as true for checkbox cells.
var truthy = map[string]bool{
	"true": true, "yes": true, "1": true, "y": true, "x": true, "checked": true,
}

// rangeDelims are accepted date-range delimiters, canonical first.
var rangeDelims = []string{" → ", " - ", ".."}

// CellToValue converts a flat cell string into the native value shape
// for the given property type. An empty cell yields a type-appropriate
// empty value (clearing the remote property); an unparsable cell for a
// typed column is treated the same way rather than failing the row.
// System-authored types return nil: they cannot be written.
func CellToValue(cell string, typ models.PropertyType) *notion.PropertyValue {
	cell = strings.TrimSpace(cell)
	switch typ {
	case models.PropertyTypeTitle:
		return &notion.PropertyValue{Title: notion.TextValue(cell)}
	case models.PropertyTypeText:
		return &notion.PropertyValue{RichText: notion.TextValue(cell)}
	case models.PropertyTypeNumber:
		v := &notion.PropertyValue{}
		if cell != "" {
			if n, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64); err == nil {
				v.Number = &n
			}
		}
		return v
	case models.PropertyTypeCheckbox:
		b := truthy[strings.ToLower(cell)]
		return &notion.PropertyValue{Checkbox: &b}
	case models.PropertyTypeDate:
		if cell == "" {
			return &notion.PropertyValue{}
		}
		start, end := splitDateRange(cell)
		dv := &notion.DateValue{Start: start}
		if end != "" {
			dv.End = &end
		}
		return &notion.PropertyValue{Date: dv}
	case models.PropertyTypeSelect:
		if cell == "" {
			return &notion.PropertyValue{}
		}
		return &notion.PropertyValue{Select: &notion.SelectValue{Name: cell}}
	case models.PropertyTypeStatus:
		if cell == "" {
			return &notion.PropertyValue{}
		}
		return &notion.PropertyValue{Status: &notion.SelectValue{Name: cell}}
	case models.PropertyTypeMultiSelect:
		v := &notion.PropertyValue{MultiSelect: []notion.SelectValue{}}
		for _, part := range strings.Split(cell, ",") {
			if name := strings.TrimSpace(part); name != "" {
				v.MultiSelect = append(v.MultiSelect, notion.SelectValue{Name: name})
			}
		}
		return v
	case models.PropertyTypeURL:
		return &notion.PropertyValue{URL: optString(cell)}
	case models.PropertyTypeEmail:
		return &notion.PropertyValue{Email: optString(cell)}
	case models.PropertyTypePhone:
		return &notion.PropertyValue{PhoneNumber: optString(cell)}
	case models.PropertyTypeRelation:
		v := &notion.PropertyValue{Relation: []notion.RelationValue{}}
		for _, part := range strings.Split(cell, ",") {
			if id := strings.TrimSpace(part); id != "" {
				v.Relation = append(v.Relation, notion.RelationValue{ID: id})
			}
		}
		return v
	case models.PropertyTypePeople:
		v := &notion.PropertyValue{People: []notion.Person{}}
		for _, part := range strings.Split(cell, ",") {
			if id := strings.TrimSpace(part); id != "" {
				v.People = append(v.People, notion.Person{ID: id})
			}
		}
		return v
	default:
		// formula, rollup, created/edited stamps, unique_id: read-only.
		return nil
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func splitDateRange(cell string) (start, end string) {
	for _, delim := range rangeDelims {
		if i := strings.Index(cell, delim); i > 0 {
			return strings.TrimSpace(cell[:i]), strings.TrimSpace(cell[i+len(delim):])
		}
	}
	return cell, ""
}

// ValueToCell flattens a native property value into a snapshot cell
// string. The inverse of CellToValue for writable types; computed and
// system-authored values flatten to their resolved scalar.
func ValueToCell(pv *notion.PropertyValue) string {
	if pv == nil {
		return ""
	}
	switch pv.Type {
	case "title":
		return plainText(pv.Title)
	case "rich_text":
		return plainText(pv.RichText)
	case "number":
		if pv.Number != nil {
			return formatNumber(*pv.Number)
		}
	case "checkbox":
		if pv.Checkbox != nil && *pv.Checkbox {
			return "true"
		}
		return "false"
	case "select":
		if pv.Select != nil {
			return pv.Select.Name
		}
	case "status":
		if pv.Status != nil {
			return pv.Status.Name
		}
	case "multi_select":
		names := make([]string, 0, len(pv.MultiSelect))
		for i := range pv.MultiSelect {
			names = append(names, pv.MultiSelect[i].Name)
		}
		return strings.Join(names, ", ")
	case "date":
		if pv.Date != nil {
			if pv.Date.End != nil && *pv.Date.End != "" {
				return pv.Date.Start + " → " + *pv.Date.End
			}
			return pv.Date.Start
		}
	case "url":
		if pv.URL != nil {
			return *pv.URL
		}
	case "email":
		if pv.Email != nil {
			return *pv.Email
		}
	case "phone_number":
		if pv.PhoneNumber != nil {
			return *pv.PhoneNumber
		}
	case "relation":
		ids := make([]string, 0, len(pv.Relation))
		for i := range pv.Relation {
			ids = append(ids, pv.Relation[i].ID)
		}
		return strings.Join(ids, ",")
	case "people":
		names := make([]string, 0, len(pv.People))
		for i := range pv.People {
			if pv.People[i].Name != "" {
				names = append(names, pv.People[i].Name)
			} else {
				names = append(names, pv.People[i].ID)
			}
		}
		return strings.Join(names, ", ")
	case "files":
		urls := make([]string, 0, len(pv.Files))
		for i := range pv.Files {
			f := &pv.Files[i]
			if f.File != nil {
				urls = append(urls, f.File.URL)
			} else if f.External != nil {
				urls = append(urls, f.External.URL)
			}
		}
		return strings.Join(urls, ", ")
	case "formula":
		if pv.Formula != nil {
			return formulaToCell(pv.Formula)
		}
	case "rollup":
		if pv.Rollup != nil {
			return rollupToCell(pv.Rollup)
		}
	case "created_time":
		if pv.CreatedTime != nil {
			return pv.CreatedTime.UTC().Format(TimestampLayout)
		}
	case "last_edited_time":
		if pv.LastEditedTime != nil {
			return pv.LastEditedTime.UTC().Format(TimestampLayout)
		}
	case "created_by":
		if pv.CreatedBy != nil {
			return pv.CreatedBy.Name
		}
	case "last_edited_by":
		if pv.LastEditedBy != nil {
			return pv.LastEditedBy.Name
		}
	case "unique_id":
		if pv.UniqueID != nil {
			if pv.UniqueID.Prefix != nil {
				return *pv.UniqueID.Prefix + "-" + strconv.Itoa(pv.UniqueID.Number)
			}
			return strconv.Itoa(pv.UniqueID.Number)
		}
	}
	return ""
}

func formulaToCell(f *notion.FormulaValue) string {
	switch f.Type {
	case "string":
		if f.String != nil {
			return *f.String
		}
	case "number":
		if f.Number != nil {
			return formatNumber(*f.Number)
		}
	case "boolean":
		if f.Boolean != nil {
			return strconv.FormatBool(*f.Boolean)
		}
	case "date":
		if f.Date != nil {
			return f.Date.Start
		}
	}
	return ""
}

func rollupToCell(r *notion.RollupValue) string {
	switch r.Type {
	case "number":
		if r.Number != nil {
			return formatNumber(*r.Number)
		}
	case "date":
		if r.Date != nil {
			return r.Date.Start
		}
	case "array":
		parts := make([]string, 0, len(r.Array))
		for i := range r.Array {
			if s := ValueToCell(&r.Array[i]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func plainText(rt []notion.RichText) string {
	var b strings.Builder
	for i := range rt {
		if rt[i].PlainText != "" {
			b.WriteString(rt[i].PlainText)
		} else if rt[i].Text != nil {
			b.WriteString(rt[i].Text.Content)
		}
	}
	return b.String()
}

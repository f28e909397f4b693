// Package models defines the property model shared by the sync engine.
package models

// PropertyType represents the type of a collection property.
type PropertyType string

const (
	// Primitive types

	// PropertyTypeTitle stores the page title. Exactly one per collection.
	PropertyTypeTitle PropertyType = "title"
	// PropertyTypeText stores plain text values.
	PropertyTypeText PropertyType = "rich_text"
	// PropertyTypeNumber stores numeric values (integer or float).
	PropertyTypeNumber PropertyType = "number"
	// PropertyTypeCheckbox stores boolean values.
	PropertyTypeCheckbox PropertyType = "checkbox"
	// PropertyTypeDate stores a start date with an optional end date.
	PropertyTypeDate PropertyType = "date"

	// Enumerated types (with predefined options)

	// PropertyTypeSelect stores a single selection from predefined options.
	PropertyTypeSelect PropertyType = "select"
	// PropertyTypeMultiSelect stores multiple selections from predefined options.
	PropertyTypeMultiSelect PropertyType = "multi_select"
	// PropertyTypeStatus stores a workflow status from predefined options.
	PropertyTypeStatus PropertyType = "status"

	// Validated text types

	// PropertyTypeURL stores URLs with validation.
	PropertyTypeURL PropertyType = "url"
	// PropertyTypeEmail stores email addresses with validation.
	PropertyTypeEmail PropertyType = "email"
	// PropertyTypePhone stores phone numbers with validation.
	PropertyTypePhone PropertyType = "phone_number"

	// Reference and computed types (read-only or structurally owned by the
	// remote service; the engine never creates or deletes these)

	// PropertyTypeRelation references pages in another collection.
	PropertyTypeRelation PropertyType = "relation"
	// PropertyTypeFormula is computed remotely from an expression.
	PropertyTypeFormula PropertyType = "formula"
	// PropertyTypeRollup aggregates values across a relation.
	PropertyTypeRollup PropertyType = "rollup"
	// PropertyTypePeople stores user references.
	PropertyTypePeople PropertyType = "people"
	// PropertyTypeFiles stores file attachments.
	PropertyTypeFiles PropertyType = "files"

	// System-authored types

	// PropertyTypeCreatedTime is stamped by the remote service on creation.
	PropertyTypeCreatedTime PropertyType = "created_time"
	// PropertyTypeCreatedBy records the creating actor.
	PropertyTypeCreatedBy PropertyType = "created_by"
	// PropertyTypeLastEditedTime is stamped by the remote service on edit.
	PropertyTypeLastEditedTime PropertyType = "last_edited_time"
	// PropertyTypeLastEditedBy records the last editing actor.
	PropertyTypeLastEditedBy PropertyType = "last_edited_by"
	// PropertyTypeUniqueID is a remote-assigned monotonic sequence id.
	PropertyTypeUniqueID PropertyType = "unique_id"
)

// Protected reports whether properties of this type must never be deleted
// by schema reconciliation. Covers the title, every reference/computed
// type, and every system-authored type.
func (t PropertyType) Protected() bool {
	switch t {
	case PropertyTypeTitle, PropertyTypeRelation, PropertyTypeFormula,
		PropertyTypeRollup, PropertyTypePeople, PropertyTypeFiles,
		PropertyTypeCreatedTime, PropertyTypeCreatedBy,
		PropertyTypeLastEditedTime, PropertyTypeLastEditedBy,
		PropertyTypeUniqueID, PropertyTypeStatus:
		return true
	}
	return false
}

// SystemAuthored reports whether values of this type are written only by
// the remote service and are read-only to the engine.
func (t PropertyType) SystemAuthored() bool {
	switch t {
	case PropertyTypeCreatedTime, PropertyTypeCreatedBy,
		PropertyTypeLastEditedTime, PropertyTypeLastEditedBy,
		PropertyTypeFormula, PropertyTypeRollup, PropertyTypeUniqueID:
		return true
	}
	return false
}

// ParseType maps a snapshot type-row token to a PropertyType. Tokens are
// the wire type names; a few human-friendly aliases from hand-edited
// snapshots are accepted. Unknown tokens fall back to rich_text.
func ParseType(s string) PropertyType {
	switch s {
	case "title":
		return PropertyTypeTitle
	case "rich_text", "text":
		return PropertyTypeText
	case "number":
		return PropertyTypeNumber
	case "checkbox", "boolean":
		return PropertyTypeCheckbox
	case "date":
		return PropertyTypeDate
	case "select":
		return PropertyTypeSelect
	case "multi_select":
		return PropertyTypeMultiSelect
	case "status":
		return PropertyTypeStatus
	case "url":
		return PropertyTypeURL
	case "email":
		return PropertyTypeEmail
	case "phone_number", "phone":
		return PropertyTypePhone
	case "relation":
		return PropertyTypeRelation
	case "formula":
		return PropertyTypeFormula
	case "rollup":
		return PropertyTypeRollup
	case "people":
		return PropertyTypePeople
	case "files":
		return PropertyTypeFiles
	case "created_time":
		return PropertyTypeCreatedTime
	case "created_by":
		return PropertyTypeCreatedBy
	case "last_edited_time":
		return PropertyTypeLastEditedTime
	case "last_edited_by":
		return PropertyTypeLastEditedBy
	case "unique_id":
		return PropertyTypeUniqueID
	default:
		return PropertyTypeText
	}
}

// SelectOption represents an option for select/multi_select/status properties.
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Property represents a collection property (column) with its configuration.
type Property struct {
	Name string       `json:"name"`
	Type PropertyType `json:"type"`

	// Options contains the allowed values for select, multi_select and
	// status properties.
	Options []SelectOption `json:"options,omitempty"`
}

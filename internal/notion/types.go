// Defines remote collection API request and response types.

package notion

import (
	"time"
)

// PaginatedResponse is the common structure for paginated API responses.
type PaginatedResponse[T any] struct {
	Object     string  `json:"object"`
	Results    []T     `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// SearchResponse is the response from the search endpoint.
type SearchResponse = PaginatedResponse[Database]

// QueryResponse is the response from the collection query endpoint.
type QueryResponse = PaginatedResponse[Page]

// Parent represents the parent of a page or collection.
type Parent struct {
	Type       string `json:"type"` // "database_id", "page_id", "workspace"
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
	Workspace  bool   `json:"workspace,omitempty"`
}

// Database represents a remote collection and its live schema.
type Database struct {
	Object         string                `json:"object"`
	ID             string                `json:"id"`
	CreatedTime    time.Time             `json:"created_time"`
	LastEditedTime time.Time             `json:"last_edited_time"`
	Title          []RichText            `json:"title"`
	Properties     map[string]DBProperty `json:"properties"`
	Parent         Parent                `json:"parent"`
	URL            string                `json:"url"`
	Archived       bool                  `json:"archived"`
}

// PlainTitle returns the collection title as plain text.
func (d *Database) PlainTitle() string {
	return richTextToPlain(d.Title)
}

// DBProperty represents a property definition in a collection schema.
type DBProperty struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`

	// Type-specific configuration. Exactly one is set, matching Type.
	Title          *struct{}       `json:"title,omitempty"`
	RichText       *struct{}       `json:"rich_text,omitempty"`
	Number         *NumberConfig   `json:"number,omitempty"`
	Select         *SelectConfig   `json:"select,omitempty"`
	MultiSelect    *SelectConfig   `json:"multi_select,omitempty"`
	Status         *SelectConfig   `json:"status,omitempty"`
	Date           *struct{}       `json:"date,omitempty"`
	Checkbox       *struct{}       `json:"checkbox,omitempty"`
	URL            *struct{}       `json:"url,omitempty"`
	Email          *struct{}       `json:"email,omitempty"`
	PhoneNumber    *struct{}       `json:"phone_number,omitempty"`
	Formula        *FormulaConfig  `json:"formula,omitempty"`
	Relation       *RelationConfig `json:"relation,omitempty"`
	Rollup         *RollupConfig   `json:"rollup,omitempty"`
	People         *struct{}       `json:"people,omitempty"`
	Files          *struct{}       `json:"files,omitempty"`
	CreatedTime    *struct{}       `json:"created_time,omitempty"`
	CreatedBy      *struct{}       `json:"created_by,omitempty"`
	LastEditedTime *struct{}       `json:"last_edited_time,omitempty"`
	LastEditedBy   *struct{}       `json:"last_edited_by,omitempty"`
	UniqueID       *struct{}       `json:"unique_id,omitempty"`
}

// NumberConfig defines number property configuration.
type NumberConfig struct {
	Format string `json:"format,omitempty"` // number, percent, dollar, ...
}

// SelectConfig defines select/multi_select/status property configuration.
type SelectConfig struct {
	Options []SelectOption `json:"options"`
}

// SelectOption represents a select option.
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// FormulaConfig defines formula property configuration.
type FormulaConfig struct {
	Expression string `json:"expression"`
}

// RelationConfig defines relation property configuration.
type RelationConfig struct {
	DatabaseID     string    `json:"database_id"`
	Type           string    `json:"type,omitempty"` // "single_property" or "dual_property"
	SingleProperty *struct{} `json:"single_property,omitempty"`
}

// RollupConfig defines rollup property configuration.
type RollupConfig struct {
	RelationPropertyName string `json:"relation_property_name"`
	RollupPropertyName   string `json:"rollup_property_name"`
	Function             string `json:"function"` // count, sum, average, ...
}

// SchemaPatch is the request body for updating a collection schema.
// A nil entry in Properties removes that property; a non-nil entry
// creates or reconfigures it.
type SchemaPatch struct {
	Properties map[string]*DBProperty `json:"properties"`
}

// Page represents a remote page (one row of a collection).
type Page struct {
	Object         string                   `json:"object"`
	ID             string                   `json:"id"`
	CreatedTime    time.Time                `json:"created_time"`
	LastEditedTime time.Time                `json:"last_edited_time"`
	Parent         Parent                   `json:"parent"`
	Archived       bool                     `json:"archived"`
	InTrash        bool                     `json:"in_trash"`
	Properties     map[string]PropertyValue `json:"properties"`
	URL            string                   `json:"url,omitempty"`
}

// PropertyValue represents a property value on a page. On reads every
// field mirrors the wire shape keyed by Type; on writes only the field
// matching the target property's type is populated and Type is left empty.
type PropertyValue struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`

	Title          []RichText      `json:"title,omitempty"`
	RichText       []RichText      `json:"rich_text,omitempty"`
	Number         *float64        `json:"number,omitempty"`
	Select         *SelectValue    `json:"select,omitempty"`
	MultiSelect    []SelectValue   `json:"multi_select,omitempty"`
	Status         *SelectValue    `json:"status,omitempty"`
	Date           *DateValue      `json:"date,omitempty"`
	Checkbox       *bool           `json:"checkbox,omitempty"`
	URL            *string         `json:"url,omitempty"`
	Email          *string         `json:"email,omitempty"`
	PhoneNumber    *string         `json:"phone_number,omitempty"`
	Formula        *FormulaValue   `json:"formula,omitempty"`
	Relation       []RelationValue `json:"relation,omitempty"`
	Rollup         *RollupValue    `json:"rollup,omitempty"`
	People         []Person        `json:"people,omitempty"`
	Files          []FileValue     `json:"files,omitempty"`
	CreatedTime    *time.Time      `json:"created_time,omitempty"`
	CreatedBy      *Person         `json:"created_by,omitempty"`
	LastEditedTime *time.Time      `json:"last_edited_time,omitempty"`
	LastEditedBy   *Person         `json:"last_edited_by,omitempty"`
	UniqueID       *UniqueIDValue  `json:"unique_id,omitempty"`
}

// RichText represents formatted text content. Only plain text round-trips
// through the engine; annotations are preserved opaquely on reads.
type RichText struct {
	Type      string       `json:"type,omitempty"` // "text", "mention", "equation"
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
	Href      *string      `json:"href,omitempty"`
}

// TextContent represents plain text content.
type TextContent struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Link represents a hyperlink.
type Link struct {
	URL string `json:"url"`
}

// TextValue builds a writable rich text value from a plain string.
func TextValue(s string) []RichText {
	if s == "" {
		return nil
	}
	return []RichText{{Type: "text", Text: &TextContent{Content: s}, PlainText: s}}
}

// SelectValue represents a select/status property value.
type SelectValue struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// DateValue represents a date property value.
type DateValue struct {
	Start    string  `json:"start"`
	End      *string `json:"end,omitempty"`
	TimeZone *string `json:"time_zone,omitempty"`
}

// FormulaValue represents a formula result.
type FormulaValue struct {
	Type    string     `json:"type"` // "string", "number", "boolean", "date"
	String  *string    `json:"string,omitempty"`
	Number  *float64   `json:"number,omitempty"`
	Boolean *bool      `json:"boolean,omitempty"`
	Date    *DateValue `json:"date,omitempty"`
}

// RelationValue represents a relation to another page.
type RelationValue struct {
	ID string `json:"id"`
}

// RollupValue represents a rollup result.
type RollupValue struct {
	Type     string          `json:"type"` // "number", "date", "array"
	Number   *float64        `json:"number,omitempty"`
	Date     *DateValue      `json:"date,omitempty"`
	Array    []PropertyValue `json:"array,omitempty"`
	Function string          `json:"function,omitempty"`
}

// Person represents a remote user.
type Person struct {
	Object string `json:"object,omitempty"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
}

// FileValue represents a file property value.
type FileValue struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "file" or "external"
	File     *File  `json:"file,omitempty"`
	External *File  `json:"external,omitempty"`
}

// File represents a file reference.
type File struct {
	URL        string     `json:"url"`
	ExpiryTime *time.Time `json:"expiry_time,omitempty"`
}

// UniqueIDValue represents a unique_id property value.
type UniqueIDValue struct {
	Prefix *string `json:"prefix,omitempty"`
	Number int     `json:"number"`
}

// CreatePageRequest is the request body for creating a page.
type CreatePageRequest struct {
	Parent     Parent                   `json:"parent"`
	Properties map[string]PropertyValue `json:"properties"`
}

// UpdatePageRequest is the request body for updating a page.
type UpdatePageRequest struct {
	Properties map[string]PropertyValue `json:"properties"`
	Archived   *bool                    `json:"archived,omitempty"`
}

// SearchFilter defines filters for the search endpoint.
type SearchFilter struct {
	Value    string `json:"value"`    // "page" or "database"
	Property string `json:"property"` // always "object"
}

// SearchRequest is the request body for the search endpoint.
type SearchRequest struct {
	Query       string        `json:"query,omitempty"`
	Filter      *SearchFilter `json:"filter,omitempty"`
	StartCursor string        `json:"start_cursor,omitempty"`
	PageSize    int           `json:"page_size,omitempty"`
}

// Error represents a remote API error response.
type Error struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// RetryAfter is the server-provided wait hint on rate limiting,
	// taken from the Retry-After header. Zero when absent.
	RetryAfter time.Duration `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// IsRateLimited reports whether the error is a 429 response.
func (e *Error) IsRateLimited() bool {
	return e.Status == 429
}

// IsServerError reports whether the error is a 5xx response.
func (e *Error) IsServerError() bool {
	return e.Status >= 500
}

// IsTerminal reports whether the error is a client error that will not
// succeed on retry (permission, not-found, validation).
func (e *Error) IsTerminal() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != 429
}

// richTextToPlain converts rich text to plain text.
func richTextToPlain(rt []RichText) string {
	s := ""
	for i := range rt {
		if rt[i].PlainText != "" {
			s += rt[i].PlainText
		} else if rt[i].Text != nil {
			s += rt[i].Text.Content
		}
	}
	return s
}

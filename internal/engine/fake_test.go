package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vibevesselio/snapsync/internal/notion"
)

// fakeRemote is an in-process Remote for engine tests.
type fakeRemote struct {
	dbs   map[string]*notion.Database
	pages map[string]*notion.Page

	// patches records every schema patch applied, in order.
	patches []notion.SchemaPatch
	// failCreate makes CreatePage fail.
	failCreate bool

	createCalls int
	updateCalls int
}

func newFakeRemote(dbs ...*notion.Database) *fakeRemote {
	f := &fakeRemote{
		dbs:   map[string]*notion.Database{},
		pages: map[string]*notion.Page{},
	}
	for _, db := range dbs {
		f.dbs[db.ID] = db
	}
	return f
}

func (f *fakeRemote) addPage(dbID string, props map[string]notion.PropertyValue, edited time.Time) *notion.Page {
	p := &notion.Page{
		ID:             uuid.NewString(),
		Parent:         notion.Parent{Type: "database_id", DatabaseID: dbID},
		Properties:     props,
		LastEditedTime: edited,
	}
	f.pages[p.ID] = p
	return p
}

func (f *fakeRemote) GetDatabase(_ context.Context, id string) (*notion.Database, error) {
	db, ok := f.dbs[id]
	if !ok {
		return nil, &notion.Error{Status: 404, Code: "object_not_found"}
	}
	return db, nil
}

func (f *fakeRemote) UpdateDatabase(_ context.Context, id string, patch *notion.SchemaPatch) (*notion.Database, error) {
	db, ok := f.dbs[id]
	if !ok {
		return nil, &notion.Error{Status: 404, Code: "object_not_found"}
	}
	f.patches = append(f.patches, *patch)
	for name, prop := range patch.Properties {
		if prop == nil {
			delete(db.Properties, name)
			continue
		}
		applied := *prop
		if applied.Type == "" {
			switch {
			case applied.Title != nil:
				applied.Type = "title"
			case applied.RichText != nil:
				applied.Type = "rich_text"
			case applied.Number != nil:
				applied.Type = "number"
			case applied.Checkbox != nil:
				applied.Type = "checkbox"
			case applied.Date != nil:
				applied.Type = "date"
			case applied.Select != nil:
				applied.Type = "select"
			case applied.MultiSelect != nil:
				applied.Type = "multi_select"
			case applied.URL != nil:
				applied.Type = "url"
			case applied.Email != nil:
				applied.Type = "email"
			case applied.PhoneNumber != nil:
				applied.Type = "phone_number"
			}
		}
		db.Properties[name] = applied
	}
	return db, nil
}

func (f *fakeRemote) QueryDatabaseAll(_ context.Context, databaseID string, _ *notion.QueryOptions, _ int) ([]notion.Page, error) {
	var out []notion.Page
	for _, p := range f.pages {
		if p.Parent.DatabaseID == databaseID && !p.Archived && !p.InTrash {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRemote) GetPage(_ context.Context, id string) (*notion.Page, error) {
	p, ok := f.pages[id]
	if !ok {
		return nil, &notion.Error{Status: 404, Code: "object_not_found"}
	}
	return p, nil
}

func (f *fakeRemote) CreatePage(_ context.Context, req *notion.CreatePageRequest) (*notion.Page, error) {
	f.createCalls++
	if f.failCreate {
		return nil, fmt.Errorf("create refused")
	}
	p := &notion.Page{
		ID:         uuid.NewString(),
		Parent:     req.Parent,
		Properties: req.Properties,
	}
	f.pages[p.ID] = p
	return p, nil
}

func (f *fakeRemote) UpdatePage(_ context.Context, id string, req *notion.UpdatePageRequest) (*notion.Page, error) {
	f.updateCalls++
	p, ok := f.pages[id]
	if !ok {
		return nil, &notion.Error{Status: 404, Code: "object_not_found"}
	}
	for name, pv := range req.Properties {
		if p.Properties == nil {
			p.Properties = map[string]notion.PropertyValue{}
		}
		p.Properties[name] = pv
	}
	return p, nil
}

func (f *fakeRemote) SearchDatabases(context.Context, string) ([]notion.Database, error) {
	var out []notion.Database
	for _, db := range f.dbs {
		out = append(out, *db)
	}
	return out, nil
}

func testDatabase(id, title string, props map[string]notion.DBProperty) *notion.Database {
	return &notion.Database{
		ID:         id,
		Title:      []notion.RichText{{Type: "text", PlainText: title}},
		Properties: props,
	}
}

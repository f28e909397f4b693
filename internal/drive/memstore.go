// In-memory Store implementation backing engine tests.

package drive

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory [Store]. It is safe for concurrent use and
// mimics the storage service's semantics: duplicate names are allowed
// within a parent, trash hides files from listings, moves rewrite the
// parent list.
type MemStore struct {
	mu    sync.Mutex
	files map[string]*memFile
	now   func() time.Time
}

type memFile struct {
	meta    File
	content []byte
}

// NewMemStore creates an empty in-memory store with a "root" folder.
func NewMemStore() *MemStore {
	s := &MemStore{
		files: make(map[string]*memFile),
		now:   time.Now,
	}
	s.files["root"] = &memFile{meta: File{ID: "root", Name: "root", MimeType: MimeFolder, ModifiedTime: s.now()}}
	return s
}

// SetClock overrides the timestamp source. Used by tests that need
// deterministic modified times.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

var _ Store = (*MemStore)(nil)

// CreateFolder implements Store.
func (s *MemStore) CreateFolder(_ context.Context, parentID, name string) (*File, error) {
	return s.create(parentID, name, MimeFolder, nil)
}

// CreateFile implements Store.
func (s *MemStore) CreateFile(_ context.Context, parentID, name, mimeType string, content []byte) (*File, error) {
	return s.create(parentID, name, mimeType, content)
}

func (s *MemStore) create(parentID, name, mimeType string, content []byte) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[parentID]; !ok {
		return nil, fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
	}
	f := &memFile{
		meta: File{
			ID:           uuid.NewString(),
			Name:         name,
			MimeType:     mimeType,
			Parents:      []string{parentID},
			ModifiedTime: s.now(),
			Size:         int64(len(content)),
		},
		content: slices.Clone(content),
	}
	s.files[f.meta.ID] = f
	meta := f.meta
	return &meta, nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, id string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	meta := f.meta
	return &meta, nil
}

// ListChildren implements Store.
func (s *MemStore) ListChildren(_ context.Context, parentID string) ([]*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[parentID]; !ok {
		return nil, fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
	}
	var out []*File
	for _, f := range s.files {
		if f.meta.Trashed {
			continue
		}
		if slices.Contains(f.meta.Parents, parentID) {
			meta := f.meta
			out = append(out, &meta)
		}
	}
	return out, nil
}

// Rename implements Store.
func (s *MemStore) Rename(_ context.Context, id, name string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	f.meta.Name = name
	f.meta.ModifiedTime = s.now()
	meta := f.meta
	return &meta, nil
}

// Move implements Store.
func (s *MemStore) Move(_ context.Context, id, oldParentID, newParentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	if _, ok := s.files[newParentID]; !ok {
		return fmt.Errorf("parent %s: %w", newParentID, ErrNotFound)
	}
	parents := slices.DeleteFunc(slices.Clone(f.meta.Parents), func(p string) bool { return p == oldParentID })
	if !slices.Contains(parents, newParentID) {
		parents = append(parents, newParentID)
	}
	f.meta.Parents = parents
	f.meta.ModifiedTime = s.now()
	return nil
}

// Trash implements Store.
func (s *MemStore) Trash(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	f.meta.Trashed = true
	f.meta.ModifiedTime = s.now()
	return nil
}

// ReadContent implements Store.
func (s *MemStore) ReadContent(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(f.content), nil
}

// WriteContent implements Store.
func (s *MemStore) WriteContent(_ context.Context, id string, content []byte) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	f.content = slices.Clone(content)
	f.meta.Size = int64(len(content))
	f.meta.ModifiedTime = s.now()
	meta := f.meta
	return &meta, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"authrator/internal/model"
)

// LocalStore keeps every collection in one pretty-printed JSON document.
// It is used when no user is logged in.
type LocalStore struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewLocalStore creates a LocalStore backed by the file at path on fs.
func NewLocalStore(fs afero.Fs, path string, logger *slog.Logger) *LocalStore {
	return &LocalStore{
		fs:     fs,
		path:   path,
		logger: logger.With("component", "local_store"),
	}
}

// read loads the document. A missing or corrupt file reads as empty.
func (s *LocalStore) read() []model.Collection {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading collections", "path", s.path, "err", err)
		}
		return []model.Collection{}
	}

	var collections []model.Collection
	if err := json.Unmarshal(b, &collections); err != nil {
		s.logger.Warn("collections file is corrupt, starting empty", "path", s.path, "err", err)
		return []model.Collection{}
	}
	for i := range collections {
		if collections[i].APIs == nil {
			collections[i].APIs = []model.API{}
		}
	}
	return collections
}

// write replaces the document atomically.
func (s *LocalStore) write(collections []model.Collection) error {
	b, err := json.MarshalIndent(collections, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collections: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o600); err != nil {
		return fmt.Errorf("write collections: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace collections: %w", err)
	}
	return nil
}

// ListCollections returns every collection.
func (s *LocalStore) ListCollections(_ context.Context) ([]model.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(), nil
}

// CreateCollection appends an empty collection.
func (s *LocalStore) CreateCollection(_ context.Context, name, color string) (model.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collections := s.read()
	c := model.Collection{
		ID:    "local-" + uuid.NewString(),
		Name:  name,
		Color: color,
		APIs:  []model.API{},
	}
	collections = append(collections, c)
	if err := s.write(collections); err != nil {
		return model.Collection{}, err
	}
	return c, nil
}

// RenameCollection renames the collection. An empty name keeps the current
// one; an empty color keeps the current color. Unknown ids are ignored.
func (s *LocalStore) RenameCollection(_ context.Context, id, name, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collections := s.read()
	c := findCollection(collections, id)
	if c == nil {
		return nil
	}
	if name != "" {
		c.Name = name
	}
	if color != "" {
		c.Color = color
	}
	return s.write(collections)
}

// DeleteCollection removes the collection and every request in it.
func (s *LocalStore) DeleteCollection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collections := s.read()
	kept := collections[:0]
	for _, c := range collections {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	return s.write(kept)
}

// CreateAPI appends a new request to the collection.
func (s *LocalStore) CreateAPI(_ context.Context, collectionID, name string, method model.Method, url string) (model.API, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collections := s.read()
	c := findCollection(collections, collectionID)
	if c == nil {
		return model.API{}, fmt.Errorf("create api in %q: %w", collectionID, ErrCollectionNotFound)
	}

	api := model.API{
		ID:     "local-api-" + uuid.NewString(),
		Name:   name,
		Method: method.Normalize(),
		URL:    url,
		Body:   model.Body{Kind: model.BodyNone},
		Auth:   model.Auth{Type: model.AuthNone},
	}
	c.APIs = append(c.APIs, api)
	if err := s.write(collections); err != nil {
		return model.API{}, err
	}
	return api, nil
}

// GetAPI returns the saved request with id.
func (s *LocalStore) GetAPI(_ context.Context, id string) (model.API, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collections := s.read()
	if _, api := findAPI(collections, id); api != nil {
		return *api, nil
	}
	return model.API{}, fmt.Errorf("get api %q: %w", id, ErrAPINotFound)
}

// UpdateAPI merges api into the saved request with the same id. An empty
// name or method keeps the stored value, as do nil header and query slices
// and an unset body or auth. The URL is always replaced. Unknown ids are
// ignored and nothing is written.
func (s *LocalStore) UpdateAPI(_ context.Context, api model.API) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collections := s.read()
	_, existing := findAPI(collections, api.ID)
	if existing == nil {
		return nil
	}
	mergeAPI(existing, api)
	return s.write(collections)
}

func mergeAPI(dst *model.API, src model.API) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Method != "" {
		dst.Method = src.Method.Normalize()
	}
	dst.URL = src.URL
	if src.Headers != nil {
		dst.Headers = src.Headers
	}
	if src.QueryParams != nil {
		dst.QueryParams = src.QueryParams
	}
	if !src.Body.IsZero() {
		dst.Body = src.Body.Canonical()
	}
	if !src.Auth.IsZero() {
		dst.Auth = src.Auth
	}
	dst.CollectionID = ""
}

// DeleteAPI removes the request. The file is only rewritten when the id
// was found.
func (s *LocalStore) DeleteAPI(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collections := s.read()
	changed := false
	for i := range collections {
		apis := collections[i].APIs[:0]
		for _, a := range collections[i].APIs {
			if a.ID == id {
				changed = true
				continue
			}
			apis = append(apis, a)
		}
		collections[i].APIs = apis
	}
	if !changed {
		return nil
	}
	return s.write(collections)
}

// MoveAPI moves the request to the end of the target collection. Unknown
// request or target ids leave the store untouched.
func (s *LocalStore) MoveAPI(_ context.Context, id, targetCollectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collections := s.read()
	target := findCollection(collections, targetCollectionID)
	source, api := findAPI(collections, id)
	if target == nil || api == nil {
		return nil
	}

	moved := *api
	for i, a := range source.APIs {
		if a.ID == id {
			source.APIs = append(source.APIs[:i], source.APIs[i+1:]...)
			break
		}
	}
	target.APIs = append(target.APIs, moved)
	return s.write(collections)
}

func findCollection(collections []model.Collection, id string) *model.Collection {
	for i := range collections {
		if collections[i].ID == id {
			return &collections[i]
		}
	}
	return nil
}

func findAPI(collections []model.Collection, id string) (*model.Collection, *model.API) {
	for i := range collections {
		for j := range collections[i].APIs {
			if collections[i].APIs[j].ID == id {
				return &collections[i], &collections[i].APIs[j]
			}
		}
	}
	return nil, nil
}

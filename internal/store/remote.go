package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"authrator/internal/model"
)

// Backend performs JSON calls against URI templates relative to the
// backend base URL.
type Backend interface {
	Do(ctx context.Context, method, template string, vars map[string]any, in, out any) error
}

// RemoteStore keeps collections on the backend, scoped to the logged-in user.
type RemoteStore struct {
	backend Backend
	userID  func() string
	logger  *slog.Logger
}

// NewRemoteStore creates a RemoteStore. userID is consulted on every list
// and create so a login or logout takes effect immediately.
func NewRemoteStore(b Backend, userID func() string, logger *slog.Logger) *RemoteStore {
	return &RemoteStore{
		backend: b,
		userID:  userID,
		logger:  logger.With("component", "remote_store"),
	}
}

type apiDTO struct {
	MongoID     string           `json:"_id,omitempty"`
	ID          string           `json:"id,omitempty"`
	Name        string           `json:"name"`
	Method      model.Method     `json:"method"`
	URL         string           `json:"url"`
	Headers     []model.KeyValue `json:"headers"`
	QueryParams []model.KeyValue `json:"queryParams"`
	Body        model.Body       `json:"body"`
	Auth        model.Auth       `json:"auth"`
}

func (d apiDTO) toModel() model.API {
	api := model.API{
		ID:          firstNonEmpty(d.MongoID, d.ID),
		Name:        d.Name,
		Method:      d.Method,
		URL:         d.URL,
		Headers:     d.Headers,
		QueryParams: d.QueryParams,
		Body:        d.Body,
		Auth:        d.Auth,
	}
	if api.Method == "" {
		api.Method = model.MethodGet
	}
	if api.Headers == nil {
		api.Headers = []model.KeyValue{}
	}
	if api.QueryParams == nil {
		api.QueryParams = []model.KeyValue{}
	}
	if api.Body.IsZero() {
		api.Body = model.Body{Kind: model.BodyNone}
	}
	if api.Auth.IsZero() {
		api.Auth = model.Auth{Type: model.AuthNone}
	}
	return api
}

type collectionDTO struct {
	MongoID string   `json:"_id,omitempty"`
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	Color   string   `json:"color"`
	APIs    []apiDTO `json:"apis"`
}

type envelope struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message,omitempty"`
	Collections []collectionDTO `json:"collections,omitempty"`
	Collection  *collectionDTO  `json:"collection,omitempty"`
	API         *apiDTO         `json:"api,omitempty"`
}

func (e *envelope) check(op string) error {
	if e.Success {
		return nil
	}
	if e.Message != "" {
		return fmt.Errorf("%s: %s: %w", op, e.Message, ErrRemote)
	}
	return fmt.Errorf("%s: %w", op, ErrRemote)
}

// ListCollections returns the user's collections with request summaries
// (id, name, method, url).
func (s *RemoteStore) ListCollections(ctx context.Context) ([]model.Collection, error) {
	var env envelope
	if err := s.backend.Do(ctx, http.MethodGet, "collections/{userId}", map[string]any{"userId": s.userID()}, nil, &env); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if err := env.check("list collections"); err != nil {
		return nil, err
	}

	out := make([]model.Collection, 0, len(env.Collections))
	for _, c := range env.Collections {
		col := model.Collection{
			ID:    firstNonEmpty(c.MongoID, c.ID),
			Name:  c.Name,
			Color: firstNonEmpty(c.Color, model.DefaultCollectionColor),
			APIs:  make([]model.API, 0, len(c.APIs)),
		}
		for _, a := range c.APIs {
			method := a.Method
			if method == "" {
				method = model.MethodGet
			}
			col.APIs = append(col.APIs, model.API{
				ID:     firstNonEmpty(a.MongoID, a.ID),
				Name:   a.Name,
				Method: method,
				URL:    a.URL,
			})
		}
		out = append(out, col)
	}
	return out, nil
}

// CreateCollection creates an empty collection owned by the user.
func (s *RemoteStore) CreateCollection(ctx context.Context, name, color string) (model.Collection, error) {
	in := map[string]string{"name": name, "color": color, "userId": s.userID()}
	var env envelope
	if err := s.backend.Do(ctx, http.MethodPost, "collections", nil, in, &env); err != nil {
		return model.Collection{}, fmt.Errorf("create collection: %w", err)
	}
	if err := env.check("create collection"); err != nil {
		return model.Collection{}, err
	}
	if env.Collection == nil {
		return model.Collection{}, fmt.Errorf("create collection: empty response: %w", ErrRemote)
	}
	return model.Collection{
		ID:    firstNonEmpty(env.Collection.MongoID, env.Collection.ID),
		Name:  env.Collection.Name,
		Color: env.Collection.Color,
		APIs:  []model.API{},
	}, nil
}

// RenameCollection sets a new name and color.
func (s *RemoteStore) RenameCollection(ctx context.Context, id, name, color string) error {
	in := map[string]string{"newName": name, "color": color}
	if err := s.backend.Do(ctx, http.MethodPut, "collections/{id}/rename", map[string]any{"id": id}, in, nil); err != nil {
		return fmt.Errorf("rename collection %q: %w", id, err)
	}
	return nil
}

// DeleteCollection removes the collection.
func (s *RemoteStore) DeleteCollection(ctx context.Context, id string) error {
	if err := s.backend.Do(ctx, http.MethodDelete, "collections/{id}", map[string]any{"id": id}, nil, nil); err != nil {
		return fmt.Errorf("delete collection %q: %w", id, err)
	}
	return nil
}

// CreateAPI creates the request and then fills in its details, since the
// backend's create call only takes the name and method.
func (s *RemoteStore) CreateAPI(ctx context.Context, collectionID, name string, method model.Method, url string) (model.API, error) {
	method = method.Normalize()
	in := map[string]any{"collectionId": collectionID, "name": name, "method": method}
	var env envelope
	if err := s.backend.Do(ctx, http.MethodPost, "apis", nil, in, &env); err != nil {
		return model.API{}, fmt.Errorf("create api: %w", err)
	}
	if err := env.check("create api"); err != nil {
		return model.API{}, err
	}
	if env.API == nil {
		return model.API{}, fmt.Errorf("create api: empty response: %w", ErrRemote)
	}
	id := firstNonEmpty(env.API.MongoID, env.API.ID)

	details := map[string]any{
		"url":         url,
		"headers":     []model.KeyValue{},
		"queryParams": []model.KeyValue{},
		"body":        map[string]string{"type": string(model.BodyNone), "content": ""},
		"auth":        model.Auth{Type: model.AuthNone},
		"scripts":     map[string]string{"preRequest": "", "tests": ""},
	}
	if err := s.backend.Do(ctx, http.MethodPut, "apis/{id}", map[string]any{"id": id}, details, nil); err != nil {
		return model.API{}, fmt.Errorf("initialize api %q: %w", id, err)
	}

	return model.API{
		ID:     id,
		Name:   name,
		Method: method,
		URL:    url,
	}, nil
}

// GetAPI loads the full request.
func (s *RemoteStore) GetAPI(ctx context.Context, id string) (model.API, error) {
	var env envelope
	if err := s.backend.Do(ctx, http.MethodGet, "apis/{id}", map[string]any{"id": id}, nil, &env); err != nil {
		return model.API{}, fmt.Errorf("get api %q: %w", id, err)
	}
	if !env.Success || env.API == nil {
		return model.API{}, fmt.Errorf("get api %q: %w", id, ErrAPINotFound)
	}
	return env.API.toModel(), nil
}

type updateAPIRequest struct {
	Name         string           `json:"name"`
	Method       model.Method     `json:"method"`
	URL          string           `json:"url"`
	Headers      []model.KeyValue `json:"headers"`
	QueryParams  []model.KeyValue `json:"queryParams"`
	Body         model.Body       `json:"body"`
	Auth         model.Auth       `json:"auth"`
	CollectionID string           `json:"collectionId,omitempty"`
}

// UpdateAPI sends the full record. A set CollectionID moves the request.
func (s *RemoteStore) UpdateAPI(ctx context.Context, api model.API) error {
	in := updateAPIRequest{
		Name:         api.Name,
		Method:       api.Method,
		URL:          api.URL,
		Headers:      api.Headers,
		QueryParams:  api.QueryParams,
		Body:         api.Body.Canonical(),
		Auth:         api.Auth,
		CollectionID: api.CollectionID,
	}
	if in.Headers == nil {
		in.Headers = []model.KeyValue{}
	}
	if in.QueryParams == nil {
		in.QueryParams = []model.KeyValue{}
	}
	if in.Auth.IsZero() {
		in.Auth = model.Auth{Type: model.AuthNone}
	}

	if err := s.backend.Do(ctx, http.MethodPut, "apis/{id}", map[string]any{"id": api.ID}, in, nil); err != nil {
		return fmt.Errorf("update api %q: %w", api.ID, err)
	}
	return nil
}

// DeleteAPI removes the request.
func (s *RemoteStore) DeleteAPI(ctx context.Context, id string) error {
	if err := s.backend.Do(ctx, http.MethodDelete, "apis/{id}", map[string]any{"id": id}, nil, nil); err != nil {
		return fmt.Errorf("delete api %q: %w", id, err)
	}
	return nil
}

// MoveAPI reassigns the request to another collection.
func (s *RemoteStore) MoveAPI(ctx context.Context, id, targetCollectionID string) error {
	api, err := s.GetAPI(ctx, id)
	if err != nil {
		return err
	}
	api.CollectionID = targetCollectionID
	return s.UpdateAPI(ctx, api)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

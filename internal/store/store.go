// Package store persists collections and saved requests, either to a local
// JSON document or to the remote backend.
package store

import (
	"context"
	"errors"

	"authrator/internal/model"
)

var (
	// ErrCollectionNotFound is returned when a collection id does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrAPINotFound is returned when a saved request id does not exist.
	ErrAPINotFound = errors.New("api not found")
	// ErrRemote is returned when the backend answers without success.
	ErrRemote = errors.New("backend request failed")
)

// Store is the persistence contract shared by the local and remote stores.
type Store interface {
	ListCollections(ctx context.Context) ([]model.Collection, error)
	CreateCollection(ctx context.Context, name, color string) (model.Collection, error)
	RenameCollection(ctx context.Context, id, name, color string) error
	DeleteCollection(ctx context.Context, id string) error

	CreateAPI(ctx context.Context, collectionID, name string, method model.Method, url string) (model.API, error)
	GetAPI(ctx context.Context, id string) (model.API, error)
	// UpdateAPI persists api over the saved request with the same id.
	UpdateAPI(ctx context.Context, api model.API) error
	DeleteAPI(ctx context.Context, id string) error
	MoveAPI(ctx context.Context, id, targetCollectionID string) error
}

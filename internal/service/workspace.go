package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"authrator/internal/model"
	"authrator/internal/store"
)

// ErrInvalidInput is returned when a payload fails validation.
var ErrInvalidInput = errors.New("invalid input")

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Defaults applied by SaveUnsavedAPI.
const (
	untitledName = "Untitled"
)

// Accounts is the login state the workspace consults on every call.
type Accounts interface {
	User() model.User
	LoggedIn() bool
	UserID() string
	Login(ctx context.Context, email, password string) (model.User, error)
	Signup(ctx context.Context, email, password string) (model.User, error)
	Logout() error
}

// Workspace implements the panel's operations. Each call goes to the remote
// store when a user with an id is logged in and to the local store otherwise.
type Workspace struct {
	accounts Accounts
	local    store.Store
	remote   store.Store
	logger   *slog.Logger
}

// NewWorkspace creates a Workspace.
func NewWorkspace(accounts Accounts, local, remote store.Store, logger *slog.Logger) *Workspace {
	return &Workspace{
		accounts: accounts,
		local:    local,
		remote:   remote,
		logger:   logger.With("component", "workspace"),
	}
}

// Remote reports whether calls currently go to the backend.
func (w *Workspace) Remote() bool {
	return w.accounts.LoggedIn() && w.accounts.UserID() != ""
}

func (w *Workspace) store() store.Store {
	if w.Remote() {
		return w.remote
	}
	return w.local
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// State returns what the panel renders. A failing backend yields an empty
// collection list rather than an error.
func (w *Workspace) State(ctx context.Context) model.State {
	st := model.State{
		IsLoggedIn:  w.accounts.LoggedIn(),
		User:        w.accounts.User(),
		Collections: []model.Collection{},
	}

	collections, err := w.store().ListCollections(ctx)
	if err != nil {
		w.logger.Warn("listing collections", "err", err, "remote", w.Remote())
		return st
	}
	if collections != nil {
		st.Collections = collections
	}
	return st
}

type credentials struct {
	Email    string
	Password string
}

func (c credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, validation.Required),
	)
}

// Login authenticates and switches the workspace to the backend.
func (w *Workspace) Login(ctx context.Context, email, password string) (model.User, error) {
	c := credentials{Email: strings.TrimSpace(email), Password: password}
	if err := invalid(c.Validate()); err != nil {
		return nil, err
	}
	return w.accounts.Login(ctx, c.Email, c.Password)
}

// Signup creates an account and logs in.
func (w *Workspace) Signup(ctx context.Context, email, password string) (model.User, error) {
	c := credentials{Email: strings.TrimSpace(email), Password: password}
	if err := invalid(c.Validate()); err != nil {
		return nil, err
	}
	return w.accounts.Signup(ctx, c.Email, c.Password)
}

// Logout switches the workspace back to the local store.
func (w *Workspace) Logout() error {
	return w.accounts.Logout()
}

// CreateCollection creates a collection. An empty color gets the default.
func (w *Workspace) CreateCollection(ctx context.Context, name, color string) (model.Collection, error) {
	name = strings.TrimSpace(name)
	if color == "" {
		color = model.DefaultCollectionColor
	}
	err := validation.Errors{
		"name":  validation.Validate(name, validation.Required, validation.Length(1, 200)),
		"color": validation.Validate(color, validation.Match(colorPattern)),
	}.Filter()
	if err := invalid(err); err != nil {
		return model.Collection{}, err
	}
	return w.store().CreateCollection(ctx, name, color)
}

// RenameCollection renames and optionally recolors a collection.
func (w *Workspace) RenameCollection(ctx context.Context, id, name, color string) error {
	err := validation.Errors{
		"id":    validation.Validate(id, validation.Required),
		"color": validation.Validate(color, validation.Match(colorPattern)),
	}.Filter()
	if err := invalid(err); err != nil {
		return err
	}
	return w.store().RenameCollection(ctx, id, strings.TrimSpace(name), color)
}

// DeleteCollection removes a collection and its requests.
func (w *Workspace) DeleteCollection(ctx context.Context, id string) error {
	if err := invalid(validation.Validate(id, validation.Required)); err != nil {
		return err
	}
	return w.store().DeleteCollection(ctx, id)
}

func methodRule() validation.Rule {
	allowed := make([]any, 0, len(model.Methods))
	for _, m := range model.Methods {
		allowed = append(allowed, m)
	}
	return validation.In(allowed...).Error("must be one of GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS")
}

// CreateAPI adds a request to a collection.
func (w *Workspace) CreateAPI(ctx context.Context, collectionID, name string, method model.Method, url string) (model.API, error) {
	name = strings.TrimSpace(name)
	method = method.Normalize()
	err := validation.Errors{
		"collectionId": validation.Validate(collectionID, validation.Required),
		"name":         validation.Validate(name, validation.Required),
		"method":       validation.Validate(method, methodRule()),
	}.Filter()
	if err := invalid(err); err != nil {
		return model.API{}, err
	}
	return w.store().CreateAPI(ctx, collectionID, name, method, url)
}

// GetAPI loads a saved request.
func (w *Workspace) GetAPI(ctx context.Context, id string) (model.API, error) {
	if err := invalid(validation.Validate(id, validation.Required)); err != nil {
		return model.API{}, err
	}
	return w.store().GetAPI(ctx, id)
}

func validateAPI(api model.API) error {
	m := api.Method
	if m != "" {
		m = m.Normalize()
	}
	return validation.Errors{
		"id":     validation.Validate(api.ID, validation.Required),
		"method": validation.Validate(m, methodRule()),
	}.Filter()
}

// UpdateAPI saves the request.
func (w *Workspace) UpdateAPI(ctx context.Context, api model.API) error {
	if err := invalid(validateAPI(api)); err != nil {
		return err
	}
	if api.Method != "" {
		api.Method = api.Method.Normalize()
	}
	return w.store().UpdateAPI(ctx, api)
}

// RenameAPI changes only the request's name.
func (w *Workspace) RenameAPI(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	err := validation.Errors{
		"id":   validation.Validate(id, validation.Required),
		"name": validation.Validate(name, validation.Required),
	}.Filter()
	if err := invalid(err); err != nil {
		return err
	}

	st := w.store()
	api, err := st.GetAPI(ctx, id)
	if err != nil {
		return err
	}
	api.Name = name
	return st.UpdateAPI(ctx, api)
}

// DeleteAPI removes a saved request.
func (w *Workspace) DeleteAPI(ctx context.Context, id string) error {
	if err := invalid(validation.Validate(id, validation.Required)); err != nil {
		return err
	}
	return w.store().DeleteAPI(ctx, id)
}

// MoveAPI moves a saved request into another collection.
func (w *Workspace) MoveAPI(ctx context.Context, id, targetCollectionID string) error {
	err := validation.Errors{
		"id":                 validation.Validate(id, validation.Required),
		"targetCollectionId": validation.Validate(targetCollectionID, validation.Required),
	}.Filter()
	if err := invalid(err); err != nil {
		return err
	}
	return w.store().MoveAPI(ctx, id, targetCollectionID)
}

// SaveUnsavedAPI persists a request that was edited before it had an id:
// it is created in api.CollectionID and then updated with the rest of its
// fields. The saved request is returned.
func (w *Workspace) SaveUnsavedAPI(ctx context.Context, api model.API) (model.API, error) {
	if strings.TrimSpace(api.Name) == "" {
		api.Name = untitledName
	}
	api.Method = api.Method.Normalize()

	err := validation.Errors{
		"collectionId": validation.Validate(api.CollectionID, validation.Required),
		"method":       validation.Validate(api.Method, methodRule()),
	}.Filter()
	if err := invalid(err); err != nil {
		return model.API{}, err
	}

	st := w.store()
	created, err := st.CreateAPI(ctx, api.CollectionID, api.Name, api.Method, api.URL)
	if err != nil {
		return model.API{}, err
	}

	saved := api
	saved.ID = created.ID
	saved.CollectionID = ""
	if err := st.UpdateAPI(ctx, saved); err != nil {
		return model.API{}, fmt.Errorf("save api %q: %w", created.ID, err)
	}
	return saved, nil
}

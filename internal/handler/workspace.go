package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"authrator/internal/model"
	"authrator/internal/service"
	"authrator/internal/session"
)

// WorkspaceHandler serves the state, auth, collection and api endpoints.
type WorkspaceHandler struct {
	workspace *service.Workspace
	logger    *slog.Logger
}

// NewWorkspaceHandler creates a WorkspaceHandler.
func NewWorkspaceHandler(ws *service.Workspace, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspace: ws,
		logger:    logger.With("component", "workspace_handler"),
	}
}

// State returns the login state and the current collections.
func (h *WorkspaceHandler) State(c echo.Context) error {
	return c.JSON(http.StatusOK, h.workspace.State(c.Request().Context()))
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates and returns the new state.
func (h *WorkspaceHandler) Login(c echo.Context) error {
	return h.authenticate(c, h.workspace.Login)
}

// Signup creates an account and returns the new state.
func (h *WorkspaceHandler) Signup(c echo.Context) error {
	return h.authenticate(c, h.workspace.Signup)
}

type authFunc func(ctx context.Context, email, password string) (model.User, error)

func (h *WorkspaceHandler) authenticate(c echo.Context, fn authFunc) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := fn(ctx, req.Email, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			return mapError(c, h.logger, err)
		}
		// The message comes from the backend and is shown to the user.
		h.logger.Warn("authentication failed", "path", c.Request().URL.Path, "err", sanitizeError(err))
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	}
	return c.JSON(http.StatusOK, h.workspace.State(ctx))
}

// Logout forgets the user and returns the local state.
func (h *WorkspaceHandler) Logout(c echo.Context) error {
	if err := h.workspace.Logout(); err != nil && !errors.Is(err, session.ErrNotLoggedIn) {
		return mapError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, h.workspace.State(c.Request().Context()))
}

type collectionRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CreateCollection creates a collection.
func (h *WorkspaceHandler) CreateCollection(c echo.Context) error {
	var req collectionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	col, err := h.workspace.CreateCollection(c.Request().Context(), req.Name, req.Color)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, col)
}

// RenameCollection renames or recolors a collection.
func (h *WorkspaceHandler) RenameCollection(c echo.Context) error {
	var req collectionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := h.workspace.RenameCollection(c.Request().Context(), c.Param("id"), req.Name, req.Color); err != nil {
		return mapError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteCollection removes a collection.
func (h *WorkspaceHandler) DeleteCollection(c echo.Context) error {
	if err := h.workspace.DeleteCollection(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type createAPIRequest struct {
	Name   string       `json:"name"`
	Method model.Method `json:"method"`
	URL    string       `json:"url"`
}

// CreateAPI adds a request to the collection in the path.
func (h *WorkspaceHandler) CreateAPI(c echo.Context) error {
	var req createAPIRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	api, err := h.workspace.CreateAPI(c.Request().Context(), c.Param("id"), req.Name, req.Method, req.URL)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, api)
}

// SaveUnsavedAPI persists a request that has no id yet.
func (h *WorkspaceHandler) SaveUnsavedAPI(c echo.Context) error {
	var api model.API
	if err := c.Bind(&api); err != nil {
		return err
	}
	saved, err := h.workspace.SaveUnsavedAPI(c.Request().Context(), api)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// GetAPI returns a saved request.
func (h *WorkspaceHandler) GetAPI(c echo.Context) error {
	api, err := h.workspace.GetAPI(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, api)
}

// UpdateAPI saves a request. The id in the path wins over the body.
func (h *WorkspaceHandler) UpdateAPI(c echo.Context) error {
	var api model.API
	if err := c.Bind(&api); err != nil {
		return err
	}
	api.ID = c.Param("id")
	if err := h.workspace.UpdateAPI(c.Request().Context(), api); err != nil {
		return mapError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type renameAPIRequest struct {
	Name string `json:"name"`
}

// RenameAPI changes a request's name.
func (h *WorkspaceHandler) RenameAPI(c echo.Context) error {
	var req renameAPIRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := h.workspace.RenameAPI(c.Request().Context(), c.Param("id"), req.Name); err != nil {
		return mapError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type moveAPIRequest struct {
	CollectionID string `json:"collectionId"`
}

// MoveAPI moves a request to another collection.
func (h *WorkspaceHandler) MoveAPI(c echo.Context) error {
	var req moveAPIRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := h.workspace.MoveAPI(c.Request().Context(), c.Param("id"), req.CollectionID); err != nil {
		return mapError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteAPI removes a saved request.
func (h *WorkspaceHandler) DeleteAPI(c echo.Context) error {
	if err := h.workspace.DeleteAPI(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

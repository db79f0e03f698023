// Package session keeps the logged-in user record.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"authrator/internal/model"
)

// ErrNotLoggedIn is returned by operations that need a user.
var ErrNotLoggedIn = errors.New("not logged in")

// Backend performs JSON calls against the collections backend.
type Backend interface {
	Do(ctx context.Context, method, template string, vars map[string]any, in, out any) error
}

// messenger is implemented by backend errors that carry a server message.
type messenger interface {
	error
	ServerMessage() string
}

// Session persists the user returned by login or signup.
type Session struct {
	fs      afero.Fs
	path    string
	backend Backend
	logger  *slog.Logger

	mu   sync.RWMutex
	user model.User
}

// New creates a Session and loads any persisted user from path. A missing
// or unreadable record means logged out.
func New(fs afero.Fs, path string, b Backend, logger *slog.Logger) *Session {
	s := &Session{
		fs:      fs,
		path:    path,
		backend: b,
		logger:  logger.With("component", "session"),
	}
	s.user = s.load()
	return s
}

func (s *Session) load() model.User {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading session", "path", s.path, "err", err)
		}
		return nil
	}
	var u model.User
	if err := json.Unmarshal(b, &u); err != nil {
		s.logger.Warn("session file is corrupt, ignoring", "path", s.path, "err", err)
		return nil
	}
	return u
}

// User returns a copy of the logged-in user, or nil.
func (s *Session) User() model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := make(model.User, len(s.user))
	for k, v := range s.user {
		u[k] = v
	}
	return u
}

// LoggedIn reports whether a user record is present.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// UserID returns the user's id ("id" or "_id"), or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.ID()
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool       `json:"success"`
	User    model.User `json:"user"`
	Message string     `json:"message"`
}

// Login authenticates against the backend and persists the returned user.
func (s *Session) Login(ctx context.Context, email, password string) (model.User, error) {
	return s.authenticate(ctx, "login", email, password, "login failed")
}

// Signup creates an account and persists the returned user.
func (s *Session) Signup(ctx context.Context, email, password string) (model.User, error) {
	return s.authenticate(ctx, "signup", email, password, "signup failed")
}

func (s *Session) authenticate(ctx context.Context, endpoint, email, password, fallback string) (model.User, error) {
	var resp authResponse
	err := s.backend.Do(ctx, http.MethodPost, endpoint, nil, credentials{Email: email, Password: password}, &resp)
	if err != nil {
		var m messenger
		if errors.As(err, &m) && m.ServerMessage() != "" {
			return nil, errors.New(m.ServerMessage())
		}
		return nil, fmt.Errorf("%s: %w", fallback, err)
	}
	if !resp.Success || resp.User == nil {
		if resp.Message != "" {
			return nil, errors.New(resp.Message)
		}
		return nil, errors.New(fallback)
	}

	if err := s.save(resp.User); err != nil {
		return nil, err
	}
	s.logger.Info("logged in", "endpoint", endpoint, "user_id", resp.User.ID())
	return resp.User, nil
}

func (s *Session) save(u model.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, b, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	return nil
}

// Logout forgets the user. It returns ErrNotLoggedIn when there was no
// user to forget.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session: %w", err)
	}
	if s.user == nil {
		return ErrNotLoggedIn
	}
	s.user = nil
	s.logger.Info("logged out")
	return nil
}

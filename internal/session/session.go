// Package session tracks the authenticated user for the running client.
package session

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/apiclient"
	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/pkg/errors"
)

// AuthAPI is the subset of the API client the session store uses
type AuthAPI interface {
	Login(ctx context.Context, req apiclient.LoginRequest) (*domain.User, error)
	Register(ctx context.Context, req apiclient.RegisterRequest) (*domain.User, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*domain.User, error)
}

// Listener receives the current user, nil when signed out
type Listener func(*domain.User)

type Store struct {
	mu         sync.Mutex
	api        AuthAPI
	user       *domain.User
	loaded     bool
	listeners  map[int]Listener
	nextID     int
	onRedirect func()
	logger     *zap.Logger
}

func NewStore(api AuthAPI, logger *zap.Logger) *Store {
	return &Store{
		api:       api,
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// Load asks the server for the current session. A 401 means signed out
// and is not an error.
func (s *Store) Load(ctx context.Context) error {
	user, err := s.api.Me(ctx)
	if err != nil {
		if errors.StatusCode(err) == http.StatusUnauthorized {
			s.set(nil, true)
			return nil
		}
		s.logger.Warn("Session check failed", zap.Error(err))
		return err
	}
	s.set(user, true)
	return nil
}

func (s *Store) Login(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.api.Login(ctx, apiclient.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	s.set(user, true)
	s.logger.Info("Signed in", zap.String("user_id", user.ID))
	return user, nil
}

func (s *Store) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	user, err := s.api.Register(ctx, apiclient.RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	s.set(user, true)
	return user, nil
}

// Logout clears the local session even when the server call fails
func (s *Store) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	if err != nil {
		s.logger.Warn("Server logout failed, clearing local session anyway", zap.Error(err))
	}
	s.set(nil, true)
	return err
}

// Clear drops the local session without a server call
func (s *Store) Clear() {
	s.set(nil, true)
}

// OnRedirect sets the hook run after an irrecoverable 401 has cleared the
// session, e.g. to send the user to the login entry point.
func (s *Store) OnRedirect(fn func()) {
	s.mu.Lock()
	s.onRedirect = fn
	s.mu.Unlock()
}

// RedirectToLogin implements apiclient.Navigator
func (s *Store) RedirectToLogin() {
	s.Clear()

	s.mu.Lock()
	fn := s.onRedirect
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Store) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Store) IsAuthenticated() bool {
	return s.User() != nil
}

func (s *Store) IsAdmin() bool {
	u := s.User()
	return u != nil && u.IsAdmin()
}

func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) set(user *domain.User, loaded bool) {
	s.mu.Lock()
	s.user = user
	s.loaded = loaded
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	var copyUser *domain.User
	if user != nil {
		u := *user
		copyUser = &u
	}
	for _, fn := range listeners {
		fn(copyUser)
	}
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/backend"
	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/store"
)

var (
	ErrValidation         = errors.New("validation")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Backend is the slice of the upstream contract the session store needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (*backend.AuthResponse, error)
	Register(ctx context.Context, email, password, role string) (*backend.AuthResponse, error)
	CurrentUser(ctx context.Context) (*models.User, error)
}

// Store holds the authenticated identity. The in-memory copy is the source
// of truth while the process runs; the repo row survives restarts the way
// localStorage survives reloads. Identity is either fully present or fully
// absent, never partial.
type Store struct {
	backend Backend
	repo    *store.SessionRepo
	events  events.Publisher

	mu    sync.RWMutex
	user  *models.User
	token string
}

func New(b Backend, repo *store.SessionRepo, ev events.Publisher) *Store {
	if ev == nil {
		ev = events.Nop{}
	}
	return &Store{backend: b, repo: repo, events: ev}
}

// Token implements backend.TokenSource. Empty while logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Current() (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

func (s *Store) UserID() (uint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return 0, false
	}
	return s.user.ID, true
}

func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

func (s *Store) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.Role == models.RoleAdmin
}

// Login exchanges credentials for a token and persists the identity. The
// returned snapshot is the caller's copy; it stays valid even if another
// goroutine logs out right after. Rejected credentials come back as
// ErrInvalidCredentials so the caller can render an inline message instead
// of escalating.
func (s *Store) Login(ctx context.Context, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("op", "session.login")

	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password required: %w", ErrValidation)
	}

	resp, err := s.backend.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, backend.ErrAuth) {
			return nil, fmt.Errorf("login: %w", ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	user := resp.User
	held := user
	s.mu.Lock()
	s.user = &held
	s.token = resp.AccessToken
	s.mu.Unlock()

	if err := s.persist(ctx, &user, resp.AccessToken); err != nil {
		l.Error("persist session failed", "error", err)
	}

	event := map[string]any{
		"type":   "user_logged_in",
		"userID": user.ID,
		"email":  user.Email,
	}
	if err := s.events.Publish(ctx, events.TopicUserEvents, fmt.Sprint(user.ID), event); err != nil {
		l.Error("kafka publish error", "error", err)
	}

	return &user, nil
}

// Register creates an account with the customer role. Backend errors are
// returned as-is so the caller can tell a duplicate email from anything
// else. The new user is not logged in.
func (s *Store) Register(ctx context.Context, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("op", "session.register")

	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password required: %w", ErrValidation)
	}

	resp, err := s.backend.Register(ctx, email, password, models.RoleCustomer)
	if err != nil {
		return nil, err
	}

	event := map[string]any{
		"type":   "user_registered",
		"userID": resp.User.ID,
		"email":  resp.User.Email,
	}
	if err := s.events.Publish(ctx, events.TopicUserEvents, fmt.Sprint(resp.User.ID), event); err != nil {
		l.Error("kafka publish error", "error", err)
	}

	user := resp.User
	return &user, nil
}

// Logout drops the identity and the durable row. No network call.
func (s *Store) Logout() {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.mu.Unlock()

	if err := s.repo.Clear(context.Background()); err != nil {
		logging.FromContext(context.Background()).Error("clear session storage failed", "error", err)
	}
}

// Hydrate restores the identity at startup. A persisted token is always
// re-validated against the backend; a rejected or expired one is flushed
// and the process starts logged out. Transport failures keep the stored
// row for the next start but still begin logged out.
func (s *Store) Hydrate(ctx context.Context) error {
	l := logging.FromContext(ctx).With("op", "session.hydrate")

	persisted, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if persisted == nil {
		return nil
	}

	var user models.User
	if err := json.Unmarshal([]byte(persisted.UserJSON), &user); err != nil {
		l.Warn("stored session snapshot is corrupt, flushing", "error", err)
		s.flush(ctx)
		return nil
	}

	if tokenExpired(persisted.Token) {
		l.Info("stored token already expired, flushing")
		s.flush(ctx)
		return nil
	}

	// The token has to be visible to the backend client before the
	// re-validation call goes out.
	s.mu.Lock()
	s.user = &user
	s.token = persisted.Token
	s.mu.Unlock()

	fresh, err := s.backend.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrAuth) {
			l.Info("stored token rejected by backend, flushing")
			s.flush(ctx)
			return nil
		}
		s.mu.Lock()
		s.user = nil
		s.token = ""
		s.mu.Unlock()
		return fmt.Errorf("validate session: %w", err)
	}

	s.mu.Lock()
	s.user = fresh
	s.mu.Unlock()

	if err := s.persist(ctx, fresh, persisted.Token); err != nil {
		l.Error("persist refreshed session failed", "error", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, user *models.User, token string) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user snapshot: %w", err)
	}
	return s.repo.Save(ctx, &models.Session{
		Token:    token,
		UserID:   user.ID,
		UserJSON: string(data),
	})
}

func (s *Store) flush(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.mu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		logging.FromContext(ctx).Error("clear session storage failed", "error", err)
	}
}

// tokenExpired reads the exp claim without verifying the signature; only
// the backend knows the signing key. A token that does not parse as a JWT
// is left for the backend to judge.
func tokenExpired(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

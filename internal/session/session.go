// Package session holds the per-visitor auth state and the merge flag.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"storefront/internal/kvstore"
	"storefront/internal/model"
)

// Session is one visitor's browser session.
// Begin marks the visitor authenticated; End returns them to guest mode.
// Safe for concurrent use.
type Session struct {
	id     string
	store  kvstore.Store
	logger *slog.Logger

	mu     sync.RWMutex
	userID string
	token  string
}

// NewID mints a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// New creates a guest session. store must already be scoped to this visitor.
func New(id string, store kvstore.Store, logger *slog.Logger) *Session {
	return &Session{
		id:     id,
		store:  store,
		logger: logger.With(slog.String("session", id)),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Store returns the visitor-scoped key-value store.
func (s *Session) Store() kvstore.Store {
	return s.store
}

// Begin records a successful sign-in.
func (s *Session) Begin(userID, accessToken string) error {
	if userID == "" {
		return model.NewValidationError("userId", "is required")
	}
	s.mu.Lock()
	s.userID = userID
	s.token = accessToken
	s.mu.Unlock()

	s.logger.Info("session authenticated", slog.String("user_id", userID))
	return nil
}

// End signs the visitor out and resets the merge flag so a later guest cart
// is merged on the next sign-in.
func (s *Session) End(ctx context.Context) {
	s.mu.Lock()
	userID := s.userID
	s.userID = ""
	s.token = ""
	s.mu.Unlock()

	s.ResetMerged(ctx)
	s.logger.Info("session ended", slog.String("user_id", userID))
}

// IsAuthenticated reports whether a user is signed in.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID != ""
}

// CurrentUserID returns the signed-in user, or "" for guests.
func (s *Session) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// AccessToken returns the bearer token for commerce API calls.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Merged reports whether the guest cart was already merged in this session.
// Read failures count as "not merged"; the merge itself is idempotent server-side.
func (s *Session) Merged(ctx context.Context) bool {
	v, ok, err := s.store.Get(ctx, kvstore.KeyCartMerged)
	if err != nil {
		s.logger.Warn("failed to read merge flag", slog.String("error", err.Error()))
		return false
	}
	return ok && string(v) == "true"
}

// ResetMerged clears the merge flag. A session that is not signed in must
// not carry one, or the next sign-in would skip the guest cart.
func (s *Session) ResetMerged(ctx context.Context) {
	if err := s.store.Remove(ctx, kvstore.KeyCartMerged); err != nil {
		s.logger.Warn("failed to clear merge flag", slog.String("error", err.Error()))
	}
}

// MarkMerged sets the merge flag.
func (s *Session) MarkMerged(ctx context.Context) {
	if err := s.store.Set(ctx, kvstore.KeyCartMerged, []byte("true")); err != nil {
		s.logger.Warn("failed to write merge flag", slog.String("error", err.Error()))
	}
}

package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service encapsulates user registration and preference management.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a user Service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{store: NewStore(pool), logger: logger}
}

// Register ensures a user row exists for the chat identity. Called on first
// contact from the chat surface; idempotent.
func (s *Service) Register(ctx context.Context, chatID int64, handle *string) (User, error) {
	u, err := s.store.Upsert(ctx, chatID, handle, DefaultPrefs())
	if err != nil {
		return User{}, fmt.Errorf("registering user for chat %d: %w", chatID, err)
	}
	return u, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.store.Get(ctx, id)
}

// GetByChatID returns the user bound to the given chat identity.
func (s *Service) GetByChatID(ctx context.Context, chatID int64) (User, error) {
	return s.store.GetByChatID(ctx, chatID)
}

// SetPrefs replaces the user's notification preferences.
func (s *Service) SetPrefs(ctx context.Context, id uuid.UUID, prefs Prefs) error {
	if err := s.store.UpdatePrefs(ctx, id, prefs); err != nil {
		return fmt.Errorf("setting preferences for %s: %w", id, err)
	}
	return nil
}

package user

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, chat_id, handle, preferences, created_at, updated_at`

// Store provides database operations for users.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a user Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanUserRow(row pgx.Row) (User, error) {
	var u User
	var prefs json.RawMessage
	err := row.Scan(&u.ID, &u.ChatID, &u.Handle, &prefs, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Prefs); err != nil {
			return User{}, fmt.Errorf("decoding preferences: %w", err)
		}
	}
	return u, nil
}

// Get returns a user by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUserRow(row)
}

// GetByChatID returns the user bound to the given chat identity.
func (s *Store) GetByChatID(ctx context.Context, chatID int64) (User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id = $1`, chatID)
	return scanUserRow(row)
}

// Upsert inserts a user for the chat identity, or refreshes the handle when
// the row already exists. Returns the stored row either way.
func (s *Store) Upsert(ctx context.Context, chatID int64, handle *string, prefs Prefs) (User, error) {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return User{}, fmt.Errorf("encoding preferences: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (chat_id, handle, preferences)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET handle = EXCLUDED.handle, updated_at = now()
		RETURNING `+userColumns,
		chatID, handle, prefsJSON,
	)
	return scanUserRow(row)
}

// UpdatePrefs replaces the notification preferences for a user.
func (s *Store) UpdatePrefs(ctx context.Context, id uuid.UUID, prefs Prefs) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET preferences = $2, updated_at = now() WHERE id = $1`,
		id, prefsJSON,
	)
	if err != nil {
		return fmt.Errorf("updating preferences: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

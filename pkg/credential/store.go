package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const apiKeyColumns = `id, user_id, key_id, secret_hash, scopes, expires_at, revoked_at, last_used_at, created_at`
const magicLinkColumns = `token, user_id, scopes, expires_at, used_at, created_at`

// Store provides database operations for API keys and magic links.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a credential Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanAPIKeyRow(row pgx.Row) (APIKey, error) {
	var k APIKey
	err := row.Scan(
		&k.ID, &k.UserID, &k.KeyID, &k.SecretHash, &k.Scopes,
		&k.ExpiresAt, &k.RevokedAt, &k.LastUsedAt, &k.CreatedAt,
	)
	return k, err
}

// GetKeyByKeyID returns the key row with the given public key ID.
func (s *Store) GetKeyByKeyID(ctx context.Context, keyID string) (APIKey, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_id = $1`, keyID)
	return scanAPIKeyRow(row)
}

// ListKeysByUser returns all non-revoked keys for a user, newest first.
func (s *Store) ListKeysByUser(ctx context.Context, userID uuid.UUID) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE user_id = $1 AND revoked_at IS NULL
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var items []APIKey
	for rows.Next() {
		k, err := scanAPIKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		items = append(items, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api key rows: %w", err)
	}
	return items, nil
}

// RevokeKey stamps revoked_at on a key owned by the given user. Returns
// pgx.ErrNoRows when the key does not exist, is foreign, or is already
// revoked.
func (s *Store) RevokeKey(ctx context.Context, userID uuid.UUID, keyID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now()
		 WHERE key_id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		keyID, userID)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// TouchKeyLastUsed stamps last_used_at. Best-effort; the caller logs and
// discards failures.
func (s *Store) TouchKeyLastUsed(ctx context.Context, keyID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = now() WHERE key_id = $1`, keyID)
	return err
}

// CreateMagicLink persists a new link row.
func (s *Store) CreateMagicLink(ctx context.Context, link MagicLink) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO magic_links (token, user_id, scopes, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		link.Token, link.UserID, link.Scopes, link.ExpiresAt)
	if err != nil {
		return fmt.Errorf("creating magic link: %w", err)
	}
	return nil
}

// RedeemMagicLink atomically consumes a link and mints the API key it
// promises, inside one transaction. The conditional update on used_at IS
// NULL guarantees exactly one winner under racing redemptions.
func (s *Store) RedeemMagicLink(ctx context.Context, token, newKeyID, secretHash string, now time.Time) (APIKey, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return APIKey{}, fmt.Errorf("beginning redemption: %w", err)
	}
	defer tx.Rollback(ctx)

	var link MagicLink
	err = tx.QueryRow(ctx,
		`SELECT `+magicLinkColumns+` FROM magic_links WHERE token = $1`, token,
	).Scan(&link.Token, &link.UserID, &link.Scopes, &link.ExpiresAt, &link.UsedAt, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APIKey{}, ErrLinkNotFound
		}
		return APIKey{}, fmt.Errorf("loading magic link: %w", err)
	}

	if link.UsedAt != nil {
		return APIKey{}, ErrLinkUsed
	}
	if link.ExpiresAt.Before(now) {
		return APIKey{}, ErrLinkExpired
	}

	// Compare-and-set: a concurrent redemption that committed first leaves
	// zero rows here.
	tag, err := tx.Exec(ctx,
		`UPDATE magic_links SET used_at = $2 WHERE token = $1 AND used_at IS NULL`,
		token, now)
	if err != nil {
		return APIKey{}, fmt.Errorf("consuming magic link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return APIKey{}, ErrLinkUsed
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO api_keys (user_id, key_id, secret_hash, scopes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+apiKeyColumns,
		link.UserID, newKeyID, secretHash, link.Scopes)
	key, err := scanAPIKeyRow(row)
	if err != nil {
		return APIKey{}, fmt.Errorf("creating api key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return APIKey{}, fmt.Errorf("committing redemption: %w", err)
	}
	return key, nil
}

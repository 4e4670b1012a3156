package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/runwhale/runwhale/internal/random"
)

// bcryptCost is the KDF work factor for API key secrets.
const bcryptCost = 12

// Service encapsulates credential business logic.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a credential Service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{store: NewStore(pool), logger: logger}
}

// IssueMagicLink creates a one-shot link for the user with the given intended
// scopes. The only side effect is the row itself.
func (s *Service) IssueMagicLink(ctx context.Context, userID uuid.UUID, scopes []string) (MagicLink, error) {
	if err := ValidateScopes(scopes); err != nil {
		return MagicLink{}, fmt.Errorf("issuing magic link: %w", err)
	}

	link := MagicLink{
		Token:     random.String(linkTokenLen),
		UserID:    userID,
		Scopes:    scopes,
		ExpiresAt: time.Now().UTC().Add(MagicLinkTTL),
	}
	if err := s.store.CreateMagicLink(ctx, link); err != nil {
		return MagicLink{}, err
	}

	s.logger.Info("issued magic link", "user_id", userID, "scopes", scopes)
	return link, nil
}

// RedeemMagicLink exchanges a link token for a freshly minted API key. The
// raw secret is generated here, hashed for storage, and returned exactly
// once; it is never persisted and never reissued.
func (s *Service) RedeemMagicLink(ctx context.Context, token string) (formattedKey string, key APIKey, err error) {
	keyID := random.String(keyIDLen)
	secret := random.String(secretLen)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", APIKey{}, fmt.Errorf("hashing secret: %w", err)
	}

	key, err = s.store.RedeemMagicLink(ctx, token, keyID, string(hash), time.Now().UTC())
	if err != nil {
		return "", APIKey{}, err
	}

	s.logger.Info("redeemed magic link", "user_id", key.UserID, "key_id", keyID)
	return FormatKey(keyID, secret), key, nil
}

// Authenticate verifies an on-wire key string and returns the stored key row.
// Every credential failure surfaces as one of the package's unauthenticated
// errors; a store failure other than a missing row is returned wrapped.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (APIKey, error) {
	keyID, secret, err := ParseKey(rawKey)
	if err != nil {
		return APIKey{}, err
	}

	key, err := s.store.GetKeyByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APIKey{}, ErrUnknownKey
		}
		return APIKey{}, fmt.Errorf("looking up api key: %w", err)
	}

	if err := key.Valid(time.Now().UTC()); err != nil {
		return APIKey{}, err
	}

	// bcrypt comparison is constant-time over the derived hash.
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return APIKey{}, ErrMismatch
	}

	// Best-effort usage stamp; failures are logged, never block the request.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchKeyLastUsed(ctx, keyID); err != nil {
			s.logger.Warn("updating last_used_at", "key_id", keyID, "error", err)
		}
	}()

	return key, nil
}

// CheckScopes reports whether the key satisfies the required scope set.
func (s *Service) CheckScopes(key APIKey, required []string) bool {
	return key.HasScopes(required)
}

// ListKeys returns the user's active keys.
func (s *Service) ListKeys(ctx context.Context, userID uuid.UUID) ([]APIKey, error) {
	return s.store.ListKeysByUser(ctx, userID)
}

// Revoke invalidates a key owned by the user. Returns pgx.ErrNoRows when the
// key is missing, foreign, or already revoked.
func (s *Service) Revoke(ctx context.Context, userID uuid.UUID, keyID string) error {
	if err := s.store.RevokeKey(ctx, userID, keyID); err != nil {
		return err
	}
	s.logger.Info("revoked api key", "user_id", userID, "key_id", keyID)
	return nil
}

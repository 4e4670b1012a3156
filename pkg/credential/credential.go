// Package credential issues, verifies, and revokes the opaque API keys that
// authenticate every call, and runs the one-shot magic-link exchange that
// mints them.
package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runwhale/runwhale/internal/random"
)

// Scopes an API key may carry.
const (
	ScopeEnvRead     = "env.read"
	ScopeEnvWrite    = "env.write"
	ScopeDeployRead  = "deploy.read"
	ScopeDeployWrite = "deploy.write"
	ScopeLogsRead    = "logs.read"
	ScopeAdmin       = "admin"
)

// KnownScopes lists every valid scope value.
var KnownScopes = []string{
	ScopeEnvRead, ScopeEnvWrite,
	ScopeDeployRead, ScopeDeployWrite,
	ScopeLogsRead, ScopeAdmin,
}

// Key format constants. Keys are presented as rw_prod_{key_id}.{secret}.
const (
	KeyPrefix    = "rw_prod_"
	keyIDLen     = 16
	secretLen    = 32
	linkTokenLen = 32

	// MagicLinkTTL bounds how long an unredeemed link stays valid.
	MagicLinkTTL = 15 * time.Minute
)

// Authentication failure modes. All of them surface to callers as
// unauthenticated; the distinction exists for logs.
var (
	ErrBadFormat  = errors.New("credential: malformed API key")
	ErrUnknownKey = errors.New("credential: unknown key id")
	ErrRevoked    = errors.New("credential: key revoked")
	ErrExpired    = errors.New("credential: key expired")
	ErrMismatch   = errors.New("credential: secret mismatch")

	ErrLinkNotFound = errors.New("credential: magic link not found")
	ErrLinkUsed     = errors.New("credential: magic link already used")
	ErrLinkExpired  = errors.New("credential: magic link expired")
)

// APIKey is a stored credential. The raw secret never persists; only its
// KDF hash does. Revoked and expired rows are kept, never purged.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	KeyID      string     `json:"key_id"`
	SecretHash string     `json:"-"`
	Scopes     []string   `json:"scopes"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Valid reports whether the key is currently usable.
func (k *APIKey) Valid(now time.Time) error {
	if k.RevokedAt != nil {
		return ErrRevoked
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(now) {
		return ErrExpired
	}
	return nil
}

// HasScopes reports whether the key satisfies every required scope. Holders
// of admin pass unconditionally.
func (k *APIKey) HasScopes(required []string) bool {
	held := make(map[string]struct{}, len(k.Scopes))
	for _, s := range k.Scopes {
		if s == ScopeAdmin {
			return true
		}
		held[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := held[s]; !ok {
			return false
		}
	}
	return true
}

// MagicLink is a one-shot exchange token. Redemption produces exactly one
// APIKey, at most once.
type MagicLink struct {
	Token     string
	UserID    uuid.UUID
	Scopes    []string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// FormatKey renders the on-wire key string.
func FormatKey(keyID, secret string) string {
	return KeyPrefix + keyID + "." + secret
}

// ParseKey splits an on-wire key into key ID and secret, enforcing the fixed
// format and alphabet.
func ParseKey(raw string) (keyID, secret string, err error) {
	if !strings.HasPrefix(raw, KeyPrefix) {
		return "", "", ErrBadFormat
	}
	rest := raw[len(KeyPrefix):]
	if len(rest) != keyIDLen+1+secretLen || rest[keyIDLen] != '.' {
		return "", "", ErrBadFormat
	}
	keyID, secret = rest[:keyIDLen], rest[keyIDLen+1:]
	if !inAlphabet(keyID) || !inAlphabet(secret) {
		return "", "", ErrBadFormat
	}
	return keyID, secret, nil
}

func inAlphabet(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune(random.Alphabet, c) {
			return false
		}
	}
	return true
}

// ValidateScopes rejects any scope outside the known set.
func ValidateScopes(scopes []string) error {
	known := make(map[string]struct{}, len(KnownScopes))
	for _, s := range KnownScopes {
		known[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := known[s]; !ok {
			return fmt.Errorf("unknown scope %q", s)
		}
	}
	return nil
}

package credential

import (
	"context"

	"github.com/runwhale/runwhale/internal/auth"
)

// AuthenticateKey implements auth.Authenticator, bridging the middleware to
// the credential service.
func (s *Service) AuthenticateKey(ctx context.Context, rawKey string) (*auth.Identity, error) {
	key, err := s.Authenticate(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	return &auth.Identity{
		UserID: key.UserID,
		KeyID:  key.KeyID,
		Scopes: key.Scopes,
	}, nil
}

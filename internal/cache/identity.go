package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/idxstock/stockapi/internal/model"
)

const (
	// identityPrefix is the Redis key prefix for API key identities.
	identityPrefix = "apikey:identity:"
	// defaultIdentityTTL bounds how long a cached identity outlives a
	// change that did not evict it.
	defaultIdentityTTL = 5 * time.Minute
)

// revokedMarker replaces the identity of a key that was rotated out. It
// lives at least as long as any identity could, and SetIdentity never
// overwrites it.
var revokedMarker = []byte("revoked")

// cachedIdentity is the stored form of an identity.
type cachedIdentity struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Plan   string `json:"plan"`
}

// GetIdentity returns the identity cached under a key fingerprint.
// A miss returns (nil, nil).
func (c *Cache) GetIdentity(ctx context.Context, fingerprint string) (*model.Identity, error) {
	data, err := c.client.Get(ctx, identityPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if bytes.Equal(data, revokedMarker) {
		return nil, nil
	}

	var cached cachedIdentity
	if err := json.Unmarshal(data, &cached); err != nil || cached.UserID == "" {
		// Corrupted entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.Identity{
		UserID: cached.UserID,
		Email:  cached.Email,
		Role:   model.Role(cached.Role),
		Plan:   model.Plan(cached.Plan),
	}, nil
}

// SetIdentity caches an identity under a key fingerprint unless the entry
// already exists. A revoked fingerprint therefore cannot be re-cached by a
// lookup that read the user before the key was rotated.
func (c *Cache) SetIdentity(ctx context.Context, fingerprint string, id *model.Identity) error {
	data, err := json.Marshal(cachedIdentity{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   string(id.Role),
		Plan:   string(id.Plan),
	})
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return c.client.SetNX(ctx, identityPrefix+fingerprint, data, c.identityTTL).Err()
}

// RevokeIdentity replaces whatever is cached for fingerprint with a
// revocation marker, so the key can only be resolved against the database
// until the marker expires.
func (c *Cache) RevokeIdentity(ctx context.Context, fingerprint string) error {
	return c.client.Set(ctx, identityPrefix+fingerprint, revokedMarker, 2*c.identityTTL).Err()
}

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"ms-boost/internal/logger"

	"github.com/go-redis/redis/v8"
)

const claimsKeyPrefix = "auth_claims:"

// CachingVerifier keeps verified identities in Redis until the token expires
// or MaxTTL passes, whichever comes first.
type CachingVerifier struct {
	Next   Verifier
	Client *redis.Client
	MaxTTL time.Duration
	Logger *logger.Logger
	now    func() time.Time
}

func NewCachingVerifier(next Verifier, client *redis.Client, maxTTL time.Duration, log *logger.Logger) *CachingVerifier {
	return &CachingVerifier{Next: next, Client: client, MaxTTL: maxTTL, Logger: log, now: time.Now}
}

func claimsKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return claimsKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachingVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	key := claimsKey(rawToken)

	if id, err := c.get(ctx, key); err != nil {
		c.Logger.Warn("AUTH", fmt.Sprintf("Claims cache read failed: %v", err))
	} else if id != nil {
		return id, nil
	}

	id, err := c.Next.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	if err := c.set(ctx, key, id); err != nil {
		c.Logger.Warn("AUTH", fmt.Sprintf("Claims cache write failed: %v", err))
	}
	return id, nil
}

func (c *CachingVerifier) get(ctx context.Context, key string) (*Identity, error) {
	raw, err := c.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return nil, fmt.Errorf("unmarshal cached claims: %w", err)
	}
	if !id.ExpiresAt.IsZero() && !c.now().Before(id.ExpiresAt) {
		return nil, nil
	}
	return &id, nil
}

func (c *CachingVerifier) set(ctx context.Context, key string, id *Identity) error {
	ttl := c.MaxTTL
	if !id.ExpiresAt.IsZero() {
		if left := id.ExpiresAt.Sub(c.now()); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}
	return c.Client.Set(ctx, key, payload, ttl).Err()
}

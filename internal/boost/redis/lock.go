package redis

import (
	"context"
	"fmt"
	"time"

	"ms-boost/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const lockPrefix = "boost_lock:"

// Deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{
		Client: client,
		TTL:    ttl,
		Logger: log,
	}
}

func lockKey(listingID int64) string {
	return fmt.Sprintf("%s%d", lockPrefix, listingID)
}

// LockListing takes the per-listing boost lock. The returned token is needed to release it;
// ok is false when another request holds the lock.
func (r *Redis) LockListing(ctx context.Context, listingID int64) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey(listingID), token, r.TTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock listing %d: %w", listingID, err)
	}
	if !ok {
		r.Logger.Debug("REDIS", fmt.Sprintf("Boost lock for listing %d already held", listingID))
		return "", false, nil
	}
	return token, true, nil
}

func (r *Redis) UnlockListing(ctx context.Context, listingID int64, token string) error {
	if token == "" {
		return nil
	}
	released, err := unlockScript.Run(ctx, r.Client, []string{lockKey(listingID)}, token).Int()
	if err != nil {
		return fmt.Errorf("unlock listing %d: %w", listingID, err)
	}
	if released == 0 {
		r.Logger.Warn("REDIS", fmt.Sprintf("Boost lock for listing %d expired before release", listingID))
	}
	return nil
}

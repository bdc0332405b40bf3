package redis

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/logger"

	"github.com/go-redis/redis/v8"
)

const claimPrefix = "attendance_claim:"

type Redis struct {
	Client   *redis.Client
	ClaimTTL time.Duration
	Logger   *logger.Logger
}

func NewRedis(client *redis.Client, claimTTL time.Duration, log *logger.Logger) *Redis {
	if claimTTL <= 0 {
		claimTTL = 5 * time.Second
	}
	return &Redis{
		Client:   client,
		ClaimTTL: claimTTL,
		Logger:   log,
	}
}

// Claim takes the recording claim for key. It expires after ClaimTTL so a
// crashed terminal cannot block the tuple.
func (r *Redis) Claim(ctx context.Context, key, owner string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, claimPrefix+key, owner, r.ClaimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the claim if owner still holds it. Owners are terminal
// session ids, so one operator's terminals never release each other's claims.
func (r *Redis) Release(ctx context.Context, key, owner string) error {
	redisKey := claimPrefix + key
	val, err := r.Client.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil // expired
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err := r.Client.Del(ctx, redisKey).Result()
		return err
	}
	return nil
}

package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-jobmarket-backend/pkg/redis"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoginTrackerConfig tunes failed-login throttling.
type LoginTrackerConfig struct {
	MaxAttempts   int           // failed attempts before a block is created
	AttemptWindow time.Duration // counter lifetime
	BlockDuration time.Duration // how long a block lasts
	UseIPTracking bool          // also count and block by client IP
}

// DefaultLoginTrackerConfig returns the defaults: 5 attempts / 15 minutes.
func DefaultLoginTrackerConfig() LoginTrackerConfig {
	return LoginTrackerConfig{
		MaxAttempts:   5,
		AttemptWindow: 15 * time.Minute,
		BlockDuration: 15 * time.Minute,
		UseIPTracking: true,
	}
}

// LoginTracker counts failed sign-ins in Redis and enforces temporary blocks.
// Without Redis it fails open: nothing is tracked and nobody is blocked.
type LoginTracker struct {
	config LoginTrackerConfig
	logger *SecurityLogger
}

func NewLoginTracker(config LoginTrackerConfig) *LoginTracker {
	return &LoginTracker{
		config: config,
		logger: DefaultLogger(),
	}
}

const (
	failLoginUserPrefix    = "fail:login:user:"
	failLoginIPPrefix      = "fail:login:ip:"
	blockedLoginUserPrefix = "blocked:login:user:"
	blockedLoginIPPrefix   = "blocked:login:ip:"
)

// INCR and EXPIRE must happen atomically so the window starts with the
// first failure. KEYS[1] = counter key, ARGV[1] = TTL seconds.
const incrWithTTLScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

// IsBlocked reports whether the email or IP currently has an active block.
func (lt *LoginTracker) IsBlocked(ctx context.Context, email, ip string) (bool, error) {
	client := redis.Client()
	if client == nil {
		return false, nil
	}

	exists, err := client.Exists(ctx, blockedLoginUserPrefix+email).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check user block: %w", err)
	}
	if exists > 0 {
		return true, nil
	}

	if lt.config.UseIPTracking && ip != "" {
		exists, err := client.Exists(ctx, blockedLoginIPPrefix+ip).Result()
		if err != nil {
			return false, fmt.Errorf("failed to check IP block: %w", err)
		}
		if exists > 0 {
			return true, nil
		}
	}

	return false, nil
}

// RecordFailedAttempt bumps the counters for a failed sign-in and creates a
// block once MaxAttempts is reached. Returns (blocked, attempts so far).
func (lt *LoginTracker) RecordFailedAttempt(ctx context.Context, email, ip, userAgent, requestID string) (bool, int, error) {
	client := redis.Client()
	if client == nil {
		return false, 0, errors.New("redis not available for login tracking")
	}

	ttlSeconds := int(lt.config.AttemptWindow.Seconds())

	userCount, err := lt.atomicIncrement(ctx, client, failLoginUserPrefix+email, ttlSeconds)
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment user counter: %w", err)
	}

	if lt.config.UseIPTracking && ip != "" {
		_, _ = lt.atomicIncrement(ctx, client, failLoginIPPrefix+ip, ttlSeconds)
	}

	lt.logger.LogLoginFailed(ctx, email, ip, userAgent, requestID, "invalid_credentials")

	if userCount >= lt.config.MaxAttempts {
		if err := lt.createBlock(ctx, email, ip, requestID); err != nil {
			return true, userCount, fmt.Errorf("failed to create block: %w", err)
		}
		return true, userCount, nil
	}

	return false, userCount, nil
}

func (lt *LoginTracker) atomicIncrement(ctx context.Context, client *goredis.Client, key string, ttlSeconds int) (int, error) {
	result, err := client.Eval(ctx, incrWithTTLScript, []string{key}, ttlSeconds).Result()
	if err != nil {
		return 0, err
	}
	count, ok := result.(int64)
	if !ok {
		return 0, errors.New("unexpected result type from Lua script")
	}
	return int(count), nil
}

func (lt *LoginTracker) createBlock(ctx context.Context, email, ip, requestID string) error {
	client := redis.Client()
	if client == nil {
		return errors.New("redis not available")
	}

	blockTTL := lt.config.BlockDuration

	if err := client.Set(ctx, blockedLoginUserPrefix+email, "1", blockTTL).Err(); err != nil {
		return fmt.Errorf("failed to set user block: %w", err)
	}

	if lt.config.UseIPTracking && ip != "" {
		if err := client.Set(ctx, blockedLoginIPPrefix+ip, "1", blockTTL).Err(); err != nil {
			// The user block already exists, so only warn.
			lt.logger.zapLogger.Warn("failed to set IP block", zap.Error(err))
		}
	}

	lt.logger.LogBlockCreated(ctx, "email", email, ip, requestID, int(blockTTL.Minutes()))

	return nil
}

// ClearAttempts resets the failure counters after a successful sign-in.
func (lt *LoginTracker) ClearAttempts(ctx context.Context, email, ip string) error {
	client := redis.Client()
	if client == nil {
		return nil
	}

	if err := client.Del(ctx, failLoginUserPrefix+email).Err(); err != nil {
		return fmt.Errorf("failed to clear user attempts: %w", err)
	}

	if lt.config.UseIPTracking && ip != "" {
		_ = client.Del(ctx, failLoginIPPrefix+ip).Err()
	}

	return nil
}

// GetBlockTTL returns the remaining block duration for an email, if any.
func (lt *LoginTracker) GetBlockTTL(ctx context.Context, email string) (time.Duration, bool, error) {
	client := redis.Client()
	if client == nil {
		return 0, false, nil
	}

	ttl, err := client.TTL(ctx, blockedLoginUserPrefix+email).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get block TTL: %w", err)
	}
	if ttl < 0 {
		return 0, false, nil
	}

	return ttl, true, nil
}

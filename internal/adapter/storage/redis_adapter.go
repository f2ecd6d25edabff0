package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/shophub/internal/port"
)

const (
	otpKeyPrefix      = "otp:"
	cooldownKeyPrefix = "otp_cooldown:"
)

// Returns 0 when no code is pending, -1 on mismatch, 1 when the code
// matched and was deleted.
var consumeOTPScript = redis.NewScript(`
local key = KEYS[1]
local code = ARGV[1]

local current = redis.call('GET', key)
if not current then
	return 0
end

if current ~= code then
	return -1
end

redis.call('DEL', key)
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SaveOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	if err := r.client.Set(ctx, otpKeyPrefix+email, code, ttl).Err(); err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

func (r *RedisAdapter) ConsumeOTP(ctx context.Context, email, code string) (port.OTPResult, error) {
	result, err := consumeOTPScript.Run(ctx, r.client, []string{otpKeyPrefix + email}, code).Int()
	if err != nil {
		return port.OTPMissing, fmt.Errorf("consume otp: %w", err)
	}

	switch result {
	case 1:
		return port.OTPMatched, nil
	case -1:
		return port.OTPMismatch, nil
	default:
		return port.OTPMissing, nil
	}
}

func (r *RedisAdapter) AcquireResendSlot(ctx context.Context, email string, cooldown time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, cooldownKeyPrefix+email, 1, cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("acquire resend slot: %w", err)
	}

	return ok, nil
}

func (r *RedisAdapter) DeleteOTP(ctx context.Context, email string) error {
	return r.client.Del(ctx, otpKeyPrefix+email).Err()
}

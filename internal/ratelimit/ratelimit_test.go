package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/invoicekit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestDisabledLimiterAllows(t *testing.T) {
	limiter, err := NewLoginLimiter(fxtest.NewLifecycle(t), config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), ScopeAdminLogin, "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestEnabledLimiterNeedsRedisAddr(t *testing.T) {
	_, err := NewLoginLimiter(fxtest.NewLifecycle(t), config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, LoginRate: 1, LoginBurst: 1},
	}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewLoginLimiter(fxtest.NewLifecycle(t), config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, RedisAddr: "localhost:6379"},
	}, zap.NewNop())
	assert.Error(t, err)
}

func TestBuildResultRetryAfter(t *testing.T) {
	res := buildResult(false, 0, 1_000, 0.5, 10)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2*time.Second, res.RetryAfter)
	assert.Equal(t, 10, res.Limit)

	res = buildResult(true, 4, 1_000, 0.5, 10)
	assert.True(t, res.Allowed)
	assert.Zero(t, res.RetryAfter)
	assert.Equal(t, 4, res.Remaining)
}

func TestBucketTTLAndCasts(t *testing.T) {
	assert.Equal(t, 40*time.Second, defaultBucketTTL(0.5, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 10))

	assert.Equal(t, int64(3), castToInt("3"))
	assert.Equal(t, int64(2), castToInt(2.9))
	assert.Equal(t, 1.5, castToFloat("1.5"))
	assert.Zero(t, castToFloat(nil))
}

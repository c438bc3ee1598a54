package pricing

import (
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
	"time"
)

const (
	testKey     = "referral_amount"
	testChannel = "pricing"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, *logrus.Logger) {
	mr := miniredis.RunT(t)
	rd := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rd.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return mr, rd, logger
}

func amountIs(r *Redis, want int64) func() bool {
	return func() bool { return r.ReferralAmount().Equal(decimal.NewFromInt(want)) }
}

func TestGetReferralAmount(t *testing.T) {
	mr, rd, _ := newTestRedis(t)
	ctx := context.Background()

	_, err := getReferralAmount(ctx, rd, testKey)
	assert.Error(t, err)

	for _, bad := range []string{"0", "-5", "abc", ""} {
		require.NoError(t, mr.Set(testKey, bad))
		_, err = getReferralAmount(ctx, rd, testKey)
		assert.Error(t, err, bad)
	}

	require.NoError(t, mr.Set(testKey, "2500.50"))
	amount, err := getReferralAmount(ctx, rd, testKey)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2500.50").Equal(amount))
}

func TestRedis_FallbackUntilKeyExists(t *testing.T) {
	_, rd, logger := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRedis(ctx, logger, rd, testKey, testChannel, decimal.NewFromInt(2000))
	assert.True(t, amountIs(r, 2000)())
}

func TestRedis_LoadsExistingKey(t *testing.T) {
	mr, rd, logger := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, mr.Set(testKey, "1500"))

	r := NewRedis(ctx, logger, rd, testKey, testChannel, decimal.NewFromInt(2000))
	assert.True(t, amountIs(r, 1500)())
}

func TestRedis_ReloadsOnUpdate(t *testing.T) {
	mr, rd, logger := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRedis(ctx, logger, rd, testKey, testChannel, decimal.NewFromInt(2000))
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(testChannel)[testChannel] == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, mr.Set(testKey, "3000"))
	require.NoError(t, rd.Publish(ctx, testChannel, "updated").Err())
	require.Eventually(t, amountIs(r, 3000), time.Second, 10*time.Millisecond)

	// a bad value keeps the current amount
	require.NoError(t, mr.Set(testKey, "-1"))
	require.NoError(t, rd.Publish(ctx, testChannel, "updated").Err())

	require.NoError(t, mr.Set(testKey, "3500"))
	require.NoError(t, rd.Publish(ctx, testChannel, "updated").Err())
	require.Eventually(t, amountIs(r, 3500), time.Second, 10*time.Millisecond)

	mr.Del(testKey)
	require.NoError(t, rd.Publish(ctx, testChannel, "updated").Err())
	time.Sleep(50 * time.Millisecond)
	assert.True(t, amountIs(r, 3500)())
}

func TestStatic(t *testing.T) {
	assert.True(t, Static(decimal.NewFromInt(2000)).ReferralAmount().Equal(decimal.NewFromInt(2000)))
}

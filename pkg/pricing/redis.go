package pricing

import (
	"context"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"sync"
	"time"
)

const redisGetTimeout = time.Second * 5

type Redis struct {
	mu     sync.RWMutex
	rd     *redis.Client
	key    string
	amount decimal.Decimal
}

func getReferralAmount(ctx context.Context, rd *redis.Client, key string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, redisGetTimeout)
	defer cancel()

	value, err := rd.Get(ctx, key).Result()
	if err == redis.Nil {
		return decimal.Zero, errors.New("referral amount key was not found")
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get referral amount")
	}

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse referral amount")
	}

	if !amount.IsPositive() {
		return decimal.Zero, errors.Errorf("referral amount %s is not positive", value)
	}

	return amount, nil
}

func NewRedis(ctx context.Context, logger *logrus.Logger, rd *redis.Client, key string, updateCh string, fallback decimal.Decimal) *Redis {
	r := &Redis{rd: rd, key: key, amount: fallback}
	r.reload(ctx, logger)

	sub := rd.Subscribe(ctx, updateCh)
	go func() {
		defer sub.Close()

		logger.Debug("waiting for referral amount to be updated")
		ch := sub.Channel()
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				r.reload(ctx, logger)
			case <-ctx.Done():
				return
			}
		}
	}()

	return r
}

func (r *Redis) reload(ctx context.Context, logger *logrus.Logger) {
	amount, err := getReferralAmount(ctx, r.rd, r.key)
	if err != nil {
		logger.WithField("key", r.key).WithError(err).Warn("keeping current referral amount")
		return
	}

	r.mu.Lock()
	r.amount = amount
	r.mu.Unlock()

	logger.WithField("amount", amount.String()).Info("updated referral amount")
}

func (r *Redis) ReferralAmount() decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.amount
}

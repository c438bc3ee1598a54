package storage

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/go-redis/redis/v8"
	"github.com/mailru/easyjson"
	"github.com/pkg/errors"
)

type Redis struct {
	rd       *redis.Client
	payoutCh string
}

func NewRedis(rd *redis.Client, payoutCh string) *Redis {
	return &Redis{rd: rd, payoutCh: payoutCh}
}

func (d *Redis) Name() string {
	return "redis"
}

func (d *Redis) Save(ctx context.Context, settlements []pkg.Settlement) error {
	for _, s := range settlements {
		if s.Payout == nil {
			continue
		}

		payload, err := easyjson.Marshal(s)
		if err != nil {
			return errors.Wrap(err, "marshal settlement")
		}

		if err = d.rd.Publish(ctx, d.payoutCh, payload).Err(); err != nil {
			return errors.Wrap(err, "publish to channel "+d.payoutCh)
		}
	}

	return nil
}

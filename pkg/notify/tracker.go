package notify

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/pkg/errors"
)

type Store interface {
	FindByID(ctx context.Context, userID int64) (*pkg.User, error)
	ListUnnotified(ctx context.Context) ([]pkg.Payout, error)
	MarkNotified(ctx context.Context, payoutID int64) error
}

type Delivery struct {
	Payout    pkg.Payout
	Recipient *pkg.User
}

type Tracker struct {
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

func (t *Tracker) ListUnnotified(ctx context.Context) ([]pkg.Payout, error) {
	return t.store.ListUnnotified(ctx)
}

func (t *Tracker) MarkNotified(ctx context.Context, payoutID int64) error {
	return t.store.MarkNotified(ctx, payoutID)
}

func (t *Tracker) Pending(ctx context.Context) ([]Delivery, error) {
	payouts, err := t.store.ListUnnotified(ctx)
	if err != nil {
		return nil, err
	}

	var recipients = make(map[int64]*pkg.User)
	var deliveries = make([]Delivery, 0, len(payouts))
	for _, payout := range payouts {
		recipient, ok := recipients[payout.UserID]
		if !ok {
			recipient, err = t.store.FindByID(ctx, payout.UserID)
			if err != nil {
				return nil, errors.Wrapf(err, "recipient of payout %d", payout.ID)
			}
			recipients[payout.UserID] = recipient
		}

		deliveries = append(deliveries, Delivery{Payout: payout, Recipient: recipient})
	}

	return deliveries, nil
}

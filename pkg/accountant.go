package pkg

import (
	"context"
	"github.com/aim-pay/accountant/pkg/monitoring"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"time"
)

type Base struct {
	ledger          Ledger
	resolver        Resolver
	issuer          Issuer
	pricing         Pricing
	logger          *logrus.Logger
	now             func() time.Time
	UpdateTimeout   time.Duration
	StopSaveOnError bool

	storages []Storage
}

func NewDefault(logger *logrus.Logger, ledger Ledger, resolver Resolver, issuer Issuer, pricing Pricing, storages ...Storage) *Base {
	return &Base{
		ledger:          ledger,
		resolver:        resolver,
		issuer:          issuer,
		pricing:         pricing,
		logger:          logger,
		now:             time.Now,
		UpdateTimeout:   time.Second * 5,
		StopSaveOnError: false,
		storages:        storages,
	}
}

func (d *Base) Ledger() Ledger {
	return d.ledger
}

// the payment id is the idempotency key, replays return ErrDuplicateEvent
func (d *Base) PaymentSucceeded(ctx context.Context, paymentID, externalID string) (*Settlement, error) {
	if paymentID == "" {
		return nil, errors.New("empty payment id")
	}

	var settlement *Settlement
	err := d.ledger.Update(ctx, externalID, func(tx Tx) error {
		settlement = &Settlement{PaymentID: paymentID}
		user := tx.User()

		payment := &Payment{ID: paymentID, UserID: user.ID, Status: StatusSucceeded, Qualified: !user.Paid()}
		if err := tx.RecordPayment(ctx, payment); err != nil {
			return err
		}

		settlement.Qualified = payment.Qualified
		if !payment.Qualified {
			settlement.User = *user
			return nil
		}

		if err := tx.MarkPaid(ctx, user.ID); err != nil {
			return err
		}
		settlement.User = *user

		referrer, err := d.resolver.ResolveReferrerFor(ctx, tx, user)
		if err != nil || referrer == nil {
			return err
		}

		payout, err := d.issuer.IssuePayout(ctx, tx, referrer, d.pricing.ReferralAmount(), paymentID)
		if err != nil {
			return err
		}

		edge := &ReferralEdge{ReferrerID: referrer.ID, ReferredID: user.ID, PaymentID: paymentID}
		if err = tx.CreateReferral(ctx, edge); err != nil {
			return err
		}

		settlement.Referrer = referrer
		settlement.Payout = payout
		settlement.Referral = edge
		return nil
	})

	switch {
	case errors.Is(err, ErrDuplicateEvent):
		monitoring.Settlements.WithLabelValues(monitoring.OutcomeDuplicate).Inc()
		return nil, err
	case err != nil:
		monitoring.Settlements.WithLabelValues(monitoring.OutcomeError).Inc()
		return nil, err
	}

	settlement.SettledAt = d.now()

	fields := logrus.Fields{
		"payment_id":  paymentID,
		"external_id": externalID,
		"qualified":   settlement.Qualified,
	}
	if settlement.Qualified {
		monitoring.Settlements.WithLabelValues(monitoring.OutcomeQualified).Inc()
	} else {
		monitoring.Settlements.WithLabelValues(monitoring.OutcomeUnqualified).Inc()
	}
	if settlement.Payout != nil {
		monitoring.PayoutsIssued.Inc()
		fields["payout_id"] = settlement.Payout.ID
		fields["referrer_id"] = settlement.Referrer.ExternalID
	}
	d.logger.WithFields(fields).Info("settled payment")

	return settlement, d.save(settlement)
}

func (d *Base) save(settlement *Settlement) error {
	batch := []Settlement{*settlement}

	for _, storage := range d.storages {
		ctx, cancel := context.WithTimeout(context.Background(), d.UpdateTimeout)
		err := storage.Save(ctx, batch)
		cancel()
		if err != nil {
			monitoring.StorageErrors.WithLabelValues(storage.Name()).Inc()
			if d.StopSaveOnError {
				return errors.Wrap(err, storage.Name())
			}

			d.logger.WithFields(logrus.Fields{
				"payment_id": settlement.PaymentID,
				"storage":    storage.Name(),
			}).WithError(err).Error("failed to save settlement to storage")
		}
	}

	return nil
}

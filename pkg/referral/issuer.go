package referral

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrInvalidAmount = errors.New("payout amount must be positive")

type Issuer struct {
	logger *logrus.Logger
}

func NewIssuer(logger *logrus.Logger) *Issuer {
	return &Issuer{logger: logger}
}

// a replay gets the existing payout back with ErrDuplicateEvent
func (i *Issuer) IssuePayout(ctx context.Context, tx pkg.Tx, recipient *pkg.User, amount decimal.Decimal, paymentID string) (*pkg.Payout, error) {
	existing, err := tx.PayoutForPayment(ctx, paymentID)
	if err == nil {
		return existing, errors.Wrap(pkg.ErrDuplicateEvent, "payout for payment "+paymentID)
	}
	if !errors.Is(err, pkg.ErrNotFound) {
		return nil, err
	}

	if !amount.IsPositive() {
		return nil, errors.Wrap(ErrInvalidAmount, amount.String())
	}

	payout := &pkg.Payout{UserID: recipient.ID, Amount: amount, PaymentID: paymentID}
	if err = tx.CreatePayout(ctx, payout); err != nil {
		return nil, err
	}

	i.logger.WithFields(logrus.Fields{
		"payout_id":   payout.ID,
		"payment_id":  paymentID,
		"referrer_id": recipient.ExternalID,
		"amount":      amount.String(),
	}).Debug("staged referral payout")

	return payout, nil
}

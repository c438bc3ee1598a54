package checkout

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/aim-pay/accountant/pkg/yookassa"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultDescription = "Course payment"

var ErrNoConfirmation = errors.New("gateway returned no confirmation url")

type UserFinder interface {
	FindByExternalID(ctx context.Context, externalID string) (*pkg.User, error)
}

type Gateway interface {
	CreatePayment(ctx context.Context, req yookassa.PaymentRequest) (*yookassa.Payment, error)
	GetPayment(ctx context.Context, id string) (*yookassa.Payment, error)
}

type Checkout struct {
	users     UserFinder
	gateway   Gateway
	amount    decimal.Decimal
	returnURL string
	logger    *logrus.Logger
}

func New(logger *logrus.Logger, users UserFinder, gateway Gateway, amount decimal.Decimal, returnURL string) *Checkout {
	return &Checkout{users: users, gateway: gateway, amount: amount, returnURL: returnURL, logger: logger}
}

func (c *Checkout) Amount() decimal.Decimal {
	return c.amount
}

func (c *Checkout) Create(ctx context.Context, externalID, description string) (*yookassa.Payment, error) {
	user, err := c.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if user.Paid() {
		return nil, errors.Wrap(pkg.ErrAlreadyPaid, "user "+externalID)
	}

	if description == "" {
		description = DefaultDescription
	}

	payment, err := c.gateway.CreatePayment(ctx, yookassa.PaymentRequest{
		Amount:      c.amount,
		Description: description,
		ReturnURL:   c.returnURL,
		Metadata:    map[string]string{"telegram_id": user.ExternalID},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create payment")
	}

	if payment.ConfirmationURL == "" {
		return nil, errors.Wrap(ErrNoConfirmation, payment.ID)
	}

	c.logger.WithFields(logrus.Fields{
		"external_id": externalID,
		"payment_id":  payment.ID,
		"amount":      c.amount.String(),
	}).Info("created payment")

	return payment, nil
}

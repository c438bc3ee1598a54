package checkout

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/aim-pay/accountant/pkg/ledger"
	"github.com/aim-pay/accountant/pkg/yookassa"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

type fakeGateway struct {
	requests []yookassa.PaymentRequest
	noURL    bool
	err      error
}

func (f *fakeGateway) CreatePayment(_ context.Context, req yookassa.PaymentRequest) (*yookassa.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)

	p := &yookassa.Payment{ID: "pay-1", Status: "pending", Amount: req.Amount, Metadata: req.Metadata}
	if !f.noURL {
		p.ConfirmationURL = "https://yoomoney.ru/checkout/pay-1"
	}
	return p, nil
}

func (f *fakeGateway) GetPayment(_ context.Context, id string) (*yookassa.Payment, error) {
	return &yookassa.Payment{ID: id}, nil
}

func newCheckout(t *testing.T) (*Checkout, *fakeGateway, *ledger.Memory) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := ledger.NewMemory()
	_, err := store.Register(context.Background(), "42", "alice", "")
	require.NoError(t, err)

	gw := &fakeGateway{}
	return New(logger, store, gw, decimal.NewFromInt(6000), "tg://resolve?domain=AiM_Pay_Bot"), gw, store
}

func TestCheckout_Create(t *testing.T) {
	co, gw, _ := newCheckout(t)

	payment, err := co.Create(context.Background(), "42", "")
	require.NoError(t, err)
	assert.Equal(t, "https://yoomoney.ru/checkout/pay-1", payment.ConfirmationURL)

	require.Len(t, gw.requests, 1)
	req := gw.requests[0]
	assert.True(t, decimal.NewFromInt(6000).Equal(req.Amount))
	assert.Equal(t, DefaultDescription, req.Description)
	assert.Equal(t, "tg://resolve?domain=AiM_Pay_Bot", req.ReturnURL)
	assert.Equal(t, map[string]string{"telegram_id": "42"}, req.Metadata)

	_, err = co.Create(context.Background(), "42", "Course for Alice")
	require.NoError(t, err)
	assert.Equal(t, "Course for Alice", gw.requests[1].Description)
}

func TestCheckout_Errors(t *testing.T) {
	ctx := context.Background()
	co, gw, store := newCheckout(t)

	_, err := co.Create(ctx, "7", "")
	assert.True(t, errors.Is(err, pkg.ErrNotFound))

	gw.noURL = true
	_, err = co.Create(ctx, "42", "")
	assert.True(t, errors.Is(err, ErrNoConfirmation))

	gw.err = errors.New("connection refused")
	_, err = co.Create(ctx, "42", "")
	assert.EqualError(t, err, "create payment: connection refused")

	user, err := store.FindByExternalID(ctx, "42")
	require.NoError(t, err)
	require.NoError(t, store.MarkPaid(ctx, user.ID))

	_, err = co.Create(ctx, "42", "")
	assert.True(t, errors.Is(err, pkg.ErrAlreadyPaid))
}

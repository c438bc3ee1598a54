package pkg_test

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/aim-pay/accountant/pkg/ledger"
	"github.com/aim-pay/accountant/pkg/pricing"
	"github.com/aim-pay/accountant/pkg/referral"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"sync"
	"testing"
)

var referralAmount = decimal.NewFromInt(2000)

type recordingStorage struct {
	mu    sync.Mutex
	saved []pkg.Settlement
	err   error
}

func (s *recordingStorage) Name() string {
	return "recording"
}

func (s *recordingStorage) Save(_ context.Context, settlements []pkg.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saved = append(s.saved, settlements...)
	return s.err
}

func newAccountant(t *testing.T, storages ...pkg.Storage) (*pkg.Base, *ledger.Memory) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m := ledger.NewMemory()
	return pkg.NewDefault(logger, m,
		referral.NewResolver(logger),
		referral.NewIssuer(logger),
		pricing.Static(referralAmount),
		storages...,
	), m
}

func register(t *testing.T, m *ledger.Memory, externalID, hint string) *pkg.User {
	t.Helper()

	u, err := m.Register(context.Background(), externalID, "user"+externalID, hint)
	require.NoError(t, err)
	return u
}

func TestPaymentSucceeded_ReferredUser(t *testing.T) {
	ctx := context.Background()
	store := &recordingStorage{}
	accountant, m := newAccountant(t, store)

	a := register(t, m, "A", "")
	b := register(t, m, "B", "A")

	settlement, err := accountant.PaymentSucceeded(ctx, "pay-b", "B")
	require.NoError(t, err)
	assert.True(t, settlement.Qualified)
	require.NotNil(t, settlement.Payout)
	assert.Equal(t, a.ID, settlement.Payout.UserID)
	assert.True(t, referralAmount.Equal(settlement.Payout.Amount))
	require.NotNil(t, settlement.Referral)
	assert.Equal(t, a.ID, settlement.Referral.ReferrerID)
	assert.Equal(t, b.ID, settlement.Referral.ReferredID)
	assert.Equal(t, pkg.StatusPaid, settlement.User.PaymentStatus)

	b, err = m.FindByExternalID(ctx, "B")
	require.NoError(t, err)
	assert.True(t, b.Paid())

	count, err := m.CountReferralsFor(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pending, err := m.ListUnnotified(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].UserID)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "pay-b", store.saved[0].PaymentID)
}

func TestPaymentSucceeded_UnresolvableHint(t *testing.T) {
	ctx := context.Background()
	accountant, m := newAccountant(t)

	register(t, m, "C", "999")

	settlement, err := accountant.PaymentSucceeded(ctx, "pay-c", "C")
	require.NoError(t, err)
	assert.True(t, settlement.Qualified)
	assert.Nil(t, settlement.Payout)
	assert.Nil(t, settlement.Referral)
	assert.Nil(t, settlement.Referrer)

	c, err := m.FindByExternalID(ctx, "C")
	require.NoError(t, err)
	assert.True(t, c.Paid())

	pending, err := m.ListUnnotified(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPaymentSucceeded_Replay(t *testing.T) {
	ctx := context.Background()
	store := &recordingStorage{}
	accountant, m := newAccountant(t, store)

	a := register(t, m, "A", "")
	register(t, m, "B", "A")

	_, err := accountant.PaymentSucceeded(ctx, "pay-b", "B")
	require.NoError(t, err)

	settlement, err := accountant.PaymentSucceeded(ctx, "pay-b", "B")
	assert.True(t, errors.Is(err, pkg.ErrDuplicateEvent))
	assert.Nil(t, settlement)

	pending, err := m.ListUnnotified(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	count, err := m.CountReferralsFor(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Len(t, store.saved, 1)
}

func TestPaymentSucceeded_ConcurrentReplays(t *testing.T) {
	ctx := context.Background()
	accountant, m := newAccountant(t)

	a := register(t, m, "A", "")
	register(t, m, "B", "A")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := accountant.PaymentSucceeded(ctx, "pay-b", "B")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var settled, duplicates int
	for err := range errs {
		switch {
		case err == nil:
			settled++
		case errors.Is(err, pkg.ErrDuplicateEvent):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, 7, duplicates)

	pending, err := m.ListUnnotified(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	count, err := m.CountReferralsFor(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPaymentSucceeded_SecondPaymentOfPaidUser(t *testing.T) {
	ctx := context.Background()
	accountant, m := newAccountant(t)

	register(t, m, "A", "")
	register(t, m, "B", "A")

	_, err := accountant.PaymentSucceeded(ctx, "pay-1", "B")
	require.NoError(t, err)

	settlement, err := accountant.PaymentSucceeded(ctx, "pay-2", "B")
	require.NoError(t, err)
	assert.False(t, settlement.Qualified)
	assert.Nil(t, settlement.Payout)

	pending, err := m.ListUnnotified(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPaymentSucceeded_UnknownUser(t *testing.T) {
	accountant, _ := newAccountant(t)

	_, err := accountant.PaymentSucceeded(context.Background(), "pay-x", "nobody")
	assert.True(t, errors.Is(err, pkg.ErrNotFound))
}

func TestPaymentSucceeded_EmptyPaymentID(t *testing.T) {
	accountant, m := newAccountant(t)
	register(t, m, "A", "")

	_, err := accountant.PaymentSucceeded(context.Background(), "", "A")
	assert.Error(t, err)

	a, err := m.FindByExternalID(context.Background(), "A")
	require.NoError(t, err)
	assert.False(t, a.Paid())
}

func TestPaymentSucceeded_StorageErrors(t *testing.T) {
	ctx := context.Background()
	failing := &recordingStorage{err: errors.New("unavailable")}
	next := &recordingStorage{}
	accountant, m := newAccountant(t, failing, next)

	register(t, m, "A", "")
	register(t, m, "B", "")

	settlement, err := accountant.PaymentSucceeded(ctx, "pay-a", "A")
	require.NoError(t, err)
	require.NotNil(t, settlement)
	assert.Len(t, next.saved, 1)

	accountant.StopSaveOnError = true
	settlement, err = accountant.PaymentSucceeded(ctx, "pay-b", "B")
	assert.Error(t, err)
	require.NotNil(t, settlement, "the ledger has already committed")
	assert.Len(t, next.saved, 1)
}

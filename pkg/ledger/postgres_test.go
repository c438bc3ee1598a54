package ledger

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"strconv"
	"testing"
	"time"
)

// newTestPostgres connects to POSTGRES_TEST_DSN and applies the schema.
// Every test uses external ids with a unique prefix so runs do not collide.
func newTestPostgres(t *testing.T) (*Postgres, string) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, ApplySchema(ctx, db))

	return NewPostgres(db), strconv.FormatInt(time.Now().UnixNano(), 36) + "-"
}

func TestPostgres_RegisterAndFind(t *testing.T) {
	p, prefix := newTestPostgres(t)
	ctx := context.Background()

	u, err := p.Register(ctx, prefix+"1", "alice", " 999 ")
	require.NoError(t, err)
	assert.Equal(t, "999", u.ReferrerHint)
	assert.Equal(t, pkg.StatusUnpaid, u.PaymentStatus)

	found, err := p.FindByExternalID(ctx, prefix+"1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	byID, err := p.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, prefix+"1", byID.ExternalID)

	_, err = p.Register(ctx, prefix+"1", "alice", "")
	assert.True(t, errors.Is(err, pkg.ErrAlreadyExists))

	_, err = p.FindByExternalID(ctx, prefix+"missing")
	assert.True(t, errors.Is(err, pkg.ErrNotFound))
}

func TestPostgres_MarkPaidIdempotent(t *testing.T) {
	p, prefix := newTestPostgres(t)
	ctx := context.Background()

	u, err := p.Register(ctx, prefix+"1", "alice", "")
	require.NoError(t, err)

	require.NoError(t, p.MarkPaid(ctx, u.ID))
	require.NoError(t, p.MarkPaid(ctx, u.ID))

	u, err = p.FindByExternalID(ctx, prefix+"1")
	require.NoError(t, err)
	assert.True(t, u.Paid())

	assert.True(t, errors.Is(p.MarkPaid(ctx, -1), pkg.ErrNotFound))
}

func TestPostgres_UpdateAndReplay(t *testing.T) {
	p, prefix := newTestPostgres(t)
	ctx := context.Background()

	alice, err := p.Register(ctx, prefix+"a", "alice", "")
	require.NoError(t, err)
	_, err = p.Register(ctx, prefix+"b", "bob", prefix+"a")
	require.NoError(t, err)

	paymentID := prefix + "payment"
	settle := func(tx pkg.Tx) error {
		bob := tx.User()
		if err := tx.RecordPayment(ctx, &pkg.Payment{ID: paymentID, UserID: bob.ID, Status: pkg.StatusSucceeded, Qualified: true}); err != nil {
			return err
		}
		if err := tx.MarkPaid(ctx, bob.ID); err != nil {
			return err
		}
		payout := &pkg.Payout{UserID: alice.ID, Amount: decimal.RequireFromString("2000.00"), PaymentID: paymentID}
		if err := tx.CreatePayout(ctx, payout); err != nil {
			return err
		}
		return tx.CreateReferral(ctx, &pkg.ReferralEdge{ReferrerID: alice.ID, ReferredID: bob.ID, PaymentID: paymentID})
	}

	require.NoError(t, p.Update(ctx, prefix+"b", settle))
	assert.True(t, errors.Is(p.Update(ctx, prefix+"b", settle), pkg.ErrDuplicateEvent))

	n, err := p.CountReferralsFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := p.ListUnnotified(ctx)
	require.NoError(t, err)

	var mine []pkg.Payout
	for _, payout := range pending {
		if payout.PaymentID == paymentID {
			mine = append(mine, payout)
		}
	}
	require.Len(t, mine, 1)
	assert.True(t, decimal.NewFromInt(2000).Equal(mine[0].Amount))

	require.NoError(t, p.MarkNotified(ctx, mine[0].ID))
	require.NoError(t, p.MarkNotified(ctx, mine[0].ID))
	assert.True(t, errors.Is(p.MarkNotified(ctx, -1), pkg.ErrNotFound))
}

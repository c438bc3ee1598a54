package ledger

import (
	"context"
	"database/sql"
	"github.com/aim-pay/accountant/pkg"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"strings"
)

const uniqueViolation = "23505"

const (
	userColumns = `id, external_id, display_name, referrer_hint, payment_status, created_at`

	insertUserSQL = `INSERT INTO users (external_id, display_name, referrer_hint)
					 VALUES ($1, $2, $3)
					 ON CONFLICT (external_id) DO NOTHING
					 RETURNING ` + userColumns
	selectUserSQL          = `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	selectUserForUpdateSQL = selectUserSQL + ` FOR UPDATE`
	selectUserByIDSQL      = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	markPaidSQL            = `UPDATE users SET payment_status = 'paid' WHERE id = $1`

	countReferralsSQL = `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1`
	insertReferralSQL = `INSERT INTO referrals (referrer_id, referred_id, payment_id)
						 VALUES ($1, $2, $3)
						 ON CONFLICT (referred_id) DO NOTHING
						 RETURNING id, created_at`

	insertPaymentSQL = `INSERT INTO payments (id, user_id, status, qualified)
						VALUES ($1, $2, $3, $4)
						ON CONFLICT (id) DO NOTHING
						RETURNING processed_at`

	payoutColumns            = `id, user_id, amount, payment_id, created_at, notified`
	selectPayoutByPaymentSQL = `SELECT ` + payoutColumns + ` FROM payouts WHERE payment_id = $1`
	selectUnnotifiedSQL      = `SELECT ` + payoutColumns + ` FROM payouts WHERE NOT notified ORDER BY id`
	markNotifiedSQL          = `UPDATE payouts SET notified = TRUE WHERE id = $1`
	insertPayoutSQL          = `INSERT INTO payouts (user_id, amount, payment_id)
								VALUES ($1, $2, $3)
								ON CONFLICT (payment_id) DO NOTHING
								RETURNING id, created_at, notified`
)

type Postgres struct {
	pg *sqlx.DB
}

func NewPostgres(pg *sqlx.DB) *Postgres {
	return &Postgres{pg: pg}
}

func (p *Postgres) Register(ctx context.Context, externalID, displayName, referrerHint string) (*pkg.User, error) {
	var user pkg.User
	err := p.pg.GetContext(ctx, &user, insertUserSQL, externalID, displayName, strings.TrimSpace(referrerHint))
	if err == sql.ErrNoRows || isUniqueViolation(err) {
		return nil, errors.Wrap(pkg.ErrAlreadyExists, "user "+externalID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert user")
	}

	return &user, nil
}

func (p *Postgres) FindByExternalID(ctx context.Context, externalID string) (*pkg.User, error) {
	return findUser(ctx, p.pg, selectUserSQL, externalID)
}

func (p *Postgres) FindByID(ctx context.Context, userID int64) (*pkg.User, error) {
	var user pkg.User
	err := p.pg.GetContext(ctx, &user, selectUserByIDSQL, userID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(pkg.ErrNotFound, "user %d", userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user")
	}

	return &user, nil
}

func (p *Postgres) MarkPaid(ctx context.Context, userID int64) error {
	return markPaid(ctx, p.pg, userID)
}

func (p *Postgres) CountReferralsFor(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := p.pg.GetContext(ctx, &n, countReferralsSQL, userID); err != nil {
		return 0, errors.Wrap(err, "count referrals")
	}

	return n, nil
}

func (p *Postgres) ListUnnotified(ctx context.Context) ([]pkg.Payout, error) {
	var payouts = make([]pkg.Payout, 0)
	if err := p.pg.SelectContext(ctx, &payouts, selectUnnotifiedSQL); err != nil {
		return nil, errors.Wrap(err, "select unnotified payouts")
	}

	return payouts, nil
}

func (p *Postgres) MarkNotified(ctx context.Context, payoutID int64) error {
	res, err := p.pg.ExecContext(ctx, markNotifiedSQL, payoutID)
	if err != nil {
		return errors.Wrap(err, "mark notified")
	}

	return expectRow(res, errors.Wrapf(pkg.ErrNotFound, "payout %d", payoutID))
}

func (p *Postgres) Update(ctx context.Context, externalID string, fn func(pkg.Tx) error) error {
	tx, err := p.pg.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "BeginTx")
	}
	defer tx.Rollback()

	user, err := findUser(ctx, tx, selectUserForUpdateSQL, externalID)
	if err != nil {
		return err
	}

	if err = fn(&postgresTx{tx: tx, user: user}); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "Commit")
}

type postgresTx struct {
	tx   *sqlx.Tx
	user *pkg.User
}

func (t *postgresTx) User() *pkg.User {
	return t.user
}

func (t *postgresTx) FindByExternalID(ctx context.Context, externalID string) (*pkg.User, error) {
	return findUser(ctx, t.tx, selectUserSQL, externalID)
}

func (t *postgresTx) MarkPaid(ctx context.Context, userID int64) error {
	if err := markPaid(ctx, t.tx, userID); err != nil {
		return err
	}

	if t.user.ID == userID {
		t.user.PaymentStatus = pkg.StatusPaid
	}

	return nil
}

func (t *postgresTx) RecordPayment(ctx context.Context, payment *pkg.Payment) error {
	err := t.tx.GetContext(ctx, &payment.ProcessedAt, insertPaymentSQL,
		payment.ID, payment.UserID, payment.Status, payment.Qualified)
	if err == sql.ErrNoRows {
		return errors.Wrap(pkg.ErrDuplicateEvent, "payment "+payment.ID)
	}

	return errors.Wrap(err, "insert payment")
}

func (t *postgresTx) PayoutForPayment(ctx context.Context, paymentID string) (*pkg.Payout, error) {
	var payout pkg.Payout
	err := t.tx.GetContext(ctx, &payout, selectPayoutByPaymentSQL, paymentID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(pkg.ErrNotFound, "payout for payment "+paymentID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select payout")
	}

	return &payout, nil
}

func (t *postgresTx) CreatePayout(ctx context.Context, payout *pkg.Payout) error {
	row := t.tx.QueryRowxContext(ctx, insertPayoutSQL, payout.UserID, payout.Amount, payout.PaymentID)
	err := row.Scan(&payout.ID, &payout.CreatedAt, &payout.Notified)
	if err == sql.ErrNoRows {
		return errors.Wrap(pkg.ErrDuplicateEvent, "payout for payment "+payout.PaymentID)
	}

	return errors.Wrap(err, "insert payout")
}

func (t *postgresTx) CreateReferral(ctx context.Context, edge *pkg.ReferralEdge) error {
	row := t.tx.QueryRowxContext(ctx, insertReferralSQL, edge.ReferrerID, edge.ReferredID, edge.PaymentID)
	err := row.Scan(&edge.ID, &edge.CreatedAt)
	if err == sql.ErrNoRows {
		return errors.Wrapf(pkg.ErrDuplicateEvent, "referral of user %d", edge.ReferredID)
	}

	return errors.Wrap(err, "insert referral")
}

func findUser(ctx context.Context, q sqlx.QueryerContext, query, externalID string) (*pkg.User, error) {
	var user pkg.User
	err := sqlx.GetContext(ctx, q, &user, query, externalID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(pkg.ErrNotFound, "user "+externalID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user")
	}

	return &user, nil
}

func markPaid(ctx context.Context, e sqlx.ExecerContext, userID int64) error {
	res, err := e.ExecContext(ctx, markPaidSQL, userID)
	if err != nil {
		return errors.Wrap(err, "mark paid")
	}

	return expectRow(res, errors.Wrapf(pkg.ErrNotFound, "user %d", userID))
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "RowsAffected")
	}

	if n == 0 {
		return notFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

package ledger

import (
	"context"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id             BIGSERIAL PRIMARY KEY,
		external_id    TEXT NOT NULL UNIQUE,
		display_name   TEXT NOT NULL DEFAULT '',
		referrer_hint  TEXT NOT NULL DEFAULT '',
		payment_status TEXT NOT NULL DEFAULT 'unpaid' CHECK (payment_status IN ('unpaid', 'paid')),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id           TEXT PRIMARY KEY,
		user_id      BIGINT NOT NULL REFERENCES users(id),
		status       TEXT NOT NULL,
		qualified    BOOLEAN NOT NULL DEFAULT FALSE,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS referrals (
		id          BIGSERIAL PRIMARY KEY,
		referrer_id BIGINT NOT NULL REFERENCES users(id),
		referred_id BIGINT NOT NULL UNIQUE REFERENCES users(id),
		payment_id  TEXT NOT NULL REFERENCES payments(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS referrals_referrer_id_idx ON referrals (referrer_id)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL REFERENCES users(id),
		amount     NUMERIC(12, 2) NOT NULL,
		payment_id TEXT NOT NULL UNIQUE REFERENCES payments(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		notified   BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS payouts_pending_idx ON payouts (id) WHERE NOT notified`,
}

func ApplySchema(ctx context.Context, pg *sqlx.DB) error {
	tx, err := pg.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "BeginTx")
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}

	return tx.Commit()
}

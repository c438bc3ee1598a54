package storage

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type ClickHouse struct {
	ch *sqlx.DB
}

const chCreateSettlements = `CREATE TABLE IF NOT EXISTS settlements (
								payment_id   String,
								user_id      Int64,
								external_id  String,
								qualified    UInt8,
								referrer_id  Int64,
								payout_id    Int64,
								amount       Float64,
								timestamp    DateTime,
								date         Date
							 ) ENGINE = MergeTree() PARTITION BY toYYYYMM(date) ORDER BY (date, payment_id)`

const chInsertSettlements = `INSERT INTO settlements(payment_id, user_id, external_id, qualified, referrer_id, payout_id, amount, timestamp, date)
								VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func NewClickHouse(ch *sqlx.DB) *ClickHouse {
	return &ClickHouse{ch: ch}
}

func (d *ClickHouse) Name() string {
	return "clickhouse"
}

func (d *ClickHouse) Migrate(ctx context.Context) error {
	_, err := d.ch.ExecContext(ctx, chCreateSettlements)
	return errors.Wrap(err, "create settlements")
}

func (d *ClickHouse) Save(ctx context.Context, settlements []pkg.Settlement) error {
	tx, err := d.ch.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "BeginTx")
	}

	stmt, err := tx.Prepare(chInsertSettlements)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "Prepare")
	}
	defer stmt.Close()

	for _, row := range settlementRows(settlements) {
		if _, err := stmt.Exec(row...); err != nil {
			log.WithField("settlement", row).Error("stmt.Exec error " + err.Error())
			_ = tx.Rollback()
			return errors.Wrap(err, "")
		}
	}

	return tx.Commit()
}

func settlementRows(settlements []pkg.Settlement) [][]interface{} {
	rows := make([][]interface{}, 0, len(settlements))
	for _, s := range settlements {
		var qualified uint8
		if s.Qualified {
			qualified = 1
		}

		var referrerID, payoutID int64
		var amount float64
		if s.Referrer != nil {
			referrerID = s.Referrer.ID
		}
		if s.Payout != nil {
			payoutID = s.Payout.ID
			amount = s.Payout.Amount.InexactFloat64()
		}

		rows = append(rows, []interface{}{
			s.PaymentID, s.User.ID, s.User.ExternalID, qualified,
			referrerID, payoutID, amount, s.SettledAt, s.SettledAt,
		})
	}

	return rows
}

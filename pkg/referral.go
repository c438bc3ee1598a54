package pkg

import (
	"context"
	"github.com/shopspring/decimal"
	"time"
)

type ReferralEdge struct {
	ID         int64     `json:"id" db:"id"`
	ReferrerID int64     `json:"referrer_id" db:"referrer_id"`
	ReferredID int64     `json:"referred_id" db:"referred_id"`
	PaymentID  string    `json:"payment_id" db:"payment_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Resolver interface {
	ResolveReferrerFor(ctx context.Context, tx Tx, user *User) (*User, error)
}

type Issuer interface {
	IssuePayout(ctx context.Context, tx Tx, recipient *User, amount decimal.Decimal, paymentID string) (*Payout, error)
}

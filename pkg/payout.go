package pkg

import (
	"github.com/shopspring/decimal"
	"time"
)

type Payout struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	PaymentID string          `json:"payment_id" db:"payment_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	Notified  bool            `json:"notified" db:"notified"`
}

type Payment struct {
	ID          string    `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Status      string    `json:"status" db:"status"`
	Qualified   bool      `json:"qualified" db:"qualified"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}

package pkg

import "time"

type PaymentStatus string

const (
	StatusUnpaid PaymentStatus = "unpaid"
	StatusPaid   PaymentStatus = "paid"
)

// ReferrerHint is stored as supplied and resolved only when the user pays
type User struct {
	ID            int64         `json:"id" db:"id"`
	ExternalID    string        `json:"external_id" db:"external_id"`
	DisplayName   string        `json:"display_name" db:"display_name"`
	ReferrerHint  string        `json:"referrer_hint" db:"referrer_hint"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

func (u *User) Paid() bool {
	return u.PaymentStatus == StatusPaid
}

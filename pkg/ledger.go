package pkg

import "context"

type Ledger interface {
	Register(ctx context.Context, externalID, displayName, referrerHint string) (*User, error)
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	FindByID(ctx context.Context, userID int64) (*User, error)
	MarkPaid(ctx context.Context, userID int64) error
	CountReferralsFor(ctx context.Context, userID int64) (int, error)

	ListUnnotified(ctx context.Context) ([]Payout, error)
	MarkNotified(ctx context.Context, payoutID int64) error

	// Update holds the user row lock for the whole of fn; an error from fn rolls back.
	Update(ctx context.Context, externalID string, fn func(Tx) error) error
}

type Tx interface {
	User() *User
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	MarkPaid(ctx context.Context, userID int64) error
	RecordPayment(ctx context.Context, payment *Payment) error
	PayoutForPayment(ctx context.Context, paymentID string) (*Payout, error)
	CreatePayout(ctx context.Context, payout *Payout) error
	CreateReferral(ctx context.Context, edge *ReferralEdge) error
}

package pkg

import "time"

const StatusSucceeded = "succeeded"

// Referrer, Payout and Referral are nil when the payment earned no reward
type Settlement struct {
	PaymentID string
	User      User
	Qualified bool
	Referrer  *User
	Payout    *Payout
	Referral  *ReferralEdge
	SettledAt time.Time
}

type Notification struct {
	Event    string
	ID       string
	Status   string
	Metadata map[string]string
}

func (n *Notification) ExternalID() string {
	return n.Metadata["telegram_id"]
}

func (n *Notification) Succeeded() bool {
	return n.Status == StatusSucceeded && n.ID != "" && n.ExternalID() != ""
}

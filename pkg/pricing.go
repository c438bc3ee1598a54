package pkg

import "github.com/shopspring/decimal"

type Pricing interface {
	ReferralAmount() decimal.Decimal
}

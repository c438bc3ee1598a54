package pricing

import "github.com/shopspring/decimal"

type Static decimal.Decimal

func (s Static) ReferralAmount() decimal.Decimal {
	return decimal.Decimal(s)
}

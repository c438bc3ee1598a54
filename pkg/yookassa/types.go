package yookassa

import (
	"github.com/shopspring/decimal"
)

const Currency = "RUB"

type PaymentRequest struct {
	Amount      decimal.Decimal
	Description string
	ReturnURL   string
	Metadata    map[string]string
}

type Payment struct {
	ID              string
	Status          string
	Paid            bool
	Amount          decimal.Decimal
	ConfirmationURL string
	Metadata        map[string]string
}

type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return "yookassa: " + e.Code + ": " + e.Description
}

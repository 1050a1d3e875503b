package types

import "github.com/shopspring/decimal"

// ReservationRequest is a checkout-session request after boundary
// normalization: every accepted encoding has been collapsed into one flat
// string metadata map before any business rule runs.
type ReservationRequest struct {
	Amount   decimal.Decimal
	Email    string            `validate:"omitempty,email"`
	Metadata map[string]string `validate:"max=50,dive,keys,required,max=40,endkeys,max=500"`

	// CheckinDate is the first check-in value found in Metadata, if any.
	CheckinDate string `validate:"omitempty,iso_date"`
}

// CheckoutRequest is what the provider client needs to create a hosted
// checkout session.
type CheckoutRequest struct {
	AmountMinor        int64
	Currency           string
	ProductName        string
	Email              string
	Metadata           map[string]string
	PaymentMethodTypes []string
	SuccessURL         string
	CancelURL          string

	// KonbiniExpiresAfterDays is sent only when konbini is an allowed method.
	KonbiniExpiresAfterDays int
}

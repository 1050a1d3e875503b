package relay

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"bookingrelay/internal/types"
)

// maxAmountMinor is the largest amount Stripe accepts on a single charge.
const maxAmountMinor = 99_999_999

// Magnitude bounds checked before any shift or rounding. Rescaling a decimal
// costs time proportional to its exponent, so 1e999999999 must be rejected
// on its parsed form.
const (
	minAmountExponent = -18
	maxAmountExponent = 18
	maxIntegerDigits  = 12
)

// Currencies whose minor unit is not 1/100. Stripe expects amounts in these
// already expressed in the smallest unit the currency has.
var (
	zeroDecimalCurrencies = map[string]struct{}{
		"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
		"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
	}
	threeDecimalCurrencies = map[string]struct{}{
		"bhd": {}, "jod": {}, "kwd": {}, "omr": {}, "tnd": {},
	}
)

func invalidAmount(err error) *types.AppError {
	return types.NewAppError(types.ErrCodeValidationInvalidAmount, "Invalid amount", err)
}

// parseAmount accepts a JSON number (decoded with UseNumber), a float, or a
// numeric string. The result is strictly positive.
func parseAmount(v any) (decimal.Decimal, error) {
	var d decimal.Decimal
	var err error

	switch t := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(t.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(t))
	case float64:
		d = decimal.NewFromFloat(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	default:
		return decimal.Zero, invalidAmount(nil)
	}
	if err != nil {
		return decimal.Zero, invalidAmount(err)
	}
	if !d.IsPositive() || !saneMagnitude(d) {
		return decimal.Zero, invalidAmount(nil)
	}
	return d, nil
}

// saneMagnitude reports whether d has a bounded exponent and at most
// maxIntegerDigits digits before the decimal point. It only inspects the
// coefficient and exponent.
func saneMagnitude(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < minAmountExponent || exp > maxAmountExponent {
		return false
	}
	return d.NumDigits()+int(exp) <= maxIntegerDigits
}

// currencyExponent returns the number of decimal places of a currency's
// minor unit.
func currencyExponent(currency string) int32 {
	c := strings.ToLower(currency)
	if _, ok := zeroDecimalCurrencies[c]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[c]; ok {
		return 3
	}
	return 2
}

// ToMinorUnits converts amount to the currency's smallest unit, rounding half
// away from zero. Results below 1 or above the provider maximum are invalid.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if !saneMagnitude(amount) {
		return 0, invalidAmount(nil)
	}
	minor := amount.Shift(currencyExponent(currency)).Round(0)
	if minor.LessThan(decimal.NewFromInt(1)) || minor.GreaterThan(decimal.NewFromInt(maxAmountMinor)) {
		return 0, invalidAmount(nil)
	}
	return minor.IntPart(), nil
}

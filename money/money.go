// Package money converts between decimal ether amounts and integer wei, and prices rides.
//
// All arithmetic is decimal or big integer. Binary floating point is never used: the value
// attached to a transaction has to match, to the wei, what the ledger reports back later.
package money

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/semanticallynull/rideledger-backend/internal/apperr"
)

// Decimals is the number of fractional digits a price may carry.
const Decimals = 2

// BaseUnitExponent is the power of ten between one ether and one wei.
const BaseUnitExponent = 18

var (
	ErrInvalidAmount   = apperr.New(apperr.Validation, "INVALID_AMOUNT", "invalid amount")
	ErrNegativeAmount  = apperr.New(apperr.Validation, "NEGATIVE_AMOUNT", "amount must not be negative")
	ErrTooPrecise      = apperr.New(apperr.Validation, "TOO_PRECISE", "amount has more than 2 fractional digits")
	ErrInvalidDistance = apperr.New(apperr.Validation, "INVALID_DISTANCE", "invalid distance")
)

// DefaultRatePerKm is the flat fare per kilometre, in ether.
var DefaultRatePerKm = decimal.New(10, -2)

var kmPerMile = decimal.RequireFromString("1.609344")

// ParseAmount parses a human decimal amount such as "1.53".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount.WithReason("empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount.WithReason("%q", s)
	}
	return d, nil
}

// ToBaseUnits converts an ether amount with at most two fractional digits into wei.
// Trailing zeros do not count as precision: "1.530" is accepted.
func ToBaseUnits(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, ErrNegativeAmount.WithReason("%s", d.String())
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return nil, ErrTooPrecise.WithReason("%s", d.String())
	}
	return d.Shift(BaseUnitExponent).BigInt(), nil
}

// FromBaseUnits converts wei into ether exactly.
func FromBaseUnits(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -BaseUnitExponent)
}

// FormatPrice renders a wei price as ether with two decimals, e.g. "1.53".
func FormatPrice(wei *big.Int) string {
	return FromBaseUnits(wei).StringFixed(Decimals)
}

// FormatBalance renders a wei balance as ether without losing any digit.
func FormatBalance(wei *big.Int) string {
	return FromBaseUnits(wei).String()
}

// Price applies the flat per-kilometre rate, rounding half up to two decimals.
// This is the only pricing policy; there is no surge component.
func Price(distanceKm, ratePerKm decimal.Decimal) decimal.Decimal {
	return distanceKm.Mul(ratePerKm).Round(Decimals)
}

// WholeKm truncates a distance to whole kilometres, the unit the ledger stores.
func WholeKm(distanceKm decimal.Decimal) (uint64, error) {
	if distanceKm.IsNegative() {
		return 0, ErrInvalidDistance.WithReason("%s", distanceKm.String())
	}
	km := distanceKm.Truncate(0).BigInt()
	if !km.IsUint64() {
		return 0, ErrInvalidDistance.WithReason("%s out of range", distanceKm.String())
	}
	return km.Uint64(), nil
}

// FormatDistance renders whole kilometres with one decimal place, e.g. "15.0".
func FormatDistance(km uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(km), 0).StringFixed(1)
}

// ParseDistanceText parses the distance text returned by the directions service
// ("15.3 km", "850 m", "1,204 km", "3.1 mi") into kilometres.
func ParseDistanceText(text string) (decimal.Decimal, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 || len(fields) > 2 {
		return decimal.Zero, ErrInvalidDistance.WithReason("%q", text)
	}

	number, unit := fields[0], "km"
	if len(fields) == 2 {
		unit = fields[1]
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(number, ",", ""))
	if err != nil || d.IsNegative() {
		return decimal.Zero, ErrInvalidDistance.WithReason("%q", text)
	}

	switch unit {
	case "km":
		return d, nil
	case "m":
		return d.Shift(-3), nil
	case "mi":
		return d.Mul(kmPerMile), nil
	}
	return decimal.Zero, ErrInvalidDistance.WithReason("unknown unit %q", unit)
}

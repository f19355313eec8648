/*
This file contains display-side conversion helpers. Ledger math never goes
through float64; these exist only for the read-only query surface.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// SDKIntToFloat64 converts a base-unit Int amount to a display float64,
// shifting the decimal point by precision places.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	return DecToFloat64(sdkmath.LegacyNewDecFromInt(amount).Quo(powerOfTen(precision)))
}

// DecToFloat64 converts a fixed-point value to float64 for display.
func DecToFloat64(value sdkmath.LegacyDec) (float64, error) {
	result, err := value.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

func powerOfTen(exponent int) sdkmath.LegacyDec {
	factor := sdkmath.LegacyOneDec()
	for i := 0; i < exponent; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}
	return factor
}

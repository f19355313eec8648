/*

This file contains the portfolio allocator: the weighted split of an incoming
deposit across a user's chosen strategies. Fractions are floored per strategy
and the undistributed remainder becomes directly-pending balance instead of
being force-deployed anywhere.

*/

package portfolio

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/stakeward/scl/internal/types"
)

var (
	ErrFractionSum      = errors.New("portfolio deposit fractions exceed 1")
	ErrInvalidFraction  = errors.New("deposit fraction must be between 0 and 1")
	ErrStrategyNotFound = errors.New("portfolio references an unknown strategy")
)

// Split is one strategy's slice of a deposit.
type Split struct {
	Strategy string
	Amount   sdkmath.Int
}

// GetStrategySplit divides a deposit across the user's portfolio entries,
// flooring each strategy's amount. The returned surplus is the part of the
// deposit no strategy claims: the 1-Σfraction remainder plus all flooring
// dust. A user with no portfolio surrenders nothing to strategies; the whole
// amount comes back as surplus.
func GetStrategySplit(user types.UserLedger, amount sdkmath.Int) ([]Split, sdkmath.Int) {
	if len(user.Portfolio) == 0 {
		return nil, amount
	}

	splits := make([]Split, 0, len(user.Portfolio))
	allocated := sdkmath.ZeroInt()
	for _, entry := range user.Portfolio {
		slice := entry.Fraction.MulInt(amount).TruncateInt()
		allocated = allocated.Add(slice)
		splits = append(splits, Split{Strategy: entry.Strategy, Amount: slice})
	}

	return splits, amount.Sub(allocated)
}

// SetEntry adds or updates one portfolio entry and validates the invariant
// that all fractions sum to at most 1. On violation the ledger is left
// untouched and the whole operation fails.
func SetEntry(user *types.UserLedger, strategy string, fraction sdkmath.LegacyDec) error {
	if fraction.IsNegative() || fraction.GT(sdkmath.LegacyOneDec()) {
		return ErrInvalidFraction
	}

	updated := make([]types.PortfolioEntry, len(user.Portfolio))
	copy(updated, user.Portfolio)

	found := false
	for i := range updated {
		if updated[i].Strategy == strategy {
			updated[i].Fraction = fraction
			found = true
			break
		}
	}
	if !found {
		updated = append(updated, types.PortfolioEntry{Strategy: strategy, Fraction: fraction})
	}

	total := sdkmath.LegacyZeroDec()
	for _, entry := range updated {
		total = total.Add(entry.Fraction)
	}
	if total.GT(sdkmath.LegacyOneDec()) {
		return ErrFractionSum
	}

	user.Portfolio = updated
	return nil
}

/*
This file contains the multi-asset amount arithmetic used by every layer of
the ledger: merging coin vectors by denomination, scaling them by fixed-point
factors, and converting pointer deltas into whole-unit payouts.
*/

package utils

import (
	"sort"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// Operation selects how two amount vectors are merged.
type Operation int

const (
	Add Operation = iota
	Sub
)

// MergeCoins merges two coin vectors into one entry per denomination.
// Denominations absent from one operand are treated as zero. Sub saturates at
// zero per denomination: the ledger can never owe a negative token amount, so
// the clamp is deliberate and not an error.
func MergeCoins(a, b sdktypes.Coins, op Operation) sdktypes.Coins {
	totals := make(map[string]sdkmath.Int)
	for _, coin := range a {
		totals[coin.Denom] = amountOrZero(totals, coin.Denom).Add(coin.Amount)
	}
	for _, coin := range b {
		current := amountOrZero(totals, coin.Denom)
		if op == Add {
			totals[coin.Denom] = current.Add(coin.Amount)
		} else {
			diff := current.Sub(coin.Amount)
			if diff.IsNegative() {
				diff = sdkmath.ZeroInt()
			}
			totals[coin.Denom] = diff
		}
	}

	merged := make(sdktypes.Coins, 0, len(totals))
	for denom, amount := range totals {
		if amount.IsZero() {
			continue
		}
		merged = append(merged, sdktypes.Coin{Denom: denom, Amount: amount})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Denom < merged[j].Denom })
	return merged
}

// MergeDecCoins is MergeCoins for fixed-point vectors. It backs the global
// airdrop pointer, which only ever grows, but the saturating Sub is kept for
// symmetry with the integer vectors.
func MergeDecCoins(a, b sdktypes.DecCoins, op Operation) sdktypes.DecCoins {
	totals := make(map[string]sdkmath.LegacyDec)
	for _, coin := range a {
		totals[coin.Denom] = decOrZero(totals, coin.Denom).Add(coin.Amount)
	}
	for _, coin := range b {
		current := decOrZero(totals, coin.Denom)
		if op == Add {
			totals[coin.Denom] = current.Add(coin.Amount)
		} else {
			diff := current.Sub(coin.Amount)
			if diff.IsNegative() {
				diff = sdkmath.LegacyZeroDec()
			}
			totals[coin.Denom] = diff
		}
	}

	merged := make(sdktypes.DecCoins, 0, len(totals))
	for denom, amount := range totals {
		if amount.IsZero() {
			continue
		}
		merged = append(merged, sdktypes.DecCoin{Denom: denom, Amount: amount})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Denom < merged[j].Denom })
	return merged
}

// MultiplyCoinsByDec scales every amount by factor, truncating fractional
// remainders to whole units. Truncation rather than rounding: the ledger must
// never distribute more than it holds.
func MultiplyCoinsByDec(coins sdktypes.Coins, factor sdkmath.LegacyDec) sdktypes.Coins {
	scaled := make(sdktypes.Coins, 0, len(coins))
	for _, coin := range coins {
		amount := sdkmath.LegacyNewDecFromInt(coin.Amount).Mul(factor).TruncateInt()
		if amount.IsZero() {
			continue
		}
		scaled = append(scaled, sdktypes.Coin{Denom: coin.Denom, Amount: amount})
	}
	return scaled
}

// CoinsFromPointerDelta converts a pointer delta into the whole-unit amounts
// owed to a holder of the given shares. This is the single place where the
// ledger loses precision: the sub-unit remainder of delta*shares is truncated
// and stays in the pool.
func CoinsFromPointerDelta(delta sdktypes.DecCoins, shares sdkmath.LegacyDec) sdktypes.Coins {
	owed := make(sdktypes.Coins, 0, len(delta))
	for _, pointer := range delta {
		amount := pointer.Amount.Mul(shares).TruncateInt()
		if amount.IsZero() {
			continue
		}
		owed = append(owed, sdktypes.Coin{Denom: pointer.Denom, Amount: amount})
	}
	return owed
}

// PointerDelta returns global - snapshot per denomination, floored at zero.
// Pointers are monotonic, so a negative delta would indicate a corrupted
// snapshot; flooring keeps the owed amount non-negative regardless.
func PointerDelta(global, snapshot sdktypes.DecCoins) sdktypes.DecCoins {
	snapshots := make(map[string]sdkmath.LegacyDec, len(snapshot))
	for _, coin := range snapshot {
		snapshots[coin.Denom] = coin.Amount
	}

	delta := make(sdktypes.DecCoins, 0, len(global))
	for _, coin := range global {
		diff := coin.Amount.Sub(decOrZero(snapshots, coin.Denom))
		if !diff.IsPositive() {
			continue
		}
		delta = append(delta, sdktypes.DecCoin{Denom: coin.Denom, Amount: diff})
	}
	return delta
}

func amountOrZero(totals map[string]sdkmath.Int, denom string) sdkmath.Int {
	if amount, ok := totals[denom]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

func decOrZero(totals map[string]sdkmath.LegacyDec, denom string) sdkmath.LegacyDec {
	if amount, ok := totals[denom]; ok {
		return amount
	}
	return sdkmath.LegacyZeroDec()
}

/*

This file contains the share ledger: the accumulator/pointer machinery that
turns a distribution to N depositors into one O(1) pointer bump, deferring
each depositor's settlement to the next time their position is touched.

The one ordering rule everything else hangs off: Realize must run before any
mutation of a position's share count, otherwise the pointer delta would be
charged against shares that never earned it.

*/

package ledger

import (
	"errors"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/stakeward/scl/internal/logger"
	"github.com/stakeward/scl/internal/types"
	"github.com/stakeward/scl/internal/utils"
)

var ledgerLogger = logger.GetForComponent("share_ledger")

var (
	ErrStrategyInactive   = errors.New("strategy is not active")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrZeroShares         = errors.New("strategy has no shares to distribute against")
	ErrInsufficientShares = errors.New("position holds fewer shares than requested")
)

// Realized holds the amounts settled out of a position's pointer deltas.
type Realized struct {
	Rewards  sdkmath.Int
	Airdrops sdktypes.Coins
}

// Realize settles everything the position is owed since its last snapshot and
// advances both pointer snapshots to the strategy's current global values.
// The advance is all-or-nothing; a position is never left half-realized.
func Realize(strategy types.Strategy, position *types.UserPosition) Realized {
	rewardDelta := strategy.GlobalRewardPointer.Sub(position.RewardPointer)
	if rewardDelta.IsNegative() {
		// Monotonic pointers make this unreachable; guard anyway so a bad
		// snapshot can never produce a negative balance.
		rewardDelta = sdkmath.LegacyZeroDec()
	}

	realized := Realized{
		Rewards: rewardDelta.Mul(position.Shares).TruncateInt(),
		Airdrops: utils.CoinsFromPointerDelta(
			utils.PointerDelta(strategy.GlobalAirdropPointer, position.AirdropPointer),
			position.Shares,
		),
	}

	position.RewardPointer = strategy.GlobalRewardPointer
	position.AirdropPointer = strategy.GlobalAirdropPointer
	return realized
}

// MintShares converts a deposit into shares at the supplied S/T ratio and
// credits them to the position. The caller must have realized the position
// against the strategy first.
func MintShares(strategy *types.Strategy, position *types.UserPosition, amount sdkmath.Int, ratio sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if !strategy.Active {
		return sdkmath.LegacyDec{}, ErrStrategyInactive
	}
	if !amount.IsPositive() {
		return sdkmath.LegacyDec{}, ErrInvalidAmount
	}

	minted := ratio.MulInt(amount)
	position.Shares = position.Shares.Add(minted)
	strategy.TotalShares = strategy.TotalShares.Add(minted)

	ledgerLogger.Debug().
		Str("strategy", strategy.Name).
		Str("amount", amount.String()).
		Str("minted", minted.String()).
		Msg("Minted shares for deposit")
	return minted, nil
}

// BurnShares removes the shares backing an undelegation request. The caller
// must have realized the position first.
func BurnShares(strategy *types.Strategy, position *types.UserPosition, shares sdkmath.LegacyDec) error {
	if !shares.IsPositive() {
		return ErrInvalidAmount
	}
	if position.Shares.LT(shares) {
		return ErrInsufficientShares
	}
	position.Shares = position.Shares.Sub(shares)
	strategy.TotalShares = strategy.TotalShares.Sub(shares)
	return nil
}

// DistributeReward spreads a reward amount across all current shareholders by
// bumping the global reward pointer. Rejected when no shares exist: there is
// no sink for the funds, and the caller must park them instead of losing them.
func DistributeReward(strategy *types.Strategy, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strategy.TotalShares.IsZero() {
		return ErrZeroShares
	}

	strategy.GlobalRewardPointer = strategy.GlobalRewardPointer.Add(
		sdkmath.LegacyNewDecFromInt(amount).Quo(strategy.TotalShares))
	return nil
}

// DistributeAirdrop spreads an airdrop claim across all current shareholders
// via the per-denomination airdrop pointer, and records the claim in the
// strategy's audit total.
func DistributeAirdrop(strategy *types.Strategy, denom string, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strategy.TotalShares.IsZero() {
		return ErrZeroShares
	}

	pointerBump := sdktypes.DecCoins{{
		Denom:  denom,
		Amount: sdkmath.LegacyNewDecFromInt(amount).Quo(strategy.TotalShares),
	}}
	strategy.GlobalAirdropPointer = utils.MergeDecCoins(strategy.GlobalAirdropPointer, pointerBump, utils.Add)
	strategy.TotalAirdropsAccumulated = utils.MergeCoins(
		strategy.TotalAirdropsAccumulated,
		sdktypes.Coins{{Denom: denom, Amount: amount}},
		utils.Add,
	)

	ledgerLogger.Debug().
		Str("strategy", strategy.Name).
		Str("denom", denom).
		Str("amount", amount.String()).
		Msg("Distributed airdrop across shareholders")
	return nil
}

// SharesForValue converts a principal amount into shares at the given ratio.
func SharesForValue(amount sdkmath.Int, ratio sdkmath.LegacyDec) sdkmath.LegacyDec {
	return ratio.MulInt(amount)
}

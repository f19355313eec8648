/*

This file contains the per-validator stake bookkeeping and the deposit-target
selection policy. Accrued rewards are computed against a validator's current
stake, so every stake move realizes the accrual first; this is the same
realize-before-mutate rule the share ledger enforces for user positions.

*/

package validators

import (
	"errors"
	"sort"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/stakeward/scl/internal/logger"
	"github.com/stakeward/scl/internal/types"
	"github.com/stakeward/scl/internal/utils"
)

var validatorLogger = logger.GetForComponent("validator_meta")

var (
	ErrNoValidators        = errors.New("no validators available")
	ErrAllValidatorsJailed = errors.New("all validators are jailed")
	ErrInsufficientStake   = errors.New("validator has less stake than requested")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// RealizeRewards settles the validator's accrued rewards and zeroes the
// accrual. Must be called before any change to Staked.
func RealizeRewards(meta *types.ValidatorMeta) sdktypes.Coins {
	realized := meta.AccruedRewards
	meta.AccruedRewards = sdktypes.Coins{}
	return realized
}

// AccrueRewards adds newly reported rewards to the validator's accrual.
func AccrueRewards(meta *types.ValidatorMeta, rewards sdktypes.Coins) {
	meta.AccruedRewards = utils.MergeCoins(meta.AccruedRewards, rewards, utils.Add)
}

// IncreaseStake tracks new delegation to the validator. Realizes first so the
// pre-increase accrual stays attributed to the pre-increase stake.
func IncreaseStake(meta *types.ValidatorMeta, amount sdkmath.Int) (sdktypes.Coins, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	realized := RealizeRewards(meta)
	meta.Staked = meta.Staked.Add(amount)
	return realized, nil
}

// DecreaseStake tracks undelegation from the validator. The decrease
// saturates at zero; a slashing-induced shortfall must not drive the tracked
// stake negative.
func DecreaseStake(meta *types.ValidatorMeta, amount sdkmath.Int) (sdktypes.Coins, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	realized := RealizeRewards(meta)
	meta.Staked = meta.Staked.Sub(amount)
	if meta.Staked.IsNegative() {
		meta.Staked = sdkmath.ZeroInt()
	}
	return realized, nil
}

// Redelegate moves stake between two validators, realizing both accruals
// before either stake figure changes. Unlike DecreaseStake this is strict:
// redelegating more than the source holds is an invariant violation, not a
// clamp.
func Redelegate(src, dst *types.ValidatorMeta, amount sdkmath.Int) (sdktypes.Coins, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if src.Staked.LT(amount) {
		return nil, ErrInsufficientStake
	}

	realized := utils.MergeCoins(RealizeRewards(src), RealizeRewards(dst), utils.Add)
	src.Staked = src.Staked.Sub(amount)
	dst.Staked = dst.Staked.Add(amount)

	validatorLogger.Info().
		Str("src", src.Operator).
		Str("dst", dst.Operator).
		Str("amount", amount.String()).
		Msg("Redelegated tracked stake")
	return realized, nil
}

// RecordSlash tracks principal lost to slashing against the validator.
func RecordSlash(meta *types.ValidatorMeta, amount sdkmath.Int) {
	if !amount.IsPositive() {
		return
	}
	meta.Slashed = meta.Slashed.Add(amount)
}

// PickForDeposit selects the deposit target: jailed validators are filtered
// out entirely, a validator with no delegation at all wins immediately, and
// otherwise the least-loaded wins. All jailed fails the operation.
func PickForDeposit(views []types.ValidatorView) (string, error) {
	if len(views) == 0 {
		return "", ErrNoValidators
	}

	candidates := make([]types.ValidatorView, 0, len(views))
	for _, view := range views {
		if view.Jailed {
			continue
		}
		if view.Delegated.IsZero() {
			return view.Operator, nil
		}
		candidates = append(candidates, view)
	}
	if len(candidates) == 0 {
		return "", ErrAllValidatorsJailed
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Delegated.Equal(candidates[j].Delegated) {
			return candidates[i].Operator < candidates[j].Operator
		}
		return candidates[i].Delegated.LT(candidates[j].Delegated)
	})
	return candidates[0].Operator, nil
}

// SortedByStake returns the non-jailed validators ascending by delegated
// amount, the order undelegations drain them in.
func SortedByStake(views []types.ValidatorView) ([]types.ValidatorView, error) {
	if len(views) == 0 {
		return nil, ErrNoValidators
	}

	active := make([]types.ValidatorView, 0, len(views))
	for _, view := range views {
		if !view.Jailed {
			active = append(active, view)
		}
	}
	if len(active) == 0 {
		return nil, ErrAllValidatorsJailed
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].Delegated.Equal(active[j].Delegated) {
			return active[i].Operator < active[j].Operator
		}
		return active[i].Delegated.LT(active[j].Delegated)
	})
	return active, nil
}

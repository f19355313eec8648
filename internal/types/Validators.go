/*

This file contains the per-validator stake and reward accrual record, plus the
chain-side view of a validator used when picking a deposit target.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// ValidatorMeta tracks the stake this protocol has delegated to one validator
// and the rewards accrued against that stake. Accrued rewards are computed
// against the current stake, so they must be realized before any stake move.
type ValidatorMeta struct {
	Operator       string         `json:"operator"`
	Staked         sdkmath.Int    `json:"staked"`
	AccruedRewards sdktypes.Coins `json:"accrued_rewards"`
	Slashed        sdkmath.Int    `json:"slashed"`
}

// NewValidatorMeta returns a zeroed record for the operator.
func NewValidatorMeta(operator string) ValidatorMeta {
	return ValidatorMeta{
		Operator:       operator,
		Staked:         sdkmath.ZeroInt(),
		AccruedRewards: sdktypes.Coins{},
		Slashed:        sdkmath.ZeroInt(),
	}
}

// ValidatorView is the chain-side state of a validator as reported by the
// staking module: whether it is jailed and how much this protocol has
// delegated to it.
type ValidatorView struct {
	Operator  string      `json:"operator"`
	Jailed    bool        `json:"jailed"`
	Delegated sdkmath.Int `json:"delegated"`
}

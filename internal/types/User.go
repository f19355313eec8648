/*

This file contains the per-user ledger types: share positions against each
strategy, the deposit portfolio, and pending (settled but unwithdrawn)
balances.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// UserPosition is the per-(user, strategy) share position. The pointers are
// snapshots of the strategy's global pointers taken the last time the
// position was realized, not live values.
type UserPosition struct {
	Strategy       string            `json:"strategy"`
	Shares         sdkmath.LegacyDec `json:"shares"`
	RewardPointer  sdkmath.LegacyDec `json:"reward_pointer"`
	AirdropPointer sdktypes.DecCoins `json:"airdrop_pointer"`
}

// NewUserPosition returns an empty position whose pointer snapshots start at
// the strategy's current global pointers so no history is charged to it.
func NewUserPosition(strategy Strategy) UserPosition {
	return UserPosition{
		Strategy:       strategy.Name,
		Shares:         sdkmath.LegacyZeroDec(),
		RewardPointer:  strategy.GlobalRewardPointer,
		AirdropPointer: strategy.GlobalAirdropPointer,
	}
}

// PortfolioEntry is one weighted split target of a user's deposit portfolio.
type PortfolioEntry struct {
	Strategy string            `json:"strategy"`
	Fraction sdkmath.LegacyDec `json:"deposit_fraction"`
}

// UserLedger aggregates everything the protocol tracks for one user.
type UserLedger struct {
	User string `json:"user"`

	// Portfolio fractions must sum to <= 1. The remainder of any deposit is
	// not deployed and lands in PendingRewards.
	Portfolio []PortfolioEntry `json:"portfolio"`

	Positions []UserPosition `json:"positions"`

	// PendingRewards is denominated in the protocol reward denom.
	PendingRewards  sdkmath.Int    `json:"pending_rewards"`
	PendingAirdrops sdktypes.Coins `json:"pending_airdrops"`
}

// NewUserLedger returns an empty ledger for the given user.
func NewUserLedger(user string) UserLedger {
	return UserLedger{
		User:            user,
		PendingRewards:  sdkmath.ZeroInt(),
		PendingAirdrops: sdktypes.Coins{},
	}
}

// Position returns a pointer to the user's position in the named strategy, or
// nil when the user never deposited there.
func (u *UserLedger) Position(strategy string) *UserPosition {
	for i := range u.Positions {
		if u.Positions[i].Strategy == strategy {
			return &u.Positions[i]
		}
	}
	return nil
}

// EnsurePosition returns the user's position in the strategy, creating it
// lazily on first deposit.
func (u *UserLedger) EnsurePosition(strategy Strategy) *UserPosition {
	if p := u.Position(strategy.Name); p != nil {
		return p
	}
	u.Positions = append(u.Positions, NewUserPosition(strategy))
	return &u.Positions[len(u.Positions)-1]
}

// PortfolioFractionSum returns the sum of all portfolio fractions.
func (u *UserLedger) PortfolioFractionSum() sdkmath.LegacyDec {
	total := sdkmath.LegacyZeroDec()
	for _, entry := range u.Portfolio {
		total = total.Add(entry.Fraction)
	}
	return total
}

/*

This file contains the strategy registry types. A strategy is a yield-bearing
destination (an external venue contract) that accepts deposits and reports a
shares-per-unit-value ratio. All proportional-distribution state lives here:
the share total and the global reward/airdrop pointers.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// Strategy holds the per-strategy share ledger state.
type Strategy struct {
	Name         string `json:"name"`
	VenueAddress string `json:"venue_address"` // Address of the external yield venue contract

	// UnbondingPeriod is how long the venue's underlying chain holds
	// undelegated stake before releasing it.
	UnbondingPeriod time.Duration `json:"unbonding_period"`

	// Active gates new deposits only. Withdrawals always pass.
	Active bool `json:"is_active"`

	// TotalShares is the total share supply outstanding across all users.
	TotalShares sdkmath.LegacyDec `json:"total_shares"`

	// SharesPerUnitValue is the most recently fetched S/T ratio from the
	// venue. Cached for the duration of one multi-request batch; staleness
	// inside a batch is accepted.
	SharesPerUnitValue sdkmath.LegacyDec `json:"shares_per_unit_value"`

	// GlobalRewardPointer is the monotonically non-decreasing accumulator of
	// distributed reward value per share.
	GlobalRewardPointer sdkmath.LegacyDec `json:"global_reward_pointer"`

	// GlobalAirdropPointer is the per-denomination accumulator of distributed
	// airdrop value per share. Monotonic per denom.
	GlobalAirdropPointer sdktypes.DecCoins `json:"global_airdrop_pointer"`

	// TotalAirdropsAccumulated is a monotonic running total kept for audit.
	TotalAirdropsAccumulated sdktypes.Coins `json:"total_airdrops_accumulated"`

	// CurrentBatchID is the id of the currently open undelegation batch.
	CurrentBatchID uint64 `json:"current_batch_id"`
}

// NewStrategy returns an active strategy with zeroed ledger state and the
// first undelegation batch id allocated.
func NewStrategy(name, venueAddress string, unbondingPeriod time.Duration) Strategy {
	return Strategy{
		Name:                 name,
		VenueAddress:         venueAddress,
		UnbondingPeriod:      unbondingPeriod,
		Active:               true,
		TotalShares:          sdkmath.LegacyZeroDec(),
		SharesPerUnitValue:   sdkmath.LegacyOneDec(),
		GlobalRewardPointer:  sdkmath.LegacyZeroDec(),
		GlobalAirdropPointer: sdktypes.DecCoins{},
		CurrentBatchID:       1,
	}
}

// AirdropContracts maps an airdrop denomination to the token contract that
// holds the balance and the contract the claim is issued against.
type AirdropContracts struct {
	Denom         string `json:"denom"`
	TokenContract string `json:"token_contract"`
	ClaimContract string `json:"claim_contract"`
}

// LedgerState holds the protocol-wide running totals. The accumulated totals
// only ever grow; withdrawals never wind them back.
type LedgerState struct {
	Manager       string         `json:"manager"`
	PoolContract  string         `json:"pool_contract"`
	RewardDenom   string         `json:"reward_denom"`
	TotalRewards  sdkmath.Int    `json:"total_accumulated_rewards"`
	TotalAirdrops sdktypes.Coins `json:"total_accumulated_airdrops"`
	GenesisTime   time.Time      `json:"genesis_time"`
}

// NewLedgerState returns a zeroed protocol state.
func NewLedgerState(manager, poolContract, rewardDenom string, genesis time.Time) LedgerState {
	return LedgerState{
		Manager:       manager,
		PoolContract:  poolContract,
		RewardDenom:   rewardDenom,
		TotalRewards:  sdkmath.ZeroInt(),
		TotalAirdrops: sdktypes.Coins{},
		GenesisTime:   genesis,
	}
}

/*

This file contains the operation request and result types exchanged with the
engine. Batch operations return per-entry diagnostics instead of aborting so
that one bad entry cannot roll back hundreds of processed users.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// DepositRequest routes one user's incoming reward deposit. An empty Strategy
// means "split per the user's portfolio"; a named strategy bypasses the
// allocator entirely.
type DepositRequest struct {
	User     string      `json:"user"`
	Amount   sdkmath.Int `json:"amount"`
	Strategy string      `json:"strategy,omitempty"`
}

// DepositResult reports the committed outcome of a multi-user deposit batch
// together with the entries that were skipped.
type DepositResult struct {
	TotalDeposited sdkmath.Int `json:"total_deposited"`

	// Diagnostics. Skipped entries are reported, never aborted on.
	// ZeroDepositUsers covers every non-positive amount, negative included.
	FailedStrategies   []string `json:"failed_strategies,omitempty"`
	InactiveStrategies []string `json:"inactive_strategies,omitempty"`
	ZeroDepositUsers   []string `json:"zero_deposit_users,omitempty"`

	// Intents carries one aggregated forwarding instruction per venue.
	Intents []Intent `json:"intents,omitempty"`
}

// AirdropUpdateRequest credits one user with airdrops already claimed by the
// pool contract on the user's behalf.
type AirdropUpdateRequest struct {
	User     string         `json:"user"`
	Airdrops sdktypes.Coins `json:"airdrops"`
}

// WithdrawAirdropsResult reports the transfer intents for a pending-airdrop
// withdrawal plus the denominations that could not be paid because no token
// contract is registered for them. Failed denoms stay in the user's pending
// balance.
type WithdrawAirdropsResult struct {
	Intents      []Intent `json:"intents,omitempty"`
	FailedDenoms []string `json:"failed_denoms,omitempty"`
}

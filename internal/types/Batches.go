/*

This file contains the batch undelegation record. Batches move through a
strict Open -> Closed -> Reconciled lifecycle; the reconciled flag, not the
estimated release time, is the signal that a batch can pay out.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// UndelegationBatch groups undelegation requests that settle together against
// one external unbonding action.
type UndelegationBatch struct {
	Strategy string `json:"strategy"`
	ID       uint64 `json:"id"`

	// AccumulatedAmount is the total principal requested for exit while the
	// batch was open.
	AccumulatedAmount sdkmath.Int `json:"accumulated_amount"`

	// Requests tracks each participant's contribution, capped by withdrawals.
	Requests map[string]sdkmath.Int `json:"requests"`

	CreateTime     time.Time  `json:"create_time"`
	EstReleaseTime *time.Time `json:"est_release_time,omitempty"`

	// Closed is set when the external undelegation is issued. A closed batch
	// accepts no further requests.
	Closed bool `json:"closed"`

	// CorrelationID ties the external undelegation to the continuation that
	// later reconciles this batch.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Reconciled flips exactly once, when the returned principal is known.
	Reconciled bool `json:"reconciled"`

	// SlashingRatio is actual received / accumulated, clamped to <= 1. Fixed
	// permanently at reconciliation; 1 until then.
	SlashingRatio sdkmath.LegacyDec `json:"unbonding_slashing_ratio"`

	// BaselinePointer snapshots the strategy's reward pointer at creation so
	// divergence during the unbonding window can be detected.
	BaselinePointer sdkmath.LegacyDec `json:"baseline_pointer"`
}

// NewUndelegationBatch opens a fresh batch with no losses assumed.
func NewUndelegationBatch(strategy Strategy, id uint64, now time.Time) UndelegationBatch {
	return UndelegationBatch{
		Strategy:          strategy.Name,
		ID:                id,
		AccumulatedAmount: sdkmath.ZeroInt(),
		Requests:          map[string]sdkmath.Int{},
		CreateTime:        now,
		SlashingRatio:     sdkmath.LegacyOneDec(),
		BaselinePointer:   strategy.GlobalRewardPointer,
	}
}

// IntentType classifies an emitted forwarding instruction.
type IntentType string

const (
	// IntentForwardDeposit forwards deposited funds to a strategy's venue.
	IntentForwardDeposit IntentType = "FORWARD_DEPOSIT"
	// IntentClaimAirdrop instructs a venue to claim an airdrop.
	IntentClaimAirdrop IntentType = "CLAIM_AIRDROP"
	// IntentPayout pays settled funds out to a user.
	IntentPayout IntentType = "PAYOUT"
	// IntentTokenTransfer transfers airdrop tokens to a user.
	IntentTokenTransfer IntentType = "TOKEN_TRANSFER"
	// IntentUndelegate issues the external undelegation for a closed batch.
	IntentUndelegate IntentType = "UNDELEGATE"
)

// Intent is a record of an external action this ledger wants performed. The
// ledger never moves tokens itself; collaborators execute intents and report
// results back through continuations keyed by CorrelationID.
type Intent struct {
	CorrelationID string      `json:"correlation_id"`
	Type          IntentType  `json:"type"`
	Target        string      `json:"target"` // venue, contract or user address
	Denom         string      `json:"denom,omitempty"`
	Amount        sdkmath.Int `json:"amount"`
	Payload       []byte      `json:"payload,omitempty"`
	Strategy      string      `json:"strategy,omitempty"`
	BatchID       uint64      `json:"batch_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

/*

This file contains the batch undelegation state machine. A batch moves
Open -> Closed -> Reconciled and never backwards. Closed and Reconciled are
separate states because the actually-returned principal is only known in a
later continuation, after the chain's unbonding completes; any attempt to
reconcile at close time is wrong by construction.

*/

package undelegation

import (
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/stakeward/scl/internal/logger"
	"github.com/stakeward/scl/internal/types"
)

var batchLogger = logger.GetForComponent("undelegation_batch")

var (
	ErrBatchClosed       = errors.New("batch no longer accepts requests")
	ErrBatchNotClosed    = errors.New("batch has not been closed")
	ErrEmptyBatch        = errors.New("batch has no accumulated requests")
	ErrAlreadyReconciled = errors.New("batch is already reconciled")
	ErrNotReconciled     = errors.New("batch is not reconciled yet")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrExceedsRequested  = errors.New("amount exceeds the user's remaining batch request")
)

// AddRequest joins a user's undelegation request to an open batch.
func AddRequest(batch *types.UndelegationBatch, user string, amount sdkmath.Int) error {
	if batch.Closed {
		return ErrBatchClosed
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	existing, ok := batch.Requests[user]
	if !ok {
		existing = sdkmath.ZeroInt()
	}
	batch.Requests[user] = existing.Add(amount)
	batch.AccumulatedAmount = batch.AccumulatedAmount.Add(amount)
	return nil
}

// Close seals the batch around the external undelegation being issued. The
// correlation id ties the batch to the continuation that will reconcile it,
// and the estimated release time is derived from the chain's unbonding
// period. The estimate is informational only; payouts key off Reconciled.
func Close(batch *types.UndelegationBatch, correlationID string, now time.Time, unbondingPeriod time.Duration) error {
	if batch.Closed {
		return ErrBatchClosed
	}
	if batch.AccumulatedAmount.IsZero() {
		return ErrEmptyBatch
	}

	release := now.Add(unbondingPeriod)
	batch.Closed = true
	batch.CorrelationID = correlationID
	batch.EstReleaseTime = &release

	batchLogger.Info().
		Str("strategy", batch.Strategy).
		Uint64("batch", batch.ID).
		Str("accumulated", batch.AccumulatedAmount.String()).
		Str("correlation_id", correlationID).
		Time("est_release", release).
		Msg("Closed undelegation batch")
	return nil
}

// Reconcile fixes the batch's slashing ratio from the principal that actually
// arrived. Exactly-once: a second attempt is rejected and changes nothing.
// The ratio is clamped to 1 because unbonding can lose stake to slashing but
// never gain beyond what was requested.
func Reconcile(batch *types.UndelegationBatch, actualReceived sdkmath.Int) error {
	if !batch.Closed {
		return ErrBatchNotClosed
	}
	if batch.Reconciled {
		return ErrAlreadyReconciled
	}
	if actualReceived.IsNegative() {
		return ErrInvalidAmount
	}

	ratio := sdkmath.LegacyNewDecFromInt(actualReceived).Quo(
		sdkmath.LegacyNewDecFromInt(batch.AccumulatedAmount))
	if ratio.GT(sdkmath.LegacyOneDec()) {
		ratio = sdkmath.LegacyOneDec()
	}

	batch.SlashingRatio = ratio
	batch.Reconciled = true

	batchLogger.Info().
		Str("strategy", batch.Strategy).
		Uint64("batch", batch.ID).
		Str("requested", batch.AccumulatedAmount.String()).
		Str("received", actualReceived.String()).
		Str("slashing_ratio", ratio.String()).
		Msg("Reconciled undelegation batch")
	return nil
}

// Withdraw settles part of a user's request against a reconciled batch and
// returns the prorated payout, floor(amount * slashing_ratio). A batch that
// is not reconciled cannot pay out anything, only estimate.
func Withdraw(batch *types.UndelegationBatch, user string, amount sdkmath.Int) (sdkmath.Int, error) {
	if !batch.Reconciled {
		return sdkmath.Int{}, ErrNotReconciled
	}
	if !amount.IsPositive() {
		return sdkmath.Int{}, ErrInvalidAmount
	}

	remaining, ok := batch.Requests[user]
	if !ok || remaining.LT(amount) {
		return sdkmath.Int{}, ErrExceedsRequested
	}

	batch.Requests[user] = remaining.Sub(amount)
	return batch.SlashingRatio.MulInt(amount).TruncateInt(), nil
}

// EstimatePayout previews what a withdrawal would pay at the batch's current
// ratio. Safe on unreconciled batches; the estimate uses ratio 1 until
// reconciliation fixes the real value.
func EstimatePayout(batch types.UndelegationBatch, amount sdkmath.Int) sdkmath.Int {
	return batch.SlashingRatio.MulInt(amount).TruncateInt()
}

// Divergence reports how far a strategy's reward pointer has moved since the
// batch was opened. Participants burned their shares when they joined, so a
// positive divergence means distributions happened during the unbonding
// window that they did not share in. Never negative; pointers only advance.
func Divergence(batch types.UndelegationBatch, currentPointer sdkmath.LegacyDec) sdkmath.LegacyDec {
	delta := currentPointer.Sub(batch.BaselinePointer)
	if delta.IsNegative() {
		return sdkmath.LegacyZeroDec()
	}
	return delta
}

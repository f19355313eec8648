/*

This file contains the undelegation operations and the batch rollover loop.
Closing a batch and reconciling it are two separate operations on purpose:
the undelegate intent is fire-and-forget, and the received principal is only
known when the environment invokes the reconciliation continuation with the
batch's correlation id.

*/

package engine

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/stakeward/scl/internal/authz"
	"github.com/stakeward/scl/internal/ledger"
	"github.com/stakeward/scl/internal/types"
	"github.com/stakeward/scl/internal/undelegation"
	"github.com/stakeward/scl/internal/utils"
)

// RequestUndelegation joins the sender's exit request to the strategy's open
// batch, burning the backing shares at the cached ratio. The request settles
// when the batch is reconciled, not before.
func (e *Engine) RequestUndelegation(req authz.Request, strategyName string, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.NoFunds); err != nil {
		return err
	}

	strategy, exists, err := e.stores.Strategies.Get(strategyName)
	if err != nil {
		return err
	}
	if !exists {
		return ErrStrategyNotFound
	}

	user, found, err := e.stores.Users.Get(req.Sender)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}
	position := user.Position(strategyName)
	if position == nil {
		return ErrUserNotFound
	}

	// Realize before the share count changes.
	realized := ledger.Realize(strategy, position)
	user.PendingRewards = user.PendingRewards.Add(realized.Rewards)
	user.PendingAirdrops = utils.MergeCoins(user.PendingAirdrops, realized.Airdrops, utils.Add)

	shares := ledger.SharesForValue(amount, strategy.SharesPerUnitValue)
	if err := ledger.BurnShares(&strategy, position, shares); err != nil {
		return err
	}

	batch, found, err := e.stores.Batches.Get(strategyName, strategy.CurrentBatchID)
	if err != nil {
		return err
	}
	if !found {
		return ErrBatchNotFound
	}
	if err := undelegation.AddRequest(&batch, req.Sender, amount); err != nil {
		return err
	}

	if err := e.stores.Batches.Save(batch); err != nil {
		return err
	}
	if err := e.stores.Strategies.Save(strategy); err != nil {
		return err
	}
	return e.stores.Users.Save(user)
}

// CloseBatch seals the strategy's open batch, emits the external undelegate
// intent, and opens the successor batch. Manager only; the rollover loop
// performs the same transition on the batch window.
func (e *Engine) CloseBatch(req authz.Request, strategyName string) (types.Intent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return types.Intent{}, err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return types.Intent{}, err
	}
	return e.closeCurrentBatch(strategyName)
}

func (e *Engine) closeCurrentBatch(strategyName string) (types.Intent, error) {
	strategy, exists, err := e.stores.Strategies.Get(strategyName)
	if err != nil {
		return types.Intent{}, err
	}
	if !exists {
		return types.Intent{}, ErrStrategyNotFound
	}

	batch, found, err := e.stores.Batches.Get(strategyName, strategy.CurrentBatchID)
	if err != nil {
		return types.Intent{}, err
	}
	if !found {
		return types.Intent{}, ErrBatchNotFound
	}

	intent := e.newIntent(types.IntentUndelegate, strategy.VenueAddress)
	if err := undelegation.Close(&batch, intent.CorrelationID, e.now(), strategy.UnbondingPeriod); err != nil {
		return types.Intent{}, err
	}
	intent.Amount = batch.AccumulatedAmount
	intent.Strategy = strategy.Name
	intent.BatchID = batch.ID

	if err := e.stores.Batches.Save(batch); err != nil {
		return types.Intent{}, err
	}
	if err := e.stores.Intents.Save(intent); err != nil {
		return types.Intent{}, err
	}

	strategy.CurrentBatchID++
	next := types.NewUndelegationBatch(strategy, strategy.CurrentBatchID, e.now())
	if err := e.stores.Batches.Save(next); err != nil {
		return types.Intent{}, err
	}
	if err := e.stores.Strategies.Save(strategy); err != nil {
		return types.Intent{}, err
	}
	return intent, nil
}

// ReconcileBatch is the continuation for a previously issued undelegate
// intent: the environment reports how much principal actually arrived, and
// the batch's slashing ratio is fixed from it. Exactly-once per batch.
func (e *Engine) ReconcileBatch(req authz.Request, correlationID string, actualReceived sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager); err != nil {
		return err
	}

	batch, found, err := e.stores.Batches.FindByCorrelation(correlationID)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownIntent
	}

	if err := undelegation.Reconcile(&batch, actualReceived); err != nil {
		return err
	}

	if strategy, exists, err := e.stores.Strategies.Get(batch.Strategy); err == nil && exists {
		if divergence := undelegation.Divergence(batch, strategy.GlobalRewardPointer); divergence.IsPositive() {
			e.logger.Warn().
				Str("strategy", batch.Strategy).
				Uint64("batch", batch.ID).
				Str("pointer_divergence", divergence.String()).
				Msg("Reward pointer moved while the batch was unbonding")
		}
	}

	return e.stores.Batches.Save(batch)
}

// WithdrawFromBatch pays out the sender's prorated share of a reconciled
// batch. Unreconciled batches reject the withdrawal outright; the release
// time is an estimate and never a payout signal.
func (e *Engine) WithdrawFromBatch(req authz.Request, strategyName string, batchID uint64, amount sdkmath.Int) (types.Intent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return types.Intent{}, err
	}
	if err := authz.Validate(state, req, authz.NoFunds); err != nil {
		return types.Intent{}, err
	}

	batch, found, err := e.stores.Batches.Get(strategyName, batchID)
	if err != nil {
		return types.Intent{}, err
	}
	if !found {
		return types.Intent{}, ErrBatchNotFound
	}

	payout, err := undelegation.Withdraw(&batch, req.Sender, amount)
	if err != nil {
		return types.Intent{}, err
	}
	if err := e.stores.Batches.Save(batch); err != nil {
		return types.Intent{}, err
	}

	intent := e.newIntent(types.IntentPayout, req.Sender)
	intent.Denom = state.RewardDenom
	intent.Amount = payout
	intent.Strategy = strategyName
	intent.BatchID = batchID
	if err := e.stores.Intents.Save(intent); err != nil {
		return types.Intent{}, err
	}

	e.logger.Info().
		Str("user", req.Sender).
		Str("strategy", strategyName).
		Uint64("batch", batchID).
		Str("requested", amount.String()).
		Str("payout", payout.String()).
		Msg("Paid out batch withdrawal")
	return intent, nil
}

// RunRolloverLoop closes every strategy's open batch once its window
// elapses, then opens the successor. Runs until the context is cancelled.
func (e *Engine) RunRolloverLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().Dur("interval", interval).Msg("Starting batch rollover loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Batch rollover loop stopped due to context cancellation")
			return
		case <-ticker.C:
			e.rolloverElapsedBatches()
		}
	}
}

func (e *Engine) rolloverElapsedBatches() {
	e.mu.Lock()
	defer e.mu.Unlock()

	strategies, err := e.stores.Strategies.List()
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to list strategies for rollover")
		return
	}

	for _, strategy := range strategies {
		batch, found, err := e.stores.Batches.Get(strategy.Name, strategy.CurrentBatchID)
		if err != nil || !found {
			continue
		}
		if batch.AccumulatedAmount.IsZero() {
			continue
		}
		if e.now().Sub(batch.CreateTime) < e.batchWindow {
			continue
		}

		if _, err := e.closeCurrentBatch(strategy.Name); err != nil {
			e.logger.Error().Err(err).Str("strategy", strategy.Name).Msg("Batch rollover failed")
		}
	}
}

/*

This file contains the validator bookkeeping operations. They mirror the
share ledger's discipline: accrued rewards are realized into the protocol's
pending reward pool before any tracked stake moves.

*/

package engine

import (
	"context"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/stakeward/scl/internal/authz"
	"github.com/stakeward/scl/internal/types"
	"github.com/stakeward/scl/internal/utils"
	"github.com/stakeward/scl/internal/validators"
)

// AddValidator starts tracking a validator. Manager only.
func (e *Engine) AddValidator(req authz.Request, operator string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return err
	}

	if _, exists, err := e.stores.Validators.Get(operator); err != nil {
		return err
	} else if exists {
		return ErrValidatorExists
	}
	return e.stores.Validators.Save(types.NewValidatorMeta(operator))
}

// AccrueValidatorRewards records newly reported rewards against a validator's
// current stake. Manager only.
func (e *Engine) AccrueValidatorRewards(req authz.Request, operator string, rewards sdktypes.Coins) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return err
	}

	meta, exists, err := e.stores.Validators.Get(operator)
	if err != nil {
		return err
	}
	if !exists {
		return ErrValidatorNotFound
	}

	validators.AccrueRewards(&meta, rewards)
	return e.stores.Validators.Save(meta)
}

// TrackDelegation increases a validator's tracked stake. Manager only.
func (e *Engine) TrackDelegation(req authz.Request, operator string, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager); err != nil {
		return err
	}

	meta, exists, err := e.stores.Validators.Get(operator)
	if err != nil {
		return err
	}
	if !exists {
		return ErrValidatorNotFound
	}

	realized, err := validators.IncreaseStake(&meta, amount)
	if err != nil {
		return err
	}
	if err := e.stores.Validators.Save(meta); err != nil {
		return err
	}
	return e.bankRealizedRewards(realized)
}

// TrackUndelegation decreases a validator's tracked stake, saturating at
// zero. Manager only.
func (e *Engine) TrackUndelegation(req authz.Request, operator string, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager); err != nil {
		return err
	}

	meta, exists, err := e.stores.Validators.Get(operator)
	if err != nil {
		return err
	}
	if !exists {
		return ErrValidatorNotFound
	}

	realized, err := validators.DecreaseStake(&meta, amount)
	if err != nil {
		return err
	}
	if err := e.stores.Validators.Save(meta); err != nil {
		return err
	}
	return e.bankRealizedRewards(realized)
}

// RedelegateStake moves tracked stake between two validators. Manager only.
func (e *Engine) RedelegateStake(req authz.Request, src, dst string, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return err
	}

	srcMeta, exists, err := e.stores.Validators.Get(src)
	if err != nil {
		return err
	}
	if !exists {
		return ErrValidatorNotFound
	}
	dstMeta, exists, err := e.stores.Validators.Get(dst)
	if err != nil {
		return err
	}
	if !exists {
		return ErrValidatorNotFound
	}

	realized, err := validators.Redelegate(&srcMeta, &dstMeta, amount)
	if err != nil {
		return err
	}
	if err := e.stores.Validators.Save(srcMeta); err != nil {
		return err
	}
	if err := e.stores.Validators.Save(dstMeta); err != nil {
		return err
	}
	return e.bankRealizedRewards(realized)
}

// RemoveValidator stops tracking a validator. Its accrued rewards are
// realized first so nothing is orphaned. Manager only; a validator with
// tracked stake must be drained before removal.
func (e *Engine) RemoveValidator(req authz.Request, operator string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return err
	}

	meta, exists, err := e.stores.Validators.Get(operator)
	if err != nil {
		return err
	}
	if !exists {
		return ErrValidatorNotFound
	}
	if !meta.Staked.IsZero() {
		return validators.ErrInsufficientStake
	}

	realized := validators.RealizeRewards(&meta)
	if err := e.stores.Validators.Delete(operator); err != nil {
		return err
	}
	return e.bankRealizedRewards(realized)
}

// PickValidatorForDeposit queries the chain-side validator set and returns
// the least-loaded non-jailed operator.
func (e *Engine) PickValidatorForDeposit(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	views, err := e.venue.Validators(ctx)
	if err != nil {
		return "", err
	}
	return validators.PickForDeposit(views)
}

// bankRealizedRewards folds realized validator rewards into the protocol
// totals so they flow to depositors on the next distribution.
func (e *Engine) bankRealizedRewards(realized sdktypes.Coins) error {
	if realized.IsZero() {
		return nil
	}

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	for _, coin := range realized {
		if coin.Denom == state.RewardDenom {
			state.TotalRewards = state.TotalRewards.Add(coin.Amount)
		} else {
			state.TotalAirdrops = utils.MergeCoins(state.TotalAirdrops,
				sdktypes.Coins{coin}, utils.Add)
		}
	}
	return e.stores.State.Save(state)
}

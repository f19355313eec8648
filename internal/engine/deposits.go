/*

This file contains the multi-user deposit operation. One call carries many
users' reward deposits; entries that cannot be processed (non-positive
amounts, unknown or inactive strategies) are reported as diagnostics while
the rest commit, because aborting would also roll back every successfully
processed user in the batch.

*/

package engine

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/stakeward/scl/internal/authz"
	"github.com/stakeward/scl/internal/ledger"
	"github.com/stakeward/scl/internal/portfolio"
	"github.com/stakeward/scl/internal/types"
	"github.com/stakeward/scl/internal/utils"
)

// ProcessDeposits routes a batch of reward deposits into strategies. The
// shares-per-unit-value ratio is fetched from each venue at most once per
// call; entries processed later in the same call see the memoized value.
func (e *Engine) ProcessDeposits(ctx context.Context, req authz.Request, requests []types.DepositRequest) (types.DepositResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := types.DepositResult{TotalDeposited: sdkmath.ZeroInt()}

	state, err := e.stores.State.Get()
	if err != nil {
		return result, err
	}
	if err := authz.Validate(state, req, authz.SenderPoolContract); err != nil {
		return result, err
	}
	if len(requests) == 0 {
		return result, nil
	}

	// Ratio memo scoped to this call, plus the aggregated per-venue funds
	// that become one forwarding intent each.
	ratioMemo := make(map[string]sdkmath.LegacyDec)
	venueFunds := make(map[string]sdkmath.Int)

	for _, request := range requests {
		// Non-positive amounts are diagnosed here, before any store write;
		// letting one through would fail mid-batch after earlier entries
		// already committed.
		if request.Amount.IsNil() || !request.Amount.IsPositive() {
			result.ZeroDepositUsers = appendUnique(result.ZeroDepositUsers, request.User)
			continue
		}

		user, found, err := e.stores.Users.Get(request.User)
		if err != nil {
			return result, err
		}
		if !found {
			user = types.NewUserLedger(request.User)
		}

		var splits []portfolio.Split
		surplus := sdkmath.ZeroInt()
		if request.Strategy != "" {
			// Explicit target: the allocator is bypassed entirely.
			splits = []portfolio.Split{{Strategy: request.Strategy, Amount: request.Amount}}
		} else {
			splits, surplus = portfolio.GetStrategySplit(user, request.Amount)
		}

		// The undeployed remainder settles immediately as pending balance.
		user.PendingRewards = user.PendingRewards.Add(surplus)

		for _, split := range splits {
			if split.Amount.IsZero() {
				continue
			}

			strategy, exists, err := e.stores.Strategies.Get(split.Strategy)
			if err != nil {
				return result, err
			}
			if !exists {
				result.FailedStrategies = appendUnique(result.FailedStrategies, split.Strategy)
				user.PendingRewards = user.PendingRewards.Add(split.Amount)
				continue
			}
			if !strategy.Active {
				result.InactiveStrategies = appendUnique(result.InactiveStrategies, split.Strategy)
				user.PendingRewards = user.PendingRewards.Add(split.Amount)
				continue
			}

			ratio, ok := ratioMemo[strategy.Name]
			if !ok {
				ratio, err = e.venue.SharesPerUnitValue(ctx, strategy.VenueAddress)
				if err != nil {
					e.logger.Error().Err(err).Str("strategy", strategy.Name).Msg("Venue ratio query failed")
					result.FailedStrategies = appendUnique(result.FailedStrategies, split.Strategy)
					user.PendingRewards = user.PendingRewards.Add(split.Amount)
					continue
				}
				ratioMemo[strategy.Name] = ratio
			}
			strategy.SharesPerUnitValue = ratio

			position := user.EnsurePosition(strategy)

			// Settle the pointer deltas before the share count changes.
			realized := ledger.Realize(strategy, position)
			user.PendingRewards = user.PendingRewards.Add(realized.Rewards)
			user.PendingAirdrops = utils.MergeCoins(user.PendingAirdrops, realized.Airdrops, utils.Add)

			if _, err := ledger.MintShares(&strategy, position, split.Amount, ratio); err != nil {
				return result, err
			}

			existing, ok := venueFunds[strategy.VenueAddress]
			if !ok {
				existing = sdkmath.ZeroInt()
			}
			venueFunds[strategy.VenueAddress] = existing.Add(split.Amount)

			if err := e.stores.Strategies.Save(strategy); err != nil {
				return result, err
			}
		}

		if err := e.stores.Users.Save(user); err != nil {
			return result, err
		}
		result.TotalDeposited = result.TotalDeposited.Add(request.Amount)
	}

	for venueAddress, amount := range venueFunds {
		intent := e.newIntent(types.IntentForwardDeposit, venueAddress)
		intent.Denom = state.RewardDenom
		intent.Amount = amount
		if err := e.stores.Intents.Save(intent); err != nil {
			return result, err
		}
		result.Intents = append(result.Intents, intent)
	}

	state.TotalRewards = state.TotalRewards.Add(result.TotalDeposited)
	if err := e.stores.State.Save(state); err != nil {
		return result, err
	}

	e.logger.Info().
		Int("requests", len(requests)).
		Str("total_deposited", result.TotalDeposited.String()).
		Int("failed_strategies", len(result.FailedStrategies)).
		Int("inactive_strategies", len(result.InactiveStrategies)).
		Msg("Processed deposit batch")
	return result, nil
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

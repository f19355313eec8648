/*

This file contains the airdrop operations: registering the token contracts
behind a denomination, claiming an airdrop into the share ledger, crediting
pool-claimed airdrops to users, and paying pending balances out.

*/

package engine

import (
	"errors"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/stakeward/scl/internal/authz"
	"github.com/stakeward/scl/internal/ledger"
	"github.com/stakeward/scl/internal/types"
	"github.com/stakeward/scl/internal/utils"
)

// ErrAirdropNotRegistered is returned when a denomination has no registered
// token contracts.
var ErrAirdropNotRegistered = errors.New("airdrop denomination is not registered")

// RegisterAirdropContracts maps an airdrop denomination to its token and
// claim contracts. Manager only; re-registration overwrites.
func (e *Engine) RegisterAirdropContracts(req authz.Request, contracts types.AirdropContracts) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return err
	}
	return e.stores.Airdrops.Save(contracts)
}

// ClaimAirdrop distributes a claimed airdrop across a strategy's
// shareholders via the airdrop pointer and emits the claim intent to the
// venue. Rejected when the strategy has no shares: there would be no one to
// credit and the funds would be stranded. Manager only.
func (e *Engine) ClaimAirdrop(req authz.Request, strategyName, denom string, amount sdkmath.Int, claimPayload []byte) (types.Intent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return types.Intent{}, err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return types.Intent{}, err
	}

	contracts, registered, err := e.stores.Airdrops.Get(denom)
	if err != nil {
		return types.Intent{}, err
	}
	if !registered {
		return types.Intent{}, ErrAirdropNotRegistered
	}

	strategy, exists, err := e.stores.Strategies.Get(strategyName)
	if err != nil {
		return types.Intent{}, err
	}
	if !exists {
		return types.Intent{}, ErrStrategyNotFound
	}

	if err := ledger.DistributeAirdrop(&strategy, denom, amount); err != nil {
		return types.Intent{}, err
	}
	if err := e.stores.Strategies.Save(strategy); err != nil {
		return types.Intent{}, err
	}

	state.TotalAirdrops = utils.MergeCoins(state.TotalAirdrops,
		sdktypes.Coins{{Denom: denom, Amount: amount}}, utils.Add)
	if err := e.stores.State.Save(state); err != nil {
		return types.Intent{}, err
	}

	intent := e.newIntent(types.IntentClaimAirdrop, strategy.VenueAddress)
	intent.Denom = denom
	intent.Amount = amount
	intent.Payload = claimPayload
	intent.Strategy = strategy.Name
	// The claim is executed against the claim contract; the token contract
	// receives the transfer when the user later withdraws.
	intent.Target = contracts.ClaimContract
	if err := e.stores.Intents.Save(intent); err != nil {
		return types.Intent{}, err
	}

	e.logger.Info().
		Str("strategy", strategyName).
		Str("denom", denom).
		Str("amount", amount.String()).
		Msg("Claimed airdrop into share ledger")
	return intent, nil
}

// ProcessAirdropUpdates credits users with airdrops the pool contract
// already claimed on their behalf. Pool contract only. An empty request list
// is a no-op, not an error.
func (e *Engine) ProcessAirdropUpdates(req authz.Request, requests []types.AirdropUpdateRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderPoolContract); err != nil {
		return err
	}
	if len(requests) == 0 {
		return nil
	}

	for _, request := range requests {
		user, found, err := e.stores.Users.Get(request.User)
		if err != nil {
			return err
		}
		if !found {
			user = types.NewUserLedger(request.User)
		}

		user.PendingAirdrops = utils.MergeCoins(user.PendingAirdrops, request.Airdrops, utils.Add)
		if err := e.stores.Users.Save(user); err != nil {
			return err
		}

		state.TotalAirdrops = utils.MergeCoins(state.TotalAirdrops, request.Airdrops, utils.Add)
	}

	return e.stores.State.Save(state)
}

// WithdrawPendingRewards zeroes the sender's pending rewards and emits the
// payout intent. A zero balance is a quiet no-op.
func (e *Engine) WithdrawPendingRewards(req authz.Request) (types.Intent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return types.Intent{}, err
	}
	if err := authz.Validate(state, req, authz.NoFunds); err != nil {
		return types.Intent{}, err
	}

	user, found, err := e.stores.Users.Get(req.Sender)
	if err != nil {
		return types.Intent{}, err
	}
	if !found {
		return types.Intent{}, ErrUserNotFound
	}

	pending := user.PendingRewards
	if pending.IsZero() {
		return types.Intent{}, nil
	}

	user.PendingRewards = sdkmath.ZeroInt()
	if err := e.stores.Users.Save(user); err != nil {
		return types.Intent{}, err
	}

	intent := e.newIntent(types.IntentPayout, req.Sender)
	intent.Denom = state.RewardDenom
	intent.Amount = pending
	if err := e.stores.Intents.Save(intent); err != nil {
		return types.Intent{}, err
	}
	return intent, nil
}

// WithdrawPendingAirdrops realizes the sender's airdrop pointer deltas across
// every strategy they hold, then pays the pending balance out denomination by
// denomination. Denominations with no registered token contract are reported
// in the failure list and their balances retained for a later attempt; the
// registered denominations still pay out.
func (e *Engine) WithdrawPendingAirdrops(req authz.Request) (types.WithdrawAirdropsResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := types.WithdrawAirdropsResult{}

	state, err := e.stores.State.Get()
	if err != nil {
		return result, err
	}
	if err := authz.Validate(state, req, authz.NoFunds); err != nil {
		return result, err
	}

	user, found, err := e.stores.Users.Get(req.Sender)
	if err != nil {
		return result, err
	}
	if !found {
		return result, ErrUserNotFound
	}

	// Sweep every position up to its strategy's current pointers first so the
	// payout includes distributions the user never touched since.
	for i := range user.Positions {
		strategy, exists, err := e.stores.Strategies.Get(user.Positions[i].Strategy)
		if err != nil {
			return result, err
		}
		if !exists {
			continue
		}
		realized := ledger.Realize(strategy, &user.Positions[i])
		user.PendingRewards = user.PendingRewards.Add(realized.Rewards)
		user.PendingAirdrops = utils.MergeCoins(user.PendingAirdrops, realized.Airdrops, utils.Add)
	}

	paid := sdktypes.Coins{}
	retained := sdktypes.Coins{}
	for _, coin := range user.PendingAirdrops {
		contracts, registered, err := e.stores.Airdrops.Get(coin.Denom)
		if err != nil {
			return result, err
		}
		if !registered {
			result.FailedDenoms = append(result.FailedDenoms, coin.Denom)
			retained = append(retained, coin)
			continue
		}

		intent := e.newIntent(types.IntentTokenTransfer, contracts.TokenContract)
		intent.Denom = coin.Denom
		intent.Amount = coin.Amount
		intent.Payload = []byte(req.Sender)
		if err := e.stores.Intents.Save(intent); err != nil {
			return result, err
		}
		result.Intents = append(result.Intents, intent)
		paid = append(paid, coin)
	}

	// TotalAirdrops is a running accumulation counter like TotalRewards;
	// payouts do not wind it back.
	user.PendingAirdrops = retained
	if err := e.stores.Users.Save(user); err != nil {
		return result, err
	}

	e.logger.Info().
		Str("user", req.Sender).
		Int("paid_denoms", len(paid)).
		Int("failed_denoms", len(result.FailedDenoms)).
		Msg("Withdrew pending airdrops")
	return result, nil
}

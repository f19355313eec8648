package engine

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeward/scl/internal/authz"
	"github.com/stakeward/scl/internal/portfolio"
	"github.com/stakeward/scl/internal/state"
	"github.com/stakeward/scl/internal/types"
	"github.com/stakeward/scl/internal/undelegation"
)

const (
	managerAddr = "manager-addr"
	poolAddr    = "pool-addr"
	rewardDenom = "uatom"
)

var genesis = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// stubVenue serves canned ratios and validator views and counts ratio
// queries so memoization is observable.
type stubVenue struct {
	ratios     map[string]sdkmath.LegacyDec
	ratioCalls map[string]int
	validators []types.ValidatorView
}

func newStubVenue() *stubVenue {
	return &stubVenue{
		ratios:     make(map[string]sdkmath.LegacyDec),
		ratioCalls: make(map[string]int),
	}
}

func (s *stubVenue) SharesPerUnitValue(_ context.Context, venueAddress string) (sdkmath.LegacyDec, error) {
	s.ratioCalls[venueAddress]++
	if ratio, ok := s.ratios[venueAddress]; ok {
		return ratio, nil
	}
	return sdkmath.LegacyOneDec(), nil
}

func (s *stubVenue) Validators(_ context.Context) ([]types.ValidatorView, error) {
	return s.validators, nil
}

type testHarness struct {
	engine  *Engine
	venue   *stubVenue
	intents *state.MemoryIntentStore
	now     time.Time
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	venue := newStubVenue()
	intents := state.NewMemoryIntentStore()
	harness := &testHarness{venue: venue, intents: intents, now: genesis}

	eng, err := NewEngine(Config{
		Stores: Stores{
			State:      state.NewMemoryStateStore(types.NewLedgerState(managerAddr, poolAddr, rewardDenom, genesis)),
			Strategies: state.NewMemoryStrategyStore(),
			Users:      state.NewMemoryUserStore(),
			Batches:    state.NewMemoryBatchStore(),
			Validators: state.NewMemoryValidatorStore(),
			Airdrops:   state.NewMemoryAirdropStore(),
			Intents:    intents,
		},
		Venue:       venue,
		BatchWindow: 24 * time.Hour,
		Now:         func() time.Time { return harness.now },
	})
	require.NoError(t, err)

	harness.engine = eng
	return harness
}

func managerReq() authz.Request { return authz.Request{Sender: managerAddr} }
func poolReq() authz.Request    { return authz.Request{Sender: poolAddr} }

func (h *testHarness) registerStrategy(t *testing.T, name, venueAddr string) {
	t.Helper()
	require.NoError(t, h.engine.RegisterStrategy(managerReq(), name, venueAddr, 21*24*time.Hour))
}

func (h *testHarness) deposit(t *testing.T, user, strategy string, amount int64) types.DepositResult {
	t.Helper()
	result, err := h.engine.ProcessDeposits(context.Background(), poolReq(), []types.DepositRequest{
		{User: user, Strategy: strategy, Amount: sdkmath.NewInt(amount)},
	})
	require.NoError(t, err)
	return result
}

func TestRegisterStrategyRequiresManager(t *testing.T) {
	h := newTestHarness(t)

	err := h.engine.RegisterStrategy(authz.Request{Sender: "intruder"}, "sirius", "venue-1", time.Hour)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}

func TestRegisterStrategyOpensFirstBatch(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")

	strategy, err := h.engine.Strategy("sirius")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), strategy.CurrentBatchID)

	batch, err := h.engine.Batch("sirius", 1)
	require.NoError(t, err)
	assert.False(t, batch.Closed)
}

func TestRegisterStrategyDuplicate(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")

	err := h.engine.RegisterStrategy(managerReq(), "sirius", "venue-2", time.Hour)
	assert.ErrorIs(t, err, ErrStrategyExists)
}

func TestRemoveStrategyWithSharesOutstanding(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	h.deposit(t, "alice", "sirius", 1000)

	err := h.engine.RemoveStrategy(managerReq(), "sirius")
	assert.ErrorIs(t, err, ErrStrategyNotEmpty)
}

func TestProcessDepositsRequiresPoolContract(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.engine.ProcessDeposits(context.Background(), managerReq(), nil)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}

func TestProcessDepositsExplicitStrategy(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")

	result := h.deposit(t, "alice", "sirius", 1000)

	assert.Equal(t, sdkmath.NewInt(1000), result.TotalDeposited)
	require.Len(t, result.Intents, 1)
	assert.Equal(t, types.IntentForwardDeposit, result.Intents[0].Type)
	assert.Equal(t, "venue-1", result.Intents[0].Target)
	assert.Equal(t, sdkmath.NewInt(1000), result.Intents[0].Amount)

	user, err := h.engine.User("alice")
	require.NoError(t, err)
	position := user.Position("sirius")
	require.NotNil(t, position)
	assert.Equal(t, sdkmath.LegacyNewDec(1000), position.Shares)

	protocolState, err := h.engine.State()
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1000), protocolState.TotalRewards)
}

func TestProcessDepositsPortfolioSplit(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	h.registerStrategy(t, "vega", "venue-2")

	require.NoError(t, h.engine.UpdateUserPortfolio(
		authz.Request{Sender: "alice"}, "sirius", sdkmath.LegacyMustNewDecFromStr("0.5")))
	require.NoError(t, h.engine.UpdateUserPortfolio(
		authz.Request{Sender: "alice"}, "vega", sdkmath.LegacyMustNewDecFromStr("0.25")))

	result := h.deposit(t, "alice", "", 100)

	assert.Equal(t, sdkmath.NewInt(100), result.TotalDeposited)

	user, err := h.engine.User("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.LegacyNewDec(50), user.Position("sirius").Shares)
	assert.Equal(t, sdkmath.LegacyNewDec(25), user.Position("vega").Shares)
	// The unallocated quarter settles as directly-pending balance.
	assert.Equal(t, sdkmath.NewInt(25), user.PendingRewards)
}

func TestProcessDepositsZeroAmountDiagnostic(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")

	result, err := h.engine.ProcessDeposits(context.Background(), poolReq(), []types.DepositRequest{
		{User: "alice", Strategy: "sirius", Amount: sdkmath.ZeroInt()},
		{User: "bob", Strategy: "sirius", Amount: sdkmath.NewInt(500)},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, result.ZeroDepositUsers)
	assert.Equal(t, sdkmath.NewInt(500), result.TotalDeposited)
}

func TestProcessDepositsNegativeAmountDiagnostic(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")

	result, err := h.engine.ProcessDeposits(context.Background(), poolReq(), []types.DepositRequest{
		{User: "alice", Strategy: "sirius", Amount: sdkmath.NewInt(100)},
		{User: "bob", Strategy: "sirius", Amount: sdkmath.NewInt(-50)},
	})
	require.NoError(t, err)

	// The negative entry is diagnosed up front; the rest of the batch
	// commits in full, intent and totals included.
	assert.Equal(t, []string{"bob"}, result.ZeroDepositUsers)
	assert.Equal(t, sdkmath.NewInt(100), result.TotalDeposited)
	require.Len(t, result.Intents, 1)
	assert.Equal(t, sdkmath.NewInt(100), result.Intents[0].Amount)

	user, err := h.engine.User("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.LegacyNewDec(100), user.Position("sirius").Shares)

	protocolState, err := h.engine.State()
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), protocolState.TotalRewards)

	_, err = h.engine.User("bob")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestProcessDepositsUnknownStrategyParksFunds(t *testing.T) {
	h := newTestHarness(t)

	result := h.deposit(t, "alice", "phantom", 300)

	assert.Equal(t, []string{"phantom"}, result.FailedStrategies)

	user, err := h.engine.User("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(300), user.PendingRewards)
}

func TestProcessDepositsInactiveStrategyParksFunds(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	require.NoError(t, h.engine.SetStrategyActive(managerReq(), "sirius", false))

	result := h.deposit(t, "alice", "sirius", 300)

	assert.Equal(t, []string{"sirius"}, result.InactiveStrategies)

	user, err := h.engine.User("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(300), user.PendingRewards)
}

func TestProcessDepositsMemoizesRatioPerCall(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")

	_, err := h.engine.ProcessDeposits(context.Background(), poolReq(), []types.DepositRequest{
		{User: "alice", Strategy: "sirius", Amount: sdkmath.NewInt(100)},
		{User: "bob", Strategy: "sirius", Amount: sdkmath.NewInt(200)},
		{User: "carol", Strategy: "sirius", Amount: sdkmath.NewInt(300)},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, h.venue.ratioCalls["venue-1"])
}

func TestProcessDepositsAggregatesVenueIntents(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")

	result, err := h.engine.ProcessDeposits(context.Background(), poolReq(), []types.DepositRequest{
		{User: "alice", Strategy: "sirius", Amount: sdkmath.NewInt(100)},
		{User: "bob", Strategy: "sirius", Amount: sdkmath.NewInt(200)},
	})
	require.NoError(t, err)

	// One forwarding intent per venue, not per request.
	require.Len(t, result.Intents, 1)
	assert.Equal(t, sdkmath.NewInt(300), result.Intents[0].Amount)

	saved := h.intents.Intents()
	require.Len(t, saved, 1)
	assert.Equal(t, result.Intents[0].CorrelationID, saved[0].CorrelationID)
}

func TestUpdateUserPortfolioUnknownStrategy(t *testing.T) {
	h := newTestHarness(t)

	err := h.engine.UpdateUserPortfolio(
		authz.Request{Sender: "alice"}, "phantom", sdkmath.LegacyMustNewDecFromStr("0.5"))
	assert.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestUpdateUserPortfolioFractionSumAborts(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	h.registerStrategy(t, "vega", "venue-2")

	require.NoError(t, h.engine.UpdateUserPortfolio(
		authz.Request{Sender: "alice"}, "sirius", sdkmath.LegacyMustNewDecFromStr("0.8")))

	err := h.engine.UpdateUserPortfolio(
		authz.Request{Sender: "alice"}, "vega", sdkmath.LegacyMustNewDecFromStr("0.3"))
	assert.ErrorIs(t, err, portfolio.ErrFractionSum)

	user, err := h.engine.User("alice")
	require.NoError(t, err)
	require.Len(t, user.Portfolio, 1)
	assert.Equal(t, "sirius", user.Portfolio[0].Strategy)
}

func TestUndelegationLifecycle(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	h.deposit(t, "alice", "sirius", 1000)

	require.NoError(t, h.engine.RequestUndelegation(
		authz.Request{Sender: "alice"}, "sirius", sdkmath.NewInt(1000)))

	intent, err := h.engine.CloseBatch(managerReq(), "sirius")
	require.NoError(t, err)
	assert.Equal(t, types.IntentUndelegate, intent.Type)
	assert.Equal(t, sdkmath.NewInt(1000), intent.Amount)
	assert.NotEmpty(t, intent.CorrelationID)

	// The successor batch opens immediately.
	strategy, err := h.engine.Strategy("sirius")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), strategy.CurrentBatchID)

	// Withdrawal before reconciliation is rejected outright.
	_, err = h.engine.WithdrawFromBatch(authz.Request{Sender: "alice"}, "sirius", 1, sdkmath.NewInt(100))
	assert.ErrorIs(t, err, undelegation.ErrNotReconciled)

	// The continuation reports 950 of 1000 returned.
	require.NoError(t, h.engine.ReconcileBatch(managerReq(), intent.CorrelationID, sdkmath.NewInt(950)))

	payout, err := h.engine.WithdrawFromBatch(authz.Request{Sender: "alice"}, "sirius", 1, sdkmath.NewInt(200))
	require.NoError(t, err)
	assert.Equal(t, types.IntentPayout, payout.Type)
	assert.Equal(t, sdkmath.NewInt(190), payout.Amount)
	assert.Equal(t, rewardDenom, payout.Denom)
}

func TestRequestUndelegationBurnsShares(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	h.deposit(t, "alice", "sirius", 1000)

	require.NoError(t, h.engine.RequestUndelegation(
		authz.Request{Sender: "alice"}, "sirius", sdkmath.NewInt(400)))

	user, err := h.engine.User("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.LegacyNewDec(600), user.Position("sirius").Shares)

	batch, err := h.engine.Batch("sirius", 1)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(400), batch.AccumulatedAmount)
	assert.Equal(t, sdkmath.NewInt(400), batch.Requests["alice"])
}

func TestReconcileUnknownCorrelation(t *testing.T) {
	h := newTestHarness(t)

	err := h.engine.ReconcileBatch(managerReq(), "no-such-intent", sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestReconcileBatchExactlyOnce(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	h.deposit(t, "alice", "sirius", 1000)
	require.NoError(t, h.engine.RequestUndelegation(
		authz.Request{Sender: "alice"}, "sirius", sdkmath.NewInt(1000)))

	intent, err := h.engine.CloseBatch(managerReq(), "sirius")
	require.NoError(t, err)
	require.NoError(t, h.engine.ReconcileBatch(managerReq(), intent.CorrelationID, sdkmath.NewInt(950)))

	err = h.engine.ReconcileBatch(managerReq(), intent.CorrelationID, sdkmath.NewInt(1000))
	assert.ErrorIs(t, err, undelegation.ErrAlreadyReconciled)
}

func TestRolloverClosesElapsedBatches(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	h.deposit(t, "alice", "sirius", 1000)
	require.NoError(t, h.engine.RequestUndelegation(
		authz.Request{Sender: "alice"}, "sirius", sdkmath.NewInt(500)))

	// Window not elapsed: nothing closes.
	h.now = genesis.Add(time.Hour)
	h.engine.rolloverElapsedBatches()
	batch, err := h.engine.Batch("sirius", 1)
	require.NoError(t, err)
	assert.False(t, batch.Closed)

	h.now = genesis.Add(25 * time.Hour)
	h.engine.rolloverElapsedBatches()
	batch, err = h.engine.Batch("sirius", 1)
	require.NoError(t, err)
	assert.True(t, batch.Closed)

	strategy, err := h.engine.Strategy("sirius")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), strategy.CurrentBatchID)
}

func TestRolloverSkipsEmptyBatches(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")

	h.now = genesis.Add(48 * time.Hour)
	h.engine.rolloverElapsedBatches()

	batch, err := h.engine.Batch("sirius", 1)
	require.NoError(t, err)
	assert.False(t, batch.Closed)
}

func TestWithdrawPendingRewards(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	// No portfolio: the whole deposit lands in pending rewards.
	h.deposit(t, "alice", "", 700)

	intent, err := h.engine.WithdrawPendingRewards(authz.Request{Sender: "alice"})
	require.NoError(t, err)
	assert.Equal(t, types.IntentPayout, intent.Type)
	assert.Equal(t, sdkmath.NewInt(700), intent.Amount)
	assert.Equal(t, "alice", intent.Target)

	user, err := h.engine.User("alice")
	require.NoError(t, err)
	assert.True(t, user.PendingRewards.IsZero())

	// A second withdrawal is a quiet no-op.
	intent, err = h.engine.WithdrawPendingRewards(authz.Request{Sender: "alice"})
	require.NoError(t, err)
	assert.Empty(t, intent.CorrelationID)
}

func TestAirdropClaimAndWithdraw(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	h.deposit(t, "alice", "sirius", 1000)

	require.NoError(t, h.engine.RegisterAirdropContracts(managerReq(), types.AirdropContracts{
		Denom:         "ujuno",
		TokenContract: "juno-token-contract",
		ClaimContract: "juno-claim-contract",
	}))

	claim, err := h.engine.ClaimAirdrop(managerReq(), "sirius", "ujuno", sdkmath.NewInt(500), []byte(`{"claim":{}}`))
	require.NoError(t, err)
	assert.Equal(t, types.IntentClaimAirdrop, claim.Type)
	assert.Equal(t, "juno-claim-contract", claim.Target)

	result, err := h.engine.WithdrawPendingAirdrops(authz.Request{Sender: "alice"})
	require.NoError(t, err)
	assert.Empty(t, result.FailedDenoms)
	require.Len(t, result.Intents, 1)
	assert.Equal(t, types.IntentTokenTransfer, result.Intents[0].Type)
	assert.Equal(t, "juno-token-contract", result.Intents[0].Target)
	assert.Equal(t, sdkmath.NewInt(500), result.Intents[0].Amount)

	// The accumulation counter is monotonic: paying out does not wind it
	// back, mirroring TotalRewards.
	protocolState, err := h.engine.State()
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(500), protocolState.TotalAirdrops.AmountOf("ujuno"))
}

func TestClaimAirdropUnregisteredDenom(t *testing.T) {
	h := newTestHarness(t)
	h.registerStrategy(t, "sirius", "venue-1")
	h.deposit(t, "alice", "sirius", 1000)

	_, err := h.engine.ClaimAirdrop(managerReq(), "sirius", "ujuno", sdkmath.NewInt(500), nil)
	assert.ErrorIs(t, err, ErrAirdropNotRegistered)
}

func TestWithdrawPendingAirdropsRetainsUnregisteredDenoms(t *testing.T) {
	h := newTestHarness(t)

	require.NoError(t, h.engine.ProcessAirdropUpdates(poolReq(), []types.AirdropUpdateRequest{
		{User: "alice", Airdrops: sdk.Coins{{Denom: "ujuno", Amount: sdkmath.NewInt(100)}}},
	}))

	result, err := h.engine.WithdrawPendingAirdrops(authz.Request{Sender: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ujuno"}, result.FailedDenoms)
	assert.Empty(t, result.Intents)

	// The balance is retained for a later attempt, not dropped.
	user, err := h.engine.User("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), user.PendingAirdrops.AmountOf("ujuno"))
}

func TestValidatorLifecycle(t *testing.T) {
	h := newTestHarness(t)

	require.NoError(t, h.engine.AddValidator(managerReq(), "valoper1"))
	assert.ErrorIs(t, h.engine.AddValidator(managerReq(), "valoper1"), ErrValidatorExists)

	require.NoError(t, h.engine.TrackDelegation(managerReq(), "valoper1", sdkmath.NewInt(1000)))
	require.NoError(t, h.engine.AccrueValidatorRewards(managerReq(), "valoper1",
		sdk.Coins{{Denom: rewardDenom, Amount: sdkmath.NewInt(50)}}))

	// Realized accrual flows into the protocol reward total on the next move.
	require.NoError(t, h.engine.TrackUndelegation(managerReq(), "valoper1", sdkmath.NewInt(400)))

	protocolState, err := h.engine.State()
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(50), protocolState.TotalRewards)

	// Draining to zero allows removal.
	require.NoError(t, h.engine.TrackUndelegation(managerReq(), "valoper1", sdkmath.NewInt(600)))
	require.NoError(t, h.engine.RemoveValidator(managerReq(), "valoper1"))
	assert.ErrorIs(t, h.engine.AccrueValidatorRewards(managerReq(), "valoper1", nil), ErrValidatorNotFound)
}

func TestPickValidatorForDeposit(t *testing.T) {
	h := newTestHarness(t)
	h.venue.validators = []types.ValidatorView{
		{Operator: "valoper1", Jailed: false, Delegated: sdkmath.NewInt(900)},
		{Operator: "valoper2", Jailed: true, Delegated: sdkmath.NewInt(10)},
		{Operator: "valoper3", Jailed: false, Delegated: sdkmath.NewInt(200)},
	}

	picked, err := h.engine.PickValidatorForDeposit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "valoper3", picked)
}

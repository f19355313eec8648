package validators

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeward/scl/internal/types"
)

func rewards(amount int64) sdk.Coins {
	return sdk.Coins{{Denom: "uatom", Amount: sdkmath.NewInt(amount)}}
}

func TestIncreaseStakeRealizesAccrualFirst(t *testing.T) {
	meta := types.NewValidatorMeta("valoper1")
	AccrueRewards(&meta, rewards(75))

	realized, err := IncreaseStake(&meta, sdkmath.NewInt(1000))
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(75), realized.AmountOf("uatom"))
	assert.True(t, meta.AccruedRewards.IsZero())
	assert.Equal(t, sdkmath.NewInt(1000), meta.Staked)
}

func TestDecreaseStakeSaturatesAtZero(t *testing.T) {
	meta := types.NewValidatorMeta("valoper1")
	_, err := IncreaseStake(&meta, sdkmath.NewInt(100))
	require.NoError(t, err)

	_, err = DecreaseStake(&meta, sdkmath.NewInt(250))
	require.NoError(t, err)

	assert.True(t, meta.Staked.IsZero())
}

func TestRedelegateStrictOnSourceStake(t *testing.T) {
	src := types.NewValidatorMeta("valoper1")
	dst := types.NewValidatorMeta("valoper2")
	_, err := IncreaseStake(&src, sdkmath.NewInt(100))
	require.NoError(t, err)

	_, err = Redelegate(&src, &dst, sdkmath.NewInt(150))
	assert.ErrorIs(t, err, ErrInsufficientStake)
	assert.Equal(t, sdkmath.NewInt(100), src.Staked)
	assert.True(t, dst.Staked.IsZero())
}

func TestRedelegateRealizesBothAccruals(t *testing.T) {
	src := types.NewValidatorMeta("valoper1")
	dst := types.NewValidatorMeta("valoper2")
	_, err := IncreaseStake(&src, sdkmath.NewInt(500))
	require.NoError(t, err)
	AccrueRewards(&src, rewards(10))
	AccrueRewards(&dst, rewards(5))

	realized, err := Redelegate(&src, &dst, sdkmath.NewInt(200))
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(15), realized.AmountOf("uatom"))
	assert.Equal(t, sdkmath.NewInt(300), src.Staked)
	assert.Equal(t, sdkmath.NewInt(200), dst.Staked)
	assert.True(t, src.AccruedRewards.IsZero())
	assert.True(t, dst.AccruedRewards.IsZero())
}

func view(operator string, jailed bool, delegated int64) types.ValidatorView {
	return types.ValidatorView{
		Operator:  operator,
		Jailed:    jailed,
		Delegated: sdkmath.NewInt(delegated),
	}
}

func TestPickForDepositLeastLoaded(t *testing.T) {
	views := []types.ValidatorView{
		view("valoper1", false, 900),
		view("valoper2", false, 300),
		view("valoper3", false, 600),
	}

	picked, err := PickForDeposit(views)
	require.NoError(t, err)
	assert.Equal(t, "valoper2", picked)
}

func TestPickForDepositSkipsJailed(t *testing.T) {
	views := []types.ValidatorView{
		view("valoper1", true, 10),
		view("valoper2", false, 500),
	}

	picked, err := PickForDeposit(views)
	require.NoError(t, err)
	assert.Equal(t, "valoper2", picked)
}

func TestPickForDepositZeroDelegationWins(t *testing.T) {
	views := []types.ValidatorView{
		view("valoper1", false, 500),
		view("valoper2", false, 0),
		view("valoper3", false, 100),
	}

	picked, err := PickForDeposit(views)
	require.NoError(t, err)
	assert.Equal(t, "valoper2", picked)
}

func TestPickForDepositAllJailed(t *testing.T) {
	views := []types.ValidatorView{
		view("valoper1", true, 100),
		view("valoper2", true, 200),
	}

	_, err := PickForDeposit(views)
	assert.ErrorIs(t, err, ErrAllValidatorsJailed)
}

func TestPickForDepositEmptySet(t *testing.T) {
	_, err := PickForDeposit(nil)
	assert.ErrorIs(t, err, ErrNoValidators)
}

func TestSortedByStakeAscendingWithTieBreak(t *testing.T) {
	views := []types.ValidatorView{
		view("valoperB", false, 100),
		view("valoperA", false, 100),
		view("valoperC", false, 50),
		view("valoperD", true, 1),
	}

	sorted, err := SortedByStake(views)
	require.NoError(t, err)

	require.Len(t, sorted, 3)
	assert.Equal(t, "valoperC", sorted[0].Operator)
	assert.Equal(t, "valoperA", sorted[1].Operator)
	assert.Equal(t, "valoperB", sorted[2].Operator)
}

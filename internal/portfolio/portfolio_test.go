package portfolio

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeward/scl/internal/types"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func TestSetEntryRejectsFractionSumAboveOne(t *testing.T) {
	user := types.NewUserLedger("alice")
	require.NoError(t, SetEntry(&user, "sirius", dec("0.5")))
	require.NoError(t, SetEntry(&user, "vega", dec("0.25")))

	err := SetEntry(&user, "orion", dec("0.75"))
	assert.ErrorIs(t, err, ErrFractionSum)

	// The stored portfolio is exactly what it was before the bad update.
	require.Len(t, user.Portfolio, 2)
	assert.Equal(t, dec("0.75"), user.PortfolioFractionSum())
}

func TestSetEntryReplacesExistingEntry(t *testing.T) {
	user := types.NewUserLedger("alice")
	require.NoError(t, SetEntry(&user, "sirius", dec("0.5")))
	require.NoError(t, SetEntry(&user, "sirius", dec("0.9")))

	require.Len(t, user.Portfolio, 1)
	assert.Equal(t, dec("0.9"), user.Portfolio[0].Fraction)
}

func TestSetEntryRejectsInvalidFraction(t *testing.T) {
	user := types.NewUserLedger("alice")

	assert.ErrorIs(t, SetEntry(&user, "sirius", dec("-0.1")), ErrInvalidFraction)
	assert.ErrorIs(t, SetEntry(&user, "sirius", dec("1.1")), ErrInvalidFraction)
	assert.Empty(t, user.Portfolio)
}

func TestGetStrategySplitExactFractions(t *testing.T) {
	user := types.NewUserLedger("alice")
	require.NoError(t, SetEntry(&user, "sirius", dec("0.5")))
	require.NoError(t, SetEntry(&user, "vega", dec("0.25")))
	require.NoError(t, SetEntry(&user, "orion", dec("0.25")))

	splits, surplus := GetStrategySplit(user, sdkmath.NewInt(100))

	require.Len(t, splits, 3)
	assert.Equal(t, sdkmath.NewInt(50), splits[0].Amount)
	assert.Equal(t, sdkmath.NewInt(25), splits[1].Amount)
	assert.Equal(t, sdkmath.NewInt(25), splits[2].Amount)
	assert.True(t, surplus.IsZero())
}

func TestGetStrategySplitFlooringDustGoesToSurplus(t *testing.T) {
	user := types.NewUserLedger("alice")
	require.NoError(t, SetEntry(&user, "sirius", dec("0.333")))
	require.NoError(t, SetEntry(&user, "vega", dec("0.333")))

	splits, surplus := GetStrategySplit(user, sdkmath.NewInt(100))

	// floor(33.3) twice, remainder 34
	assert.Equal(t, sdkmath.NewInt(33), splits[0].Amount)
	assert.Equal(t, sdkmath.NewInt(33), splits[1].Amount)
	assert.Equal(t, sdkmath.NewInt(34), surplus)
}

func TestGetStrategySplitNoPortfolio(t *testing.T) {
	user := types.NewUserLedger("alice")

	splits, surplus := GetStrategySplit(user, sdkmath.NewInt(500))

	assert.Empty(t, splits)
	assert.Equal(t, sdkmath.NewInt(500), surplus)
}

func TestGetStrategySplitConservation(t *testing.T) {
	user := types.NewUserLedger("alice")
	require.NoError(t, SetEntry(&user, "sirius", dec("0.143")))
	require.NoError(t, SetEntry(&user, "vega", dec("0.377")))
	require.NoError(t, SetEntry(&user, "orion", dec("0.48")))

	amount := sdkmath.NewInt(999_983)
	splits, surplus := GetStrategySplit(user, amount)

	total := surplus
	for _, split := range splits {
		total = total.Add(split.Amount)
	}
	assert.Equal(t, amount, total)
}

/*

This file contains the request authorization predicates. Each predicate
checks one property of an inbound request; Validate runs them in sequence and
short-circuits on the first failure. Authorization stays outside the
accounting core: the engine lists the predicates per operation and the ledger
packages never see a sender.

*/

package authz

import (
	"errors"

	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/stakeward/scl/internal/types"
)

var (
	ErrUnauthorized     = errors.New("sender is not authorized for this operation")
	ErrNoFunds          = errors.New("exactly one non-zero fund is required")
	ErrMultipleFunds    = errors.New("multiple funds attached where one was expected")
	ErrInvalidDenom     = errors.New("attached fund has the wrong denomination")
	ErrFundsNotExpected = errors.New("operation does not accept funds")
)

// Request is the caller-supplied envelope every operation is checked against.
type Request struct {
	Sender string
	Funds  sdktypes.Coins
}

// Predicate checks one property of a request against the protocol state.
type Predicate func(state types.LedgerState, req Request) error

// Validate evaluates the predicates in order, stopping at the first failure.
func Validate(state types.LedgerState, req Request, checks ...Predicate) error {
	for _, check := range checks {
		if err := check(state, req); err != nil {
			return err
		}
	}
	return nil
}

// SenderManager requires the protocol manager as sender.
func SenderManager(state types.LedgerState, req Request) error {
	if req.Sender != state.Manager {
		return ErrUnauthorized
	}
	return nil
}

// SenderPoolContract requires the pool contract as sender.
func SenderPoolContract(state types.LedgerState, req Request) error {
	if req.Sender != state.PoolContract {
		return ErrUnauthorized
	}
	return nil
}

// NonZeroSingleFund requires exactly one attached fund, non-zero, in the
// protocol reward denom.
func NonZeroSingleFund(state types.LedgerState, req Request) error {
	if len(req.Funds) == 0 || req.Funds[0].Amount.IsZero() {
		return ErrNoFunds
	}
	if len(req.Funds) > 1 {
		return ErrMultipleFunds
	}
	if req.Funds[0].Denom != state.RewardDenom {
		return ErrInvalidDenom
	}
	return nil
}

// NoFunds rejects any attached funds.
func NoFunds(_ types.LedgerState, req Request) error {
	if len(req.Funds) != 0 {
		return ErrFundsNotExpected
	}
	return nil
}

/*

This file contains the operation engine: the single entry point through which
every state-changing operation runs. Operations are serialized (one at a
time, whole-operation atomic from the caller's point of view) and work
against explicit store objects, never ambient state, so the whole engine runs
unchanged on in-memory stores in tests and Postgres stores in production.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/google/uuid"

	"github.com/stakeward/scl/internal/authz"
	"github.com/stakeward/scl/internal/logger"
	"github.com/stakeward/scl/internal/portfolio"
	"github.com/stakeward/scl/internal/types"
)

var (
	ErrStrategyNotFound  = errors.New("strategy does not exist")
	ErrStrategyExists    = errors.New("strategy already exists")
	ErrStrategyNotEmpty  = errors.New("strategy still has outstanding shares")
	ErrUserNotFound      = errors.New("user has no ledger entry")
	ErrBatchNotFound     = errors.New("undelegation batch does not exist")
	ErrUnknownIntent     = errors.New("no batch matches the correlation id")
	ErrValidatorNotFound = errors.New("validator is not tracked")
	ErrValidatorExists   = errors.New("validator is already tracked")
)

// StrategyStore persists the strategy registry.
type StrategyStore interface {
	Get(name string) (types.Strategy, bool, error)
	Save(strategy types.Strategy) error
	Delete(name string) error
	List() ([]types.Strategy, error)
}

// UserStore persists per-user ledgers.
type UserStore interface {
	Get(user string) (types.UserLedger, bool, error)
	Save(ledger types.UserLedger) error
}

// BatchStore persists undelegation batches.
type BatchStore interface {
	Get(strategy string, id uint64) (types.UndelegationBatch, bool, error)
	Save(batch types.UndelegationBatch) error
	FindByCorrelation(correlationID string) (types.UndelegationBatch, bool, error)
}

// ValidatorStore persists validator bookkeeping records.
type ValidatorStore interface {
	Get(operator string) (types.ValidatorMeta, bool, error)
	Save(meta types.ValidatorMeta) error
	Delete(operator string) error
	List() ([]types.ValidatorMeta, error)
}

// AirdropStore persists the airdrop contract registry.
type AirdropStore interface {
	Get(denom string) (types.AirdropContracts, bool, error)
	Save(contracts types.AirdropContracts) error
}

// StateStore persists the protocol-wide state record.
type StateStore interface {
	Get() (types.LedgerState, error)
	Save(state types.LedgerState) error
}

// IntentStore records emitted forwarding instructions for collaborators to
// pick up and execute.
type IntentStore interface {
	Save(intent types.Intent) error
}

// VenueQuerier is the external yield venue interface: the current
// shares-per-unit-value ratio for a strategy's venue, and the chain-side
// validator set.
type VenueQuerier interface {
	SharesPerUnitValue(ctx context.Context, venueAddress string) (sdkmath.LegacyDec, error)
	Validators(ctx context.Context) ([]types.ValidatorView, error)
}

// Stores bundles every table the engine operates on.
type Stores struct {
	State      StateStore
	Strategies StrategyStore
	Users      UserStore
	Batches    BatchStore
	Validators ValidatorStore
	Airdrops   AirdropStore
	Intents    IntentStore
}

// Config holds the dependencies for a new Engine.
type Config struct {
	Stores      Stores
	Venue       VenueQuerier
	BatchWindow time.Duration
	Now         func() time.Time
}

// Engine executes ledger operations one at a time.
type Engine struct {
	mu sync.Mutex

	logger      zerolog.Logger
	stores      Stores
	venue       VenueQuerier
	batchWindow time.Duration
	now         func() time.Time
}

// NewEngine validates the configuration and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		logger:      logger.GetForComponent("engine"),
		stores:      cfg.Stores,
		venue:       cfg.Venue,
		batchWindow: cfg.BatchWindow,
		now:         now,
	}, nil
}

func validateEngineConfig(cfg Config) error {
	if cfg.Stores.State == nil || cfg.Stores.Strategies == nil || cfg.Stores.Users == nil ||
		cfg.Stores.Batches == nil || cfg.Stores.Validators == nil || cfg.Stores.Airdrops == nil ||
		cfg.Stores.Intents == nil {
		return errors.New("all stores must be provided")
	}
	if cfg.Venue == nil {
		return errors.New("venue querier cannot be nil")
	}
	if cfg.BatchWindow <= 0 {
		return errors.New("batch window must be positive")
	}
	return nil
}

// RegisterStrategy adds a strategy to the registry and opens its first
// undelegation batch. Manager only.
func (e *Engine) RegisterStrategy(req authz.Request, name, venueAddress string, unbondingPeriod time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return err
	}

	if _, exists, err := e.stores.Strategies.Get(name); err != nil {
		return err
	} else if exists {
		return ErrStrategyExists
	}

	strategy := types.NewStrategy(name, venueAddress, unbondingPeriod)
	if err := e.stores.Strategies.Save(strategy); err != nil {
		return err
	}
	if err := e.stores.Batches.Save(types.NewUndelegationBatch(strategy, strategy.CurrentBatchID, e.now())); err != nil {
		return err
	}

	e.logger.Info().Str("strategy", name).Str("venue", venueAddress).Msg("Registered strategy")
	return nil
}

// SetStrategyActive flips the deposit gate on a strategy. Deactivation is
// soft: existing positions keep realizing and withdrawing. Manager only.
func (e *Engine) SetStrategyActive(req authz.Request, name string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return err
	}

	strategy, exists, err := e.stores.Strategies.Get(name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrStrategyNotFound
	}

	strategy.Active = active
	if err := e.stores.Strategies.Save(strategy); err != nil {
		return err
	}

	e.logger.Info().Str("strategy", name).Bool("active", active).Msg("Updated strategy activation")
	return nil
}

// RemoveStrategy hard-deletes a strategy. Only an empty strategy can go: with
// shares outstanding a removal would orphan every holder's claim. Manager
// only.
func (e *Engine) RemoveStrategy(req authz.Request, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.SenderManager, authz.NoFunds); err != nil {
		return err
	}

	strategy, exists, err := e.stores.Strategies.Get(name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrStrategyNotFound
	}
	if !strategy.TotalShares.IsZero() {
		return ErrStrategyNotEmpty
	}

	return e.stores.Strategies.Delete(name)
}

// UpdateUserPortfolio sets one entry of the sender's deposit portfolio. The
// strategy must exist; the fraction-sum invariant aborts the whole update
// with the stored portfolio unchanged.
func (e *Engine) UpdateUserPortfolio(req authz.Request, strategy string, fraction sdkmath.LegacyDec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get()
	if err != nil {
		return err
	}
	if err := authz.Validate(state, req, authz.NoFunds); err != nil {
		return err
	}

	if _, exists, err := e.stores.Strategies.Get(strategy); err != nil {
		return err
	} else if !exists {
		return ErrStrategyNotFound
	}

	user, found, err := e.stores.Users.Get(req.Sender)
	if err != nil {
		return err
	}
	if !found {
		user = types.NewUserLedger(req.Sender)
	}

	if err := portfolio.SetEntry(&user, strategy, fraction); err != nil {
		return err
	}
	return e.stores.Users.Save(user)
}

// Strategy returns a read-only snapshot of one strategy.
func (e *Engine) Strategy(name string) (types.Strategy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	strategy, exists, err := e.stores.Strategies.Get(name)
	if err != nil {
		return types.Strategy{}, err
	}
	if !exists {
		return types.Strategy{}, ErrStrategyNotFound
	}
	return strategy, nil
}

// Strategies returns a read-only snapshot of the whole registry.
func (e *Engine) Strategies() ([]types.Strategy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stores.Strategies.List()
}

// User returns a read-only snapshot of one user's ledger.
func (e *Engine) User(user string) (types.UserLedger, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ledger, found, err := e.stores.Users.Get(user)
	if err != nil {
		return types.UserLedger{}, err
	}
	if !found {
		return types.UserLedger{}, ErrUserNotFound
	}
	return ledger, nil
}

// Batch returns a read-only snapshot of one undelegation batch.
func (e *Engine) Batch(strategy string, id uint64) (types.UndelegationBatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, found, err := e.stores.Batches.Get(strategy, id)
	if err != nil {
		return types.UndelegationBatch{}, err
	}
	if !found {
		return types.UndelegationBatch{}, ErrBatchNotFound
	}
	return batch, nil
}

// State returns the protocol-wide totals.
func (e *Engine) State() (types.LedgerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stores.State.Get()
}

func (e *Engine) newIntent(t types.IntentType, target string) types.Intent {
	return types.Intent{
		CorrelationID: uuid.New().String(),
		Type:          t,
		Target:        target,
		Amount:        sdkmath.ZeroInt(),
		CreatedAt:     e.now(),
	}
}

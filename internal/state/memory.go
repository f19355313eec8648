// ./internal/state/memory.go
package state

import (
	"fmt"
	"sync"

	"github.com/stakeward/scl/internal/types"
)

// The memory stores mirror the Postgres stores record for record. They back
// tests and dry runs where a database is not available.

// MemoryStrategyStore keeps the strategy registry in a map.
type MemoryStrategyStore struct {
	mu         sync.RWMutex
	strategies map[string]types.Strategy
}

func NewMemoryStrategyStore() *MemoryStrategyStore {
	return &MemoryStrategyStore{strategies: make(map[string]types.Strategy)}
}

func (s *MemoryStrategyStore) Get(name string) (types.Strategy, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	strategy, ok := s.strategies[name]
	return strategy, ok, nil
}

func (s *MemoryStrategyStore) Save(strategy types.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[strategy.Name] = strategy
	return nil
}

func (s *MemoryStrategyStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.strategies, name)
	return nil
}

func (s *MemoryStrategyStore) List() ([]types.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	strategies := make([]types.Strategy, 0, len(s.strategies))
	for _, strategy := range s.strategies {
		strategies = append(strategies, strategy)
	}
	return strategies, nil
}

// MemoryUserStore keeps user ledgers in a map.
type MemoryUserStore struct {
	mu      sync.RWMutex
	ledgers map[string]types.UserLedger
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{ledgers: make(map[string]types.UserLedger)}
}

func (s *MemoryUserStore) Get(user string) (types.UserLedger, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ledger, ok := s.ledgers[user]
	return ledger, ok, nil
}

func (s *MemoryUserStore) Save(ledger types.UserLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[ledger.User] = ledger
	return nil
}

type batchKey struct {
	strategy string
	id       uint64
}

// MemoryBatchStore keeps undelegation batches in a map.
type MemoryBatchStore struct {
	mu      sync.RWMutex
	batches map[batchKey]types.UndelegationBatch
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{batches: make(map[batchKey]types.UndelegationBatch)}
}

func (s *MemoryBatchStore) Get(strategy string, id uint64) (types.UndelegationBatch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[batchKey{strategy, id}]
	return batch, ok, nil
}

func (s *MemoryBatchStore) Save(batch types.UndelegationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchKey{batch.Strategy, batch.ID}] = batch
	return nil
}

func (s *MemoryBatchStore) FindByCorrelation(correlationID string) (types.UndelegationBatch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if correlationID == "" {
		return types.UndelegationBatch{}, false, nil
	}
	for _, batch := range s.batches {
		if batch.CorrelationID == correlationID {
			return batch, true, nil
		}
	}
	return types.UndelegationBatch{}, false, nil
}

// MemoryValidatorStore keeps validator bookkeeping records in a map.
type MemoryValidatorStore struct {
	mu    sync.RWMutex
	metas map[string]types.ValidatorMeta
}

func NewMemoryValidatorStore() *MemoryValidatorStore {
	return &MemoryValidatorStore{metas: make(map[string]types.ValidatorMeta)}
}

func (s *MemoryValidatorStore) Get(operator string) (types.ValidatorMeta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.metas[operator]
	return meta, ok, nil
}

func (s *MemoryValidatorStore) Save(meta types.ValidatorMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas[meta.Operator] = meta
	return nil
}

func (s *MemoryValidatorStore) Delete(operator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.metas, operator)
	return nil
}

func (s *MemoryValidatorStore) List() ([]types.ValidatorMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas := make([]types.ValidatorMeta, 0, len(s.metas))
	for _, meta := range s.metas {
		metas = append(metas, meta)
	}
	return metas, nil
}

// MemoryAirdropStore keeps the airdrop contract registry in a map.
type MemoryAirdropStore struct {
	mu        sync.RWMutex
	contracts map[string]types.AirdropContracts
}

func NewMemoryAirdropStore() *MemoryAirdropStore {
	return &MemoryAirdropStore{contracts: make(map[string]types.AirdropContracts)}
}

func (s *MemoryAirdropStore) Get(denom string) (types.AirdropContracts, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contracts, ok := s.contracts[denom]
	return contracts, ok, nil
}

func (s *MemoryAirdropStore) Save(contracts types.AirdropContracts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[contracts.Denom] = contracts
	return nil
}

// MemoryStateStore keeps the single protocol-wide state record.
type MemoryStateStore struct {
	mu          sync.RWMutex
	state       types.LedgerState
	initialized bool
}

func NewMemoryStateStore(initial types.LedgerState) *MemoryStateStore {
	return &MemoryStateStore{state: initial, initialized: true}
}

func (s *MemoryStateStore) Get() (types.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return types.LedgerState{}, fmt.Errorf("ledger state has not been initialized")
	}
	return s.state, nil
}

func (s *MemoryStateStore) Save(state types.LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.initialized = true
	return nil
}

// MemoryIntentStore appends every saved intent, in order.
type MemoryIntentStore struct {
	mu      sync.RWMutex
	intents []types.Intent
}

func NewMemoryIntentStore() *MemoryIntentStore {
	return &MemoryIntentStore{}
}

func (s *MemoryIntentStore) Save(intent types.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, intent)
	return nil
}

// Intents returns a copy of every intent saved so far.
func (s *MemoryIntentStore) Intents() []types.Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Intent, len(s.intents))
	copy(out, s.intents)
	return out
}

// ./internal/state/stores.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/stakeward/scl/internal/types"
)

// The stores persist each record as a JSONB document keyed by its natural
// key. The sdk amount types carry their own JSON encodings, so the documents
// round-trip without precision loss.

// StrategyStore persists the strategy registry in Postgres.
type StrategyStore struct{}

func (StrategyStore) Get(name string) (types.Strategy, bool, error) {
	var record types.Strategy
	found, err := getRecord(`SELECT record FROM strategies WHERE name = $1`, &record, name)
	return record, found, err
}

func (StrategyStore) Save(strategy types.Strategy) error {
	return upsertRecord(`
		INSERT INTO strategies (name, record, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET record = $2, updated_at = CURRENT_TIMESTAMP`,
		strategy, strategy.Name)
}

func (StrategyStore) Delete(name string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := DB.Exec(`DELETE FROM strategies WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete strategy %s: %w", name, err)
	}
	return nil
}

func (StrategyStore) List() ([]types.Strategy, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.Query(`SELECT record FROM strategies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	defer rows.Close()

	var strategies []types.Strategy
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan strategy row: %w", err)
		}
		var strategy types.Strategy
		if err := json.Unmarshal(raw, &strategy); err != nil {
			return nil, fmt.Errorf("failed to decode strategy record: %w", err)
		}
		strategies = append(strategies, strategy)
	}
	return strategies, rows.Err()
}

// UserStore persists per-user ledgers in Postgres.
type UserStore struct{}

func (UserStore) Get(user string) (types.UserLedger, bool, error) {
	var record types.UserLedger
	found, err := getRecord(`SELECT record FROM user_ledgers WHERE user_address = $1`, &record, user)
	return record, found, err
}

func (UserStore) Save(ledger types.UserLedger) error {
	return upsertRecord(`
		INSERT INTO user_ledgers (user_address, record, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (user_address) DO UPDATE SET record = $2, updated_at = CURRENT_TIMESTAMP`,
		ledger, ledger.User)
}

// BatchStore persists undelegation batches in Postgres. The correlation id is
// lifted into its own indexed column so reconciliation lookups don't scan
// documents.
type BatchStore struct{}

func (BatchStore) Get(strategy string, id uint64) (types.UndelegationBatch, bool, error) {
	var record types.UndelegationBatch
	found, err := getRecord(
		`SELECT record FROM undelegation_batches WHERE strategy = $1 AND batch_id = $2`,
		&record, strategy, int64(id))
	return record, found, err
}

func (BatchStore) Save(batch types.UndelegationBatch) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	raw, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch record: %w", err)
	}
	correlation := sql.NullString{String: batch.CorrelationID, Valid: batch.CorrelationID != ""}
	_, err = DB.Exec(`
		INSERT INTO undelegation_batches (strategy, batch_id, correlation_id, record, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (strategy, batch_id) DO UPDATE
			SET correlation_id = $3, record = $4, updated_at = CURRENT_TIMESTAMP`,
		batch.Strategy, int64(batch.ID), correlation, raw)
	if err != nil {
		return fmt.Errorf("failed to save batch record: %w", err)
	}
	return nil
}

func (BatchStore) FindByCorrelation(correlationID string) (types.UndelegationBatch, bool, error) {
	var record types.UndelegationBatch
	found, err := getRecord(
		`SELECT record FROM undelegation_batches WHERE correlation_id = $1`,
		&record, correlationID)
	return record, found, err
}

// ValidatorStore persists validator bookkeeping records in Postgres.
type ValidatorStore struct{}

func (ValidatorStore) Get(operator string) (types.ValidatorMeta, bool, error) {
	var record types.ValidatorMeta
	found, err := getRecord(`SELECT record FROM validator_meta WHERE operator = $1`, &record, operator)
	return record, found, err
}

func (ValidatorStore) Save(meta types.ValidatorMeta) error {
	return upsertRecord(`
		INSERT INTO validator_meta (operator, record, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (operator) DO UPDATE SET record = $2, updated_at = CURRENT_TIMESTAMP`,
		meta, meta.Operator)
}

func (ValidatorStore) Delete(operator string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := DB.Exec(`DELETE FROM validator_meta WHERE operator = $1`, operator)
	if err != nil {
		return fmt.Errorf("failed to delete validator %s: %w", operator, err)
	}
	return nil
}

func (ValidatorStore) List() ([]types.ValidatorMeta, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.Query(`SELECT record FROM validator_meta ORDER BY operator`)
	if err != nil {
		return nil, fmt.Errorf("failed to list validators: %w", err)
	}
	defer rows.Close()

	var metas []types.ValidatorMeta
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan validator row: %w", err)
		}
		var meta types.ValidatorMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode validator record: %w", err)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// AirdropStore persists the airdrop contract registry in Postgres.
type AirdropStore struct{}

func (AirdropStore) Get(denom string) (types.AirdropContracts, bool, error) {
	var record types.AirdropContracts
	found, err := getRecord(`SELECT record FROM airdrop_registry WHERE denom = $1`, &record, denom)
	return record, found, err
}

func (AirdropStore) Save(contracts types.AirdropContracts) error {
	return upsertRecord(`
		INSERT INTO airdrop_registry (denom, record, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (denom) DO UPDATE SET record = $2, updated_at = CURRENT_TIMESTAMP`,
		contracts, contracts.Denom)
}

// StateStore persists the single protocol-wide state row in Postgres.
type StateStore struct{}

func (StateStore) Get() (types.LedgerState, error) {
	var record types.LedgerState
	found, err := getRecord(`SELECT record FROM ledger_state WHERE id = 1`, &record)
	if err != nil {
		return types.LedgerState{}, err
	}
	if !found {
		return types.LedgerState{}, fmt.Errorf("ledger state has not been initialized")
	}
	return record, nil
}

func (StateStore) Save(state types.LedgerState) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode ledger state: %w", err)
	}
	_, err = DB.Exec(`
		INSERT INTO ledger_state (id, record, updated_at)
		VALUES (1, $1, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET record = $1, updated_at = CURRENT_TIMESTAMP`,
		raw)
	if err != nil {
		return fmt.Errorf("failed to save ledger state: %w", err)
	}
	return nil
}

// IntentStore records emitted intents in Postgres.
type IntentStore struct{}

func (IntentStore) Save(intent types.Intent) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	raw, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode intent record: %w", err)
	}
	_, err = DB.Exec(`
		INSERT INTO intents (correlation_id, intent_type, target, record, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (correlation_id) DO NOTHING`,
		intent.CorrelationID, string(intent.Type), intent.Target, raw, intent.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save intent record: %w", err)
	}
	return nil
}

func getRecord(stmt string, out any, args ...any) (bool, error) {
	if DB == nil {
		return false, fmt.Errorf("database not initialized")
	}
	var raw []byte
	err := DB.QueryRow(stmt, args...).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query failed: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode record: %w", err)
	}
	return true, nil
}

func upsertRecord(stmt string, record any, key string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if _, err := DB.Exec(stmt, key, raw); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

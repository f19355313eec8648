package config

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Manager is the address allowed to perform administrative operations.
	Manager string
	// PoolContract is the address of the pool contract that forwards user
	// deposits and claimed airdrops.
	PoolContract string

	// ChainID is the chain ID of the target network.
	ChainID string

	// RewardDenom is the denomination rewards are deposited and paid out in.
	RewardDenom string

	// BatchWindow is how long an undelegation batch stays open before the
	// rollover loop closes it.
	BatchWindow time.Duration
	// RolloverInterval is how often the rollover loop checks for elapsed
	// batches.
	RolloverInterval time.Duration
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Manager, err = getEnv("SCL_MANAGER_ADDRESS")
	if err != nil {
		return err
	}

	PoolContract, err = getEnv("SCL_POOL_CONTRACT_ADDRESS")
	if err != nil {
		return err
	}

	ChainID, err = getEnv("CHAIN_ID")
	if err != nil {
		return err
	}

	RewardDenom, err = getEnv("SCL_REWARD_DENOM")
	if err != nil {
		return err
	}

	BatchWindow, err = getEnvAsDuration("SCL_BATCH_WINDOW")
	if err != nil {
		return err
	}

	RolloverInterval, err = getEnvAsDuration("SCL_ROLLOVER_INTERVAL")
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("ChainID", ChainID).
		Str("Manager", Manager).
		Str("RewardDenom", RewardDenom).
		Dur("BatchWindow", BatchWindow).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsDuration retrieves an environment variable as a time.Duration.
// Returns error if not set or invalid.
func getEnvAsDuration(key string) (time.Duration, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	if value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}

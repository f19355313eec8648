package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/stakeward/scl/internal/config"
	"github.com/stakeward/scl/internal/engine"
	"github.com/stakeward/scl/internal/logger"
	"github.com/stakeward/scl/internal/state"
	"github.com/stakeward/scl/internal/types"
	"github.com/stakeward/scl/internal/venue"
	"github.com/stakeward/scl/internal/web"
)

// main is the entry point for the staking core ledger service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Staking Core Ledger Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Seed the ledger state row on first run
	stateStore := state.StateStore{}
	if _, err := stateStore.Get(); err != nil {
		log.Warn().Err(err).Msg("No ledger state found, seeding initial state.")
		initial := types.NewLedgerState(config.Manager, config.PoolContract, config.RewardDenom, time.Now().UTC())
		if err := stateStore.Save(initial); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed initial ledger state")
		}
	}

	// Initialize gRPC Connection
	grpcEndpoint := config.NodeGRPC
	var creds grpc.DialOption
	if strings.Contains(grpcEndpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	grpcClient, err := grpc.Dial(grpcEndpoint, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("gRPC connection error")
	}
	defer grpcClient.Close()
	log.Info().Str("endpoint", grpcEndpoint).Msg("gRPC connected")

	// --- 2. Venue Client ---
	venueClient, err := venue.NewClient(grpcClient, config.NodeRPC)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize venue client")
	}
	defer venueClient.Close()

	// --- 3. Create Engine with Dependency Injection ---
	engineConfig := engine.Config{
		Stores: engine.Stores{
			State:      state.StateStore{},
			Strategies: state.StrategyStore{},
			Users:      state.UserStore{},
			Batches:    state.BatchStore{},
			Validators: state.ValidatorStore{},
			Airdrops:   state.AirdropStore{},
			Intents:    state.IntentStore{},
		},
		Venue:       venueClient,
		BatchWindow: config.BatchWindow,
	}

	ledgerEngine, err := engine.NewEngine(engineConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ledger engine")
	}

	log.Info().Msg("Ledger engine created successfully")

	// --- 4. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, ledgerEngine)
	go func() {
		log.Info().Str("port", webPort).Msg("Starting ledger query API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Start Batch Rollover Loop ---
	log.Info().Str("interval", config.RolloverInterval.String()).Msg("Starting batch rollover loop")

	ctx := context.Background()
	ledgerEngine.RunRolloverLoop(ctx, config.RolloverInterval)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

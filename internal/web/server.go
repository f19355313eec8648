package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/stakeward/scl/internal/engine"
	"github.com/stakeward/scl/internal/logger"
	"github.com/stakeward/scl/internal/state"
	"github.com/stakeward/scl/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the ledger over a read-only HTTP API. Mutations only run
// through the engine's operation surface, never through HTTP.
type WebServer struct {
	router *mux.Router
	engine *engine.Engine
	port   string
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, eng *engine.Engine) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		engine: eng,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/state", ws.handleGetState).Methods("GET")
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET")
	api.HandleFunc("/strategies/{name}", ws.handleGetStrategy).Methods("GET")
	api.HandleFunc("/strategies/{name}/batches/{id}", ws.handleGetBatch).Methods("GET")
	api.HandleFunc("/users/{user}", ws.handleGetUser).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "scl-staking-core-ledger",
			"version": "1.0.0",
		},
		"database_healthy": dbHealthy,
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// rewardDisplayPrecision shifts micro-denom totals for display.
const rewardDisplayPrecision = 6

// handleGetState returns the protocol-wide totals
func (ws *WebServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	ledgerState, err := ws.engine.State()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get ledger state")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve ledger state")
		return
	}

	response := map[string]interface{}{
		"state": ledgerState,
	}
	if display, err := utils.SDKIntToFloat64(ledgerState.TotalRewards, rewardDisplayPrecision); err == nil {
		response["total_rewards_display"] = display
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetStrategies returns the whole strategy registry
func (ws *WebServer) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := ws.engine.Strategies()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to list strategies")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve strategies")
		return
	}

	response := map[string]interface{}{
		"strategies": strategies,
		"count":      len(strategies),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetStrategy returns a single strategy by name
func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	strategy, err := ws.engine.Strategy(name)
	if err != nil {
		webLogger.Error().Err(err).Str("strategy", name).Msg("Failed to get strategy")
		ws.writeErrorResponse(w, http.StatusNotFound, "Strategy not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, strategy)
}

// handleGetBatch returns a single undelegation batch
func (ws *WebServer) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid batch ID")
		return
	}

	batch, err := ws.engine.Batch(name, id)
	if err != nil {
		webLogger.Error().Err(err).Str("strategy", name).Uint64("batchId", id).Msg("Failed to get batch")
		ws.writeErrorResponse(w, http.StatusNotFound, "Batch not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, batch)
}

// handleGetUser returns a user's ledger
func (ws *WebServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user := vars["user"]

	ledger, err := ws.engine.User(user)
	if err != nil {
		webLogger.Error().Err(err).Str("user", user).Msg("Failed to get user ledger")
		ws.writeErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, ledger)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

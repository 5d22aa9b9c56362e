package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/logger"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/pool"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/state"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the read-only HTTP API over the vault and pool.
type WebServer struct {
	router *mux.Router
	port   string

	vault *vault.Vault
	pool  *pool.Pool
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, v *vault.Vault, p *pool.Pool) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		vault:  v,
		pool:   p,
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
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/reserves", ws.handleGetReserves).Methods("GET")
	api.HandleFunc("/reserves/{index}", ws.handleGetReserve).Methods("GET")
	api.HandleFunc("/pool/summary", ws.handleGetPoolSummary).Methods("GET")
	api.HandleFunc("/pool/price", ws.handleGetSharePrice).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")

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
	if !dbHealthy {
		overallStatus = "DEGRADED"
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
			"name":    "jlp-liquidity-pool",
			"version": strconv.FormatUint(vault.CurrentVersion, 10),
		},
		"database_healthy": dbHealthy,
	}

	statusCode := http.StatusOK
	if !dbHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVaultSummary returns vault-wide statistics
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	summary := map[string]interface{}{
		"version":          ws.vault.Version(),
		"synthetic_denom":  vault.SyntheticDenom,
		"synthetic_supply": ws.vault.SyntheticSupply(),
		"reserve_count":    ws.vault.ReserveCount(),
		"config": map[string]interface{}{
			"liquidity_fee_bps": ws.vault.Config().LiquidityFeeBps,
			"elastic_mint_cap":  ws.vault.Config().ElasticMintCap,
		},
		"timestamp": now.UTC(),
	}

	// AUM needs fresh prices on every reserve; report it when available,
	// degrade to null rather than failing the whole summary.
	if aum, err := ws.vault.AUM(false, now); err == nil {
		summary["aum_lower"] = aum
	} else {
		webLogger.Warn().Err(err).Msg("AUM unavailable for vault summary")
		summary["aum_lower"] = nil
	}
	if aum, err := ws.vault.AUM(true, now); err == nil {
		summary["aum_upper"] = aum
	} else {
		summary["aum_upper"] = nil
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetReserves returns snapshots of all reserves
func (ws *WebServer) handleGetReserves(w http.ResponseWriter, r *http.Request) {
	infos := ws.vault.ReserveInfos()

	response := map[string]interface{}{
		"reserves": infos,
		"count":    len(infos),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetReserve returns a single reserve snapshot by index
func (ws *WebServer) handleGetReserve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	indexStr := vars["index"]

	index, err := strconv.Atoi(indexStr)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid reserve index")
		return
	}

	info, err := ws.vault.ReserveInfoAt(index)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Reserve not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, info)
}

// handleGetPoolSummary returns pool-wide statistics
func (ws *WebServer) handleGetPoolSummary(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"share_denom":        pool.ShareDenom,
		"share_supply":       ws.pool.ShareSupply(),
		"synthetic_holdings": ws.pool.SyntheticHoldings(),
		"paused":             ws.pool.Paused(),
		"cooldown_seconds":   pool.CooldownSeconds,
		"timestamp":          time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetSharePrice returns the current share price at both bounds
func (ws *WebServer) handleGetSharePrice(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	lower, err := ws.pool.SharePrice(false, now)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to compute share price")
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Share price unavailable")
		return
	}
	upper, err := ws.pool.SharePrice(true, now)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Share price unavailable")
		return
	}

	response := map[string]interface{}{
		"share_price_lower": lower,
		"share_price_upper": upper,
		"units_per_usd":     vault.SyntheticUnitsPerUSD,
		"timestamp":         now.UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetEvents returns recent journal entries, optionally filtered by kind
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 500 {
			limit = parsedLimit
		}
	}

	var (
		entries []state.StoredEvent
		err     error
	)
	if kind := r.URL.Query().Get("kind"); kind != "" {
		entries, err = state.GetRecentEventsByKind(kind, limit)
	} else {
		entries, err = state.GetRecentEvents(limit)
	}
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	response := map[string]interface{}{
		"events": entries,
		"count":  len(entries),
		"limit":  limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
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

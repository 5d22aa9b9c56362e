package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/auth"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/config"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/events"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/logger"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/oracle"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/pool"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/state"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/vault"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/web"
)

// main is the entry point for the liquidity pool daemon.
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
	log.Info().Msg("JLP daemon starting...")

	// Initialize Database Connection (event journal)
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

	// --- 2. Core Initialization ---
	caps := auth.Issue()
	sink := events.MultiSink{events.LogSink{}, state.Sink{}}

	vaultCfg := vault.Config{
		LiquidityFeeBps: config.LiquidityFeeBps,
		ElasticMintCap:  config.ElasticMintCap,
	}
	v, err := vault.New(vaultCfg, config.MaxPriceAgeSeconds, sink)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault")
	}
	p := pool.New(v, sink)

	source, err := oracle.NewHTTPSource(config.OracleEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create oracle source")
	}

	// Register the configured reserves, each priced from a live observation.
	ctx := context.Background()
	feedByIndex := make(map[int]string, len(config.Reserves))
	for _, spec := range config.Reserves {
		update, err := source.Latest(ctx, spec.FeedID)
		if err != nil {
			log.Fatal().Err(err).Str("feedId", spec.FeedID).Msg("Failed to fetch initial price")
		}
		index, err := v.AddReserve(caps.Admin, spec.AssetType, spec.MintDecimals, update, time.Now())
		if err != nil {
			log.Fatal().Err(err).Str("assetType", spec.AssetType).Msg("Failed to add reserve")
		}
		feedByIndex[index] = spec.FeedID
		log.Info().Str("assetType", spec.AssetType).Int("index", index).Msg("Reserve registered")
	}

	// --- 3. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, v, p)
	go func() {
		log.Info().Str("port", config.WebPort).Msg("Starting JLP web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Price Refresh Loop ---
	interval := time.Duration(config.PriceRefreshSeconds) * time.Second
	log.Info().Str("interval", interval.String()).Msg("Starting price refresh loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		refreshPrices(ctx, source, v, feedByIndex)
	}
}

// refreshPrices pulls the latest observation for every reserve and applies it.
// A single failing feed is logged and skipped; staleness enforcement happens
// at read time inside the vault.
func refreshPrices(ctx context.Context, source *oracle.HTTPSource, v *vault.Vault, feedByIndex map[int]string) {
	for index, feedID := range feedByIndex {
		update, err := source.Latest(ctx, feedID)
		if err != nil {
			log.Error().Err(err).Str("feedId", feedID).Msg("Price refresh fetch failed")
			continue
		}
		if err := v.RefreshReservePrice(index, update, time.Now()); err != nil {
			log.Error().Err(err).Int("index", index).Msg("Price refresh apply failed")
		}
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

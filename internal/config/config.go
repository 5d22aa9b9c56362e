package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LiquidityFeeBps is the fee charged on every synthetic buy and sell.
	LiquidityFeeBps uint64
	// ElasticMintCap bounds a single uncollateralized supply top-up; 0 means
	// uncapped, matching the original deployment.
	ElasticMintCap uint64
	// MaxPriceAgeSeconds is the staleness threshold for price-dependent
	// reads. 0 requires a refresh within the same second as the read.
	MaxPriceAgeSeconds int64

	// OracleEndpoint is the base URL of the price feed service.
	OracleEndpoint string
	// PriceRefreshSeconds is how often the daemon refreshes reserve prices.
	PriceRefreshSeconds int64

	// Reserves are the collateral assets bootstrapped at startup.
	Reserves []ReserveSpec

	// WebPort is the HTTP port of the read-only dashboard API.
	WebPort string
)

// ReserveSpec describes one collateral asset to register at startup.
type ReserveSpec struct {
	AssetType    string
	MintDecimals uint8
	FeedID       string
}

// LoadConfig loads configuration from environment variables and sets the
// global config vars. All variables without a stated default are required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LiquidityFeeBps, err = getEnvAsUint64("JLP_LIQUIDITY_FEE_BPS")
	if err != nil {
		return err
	}

	ElasticMintCap, err = getEnvAsUint64WithDefault("JLP_ELASTIC_MINT_CAP", 0)
	if err != nil {
		return err
	}

	MaxPriceAgeSeconds, err = getEnvAsInt64WithDefault("JLP_MAX_PRICE_AGE_SECONDS", 0)
	if err != nil {
		return err
	}

	OracleEndpoint, err = getEnv("ORACLE_ENDPOINT")
	if err != nil {
		return err
	}

	PriceRefreshSeconds, err = getEnvAsInt64WithDefault("PRICE_REFRESH_SECONDS", 1)
	if err != nil {
		return err
	}

	reservesRaw, err := getEnv("JLP_RESERVES")
	if err != nil {
		return err
	}
	Reserves, err = parseReserveSpecs(reservesRaw)
	if err != nil {
		return err
	}

	WebPort = os.Getenv("WEB_PORT")
	if WebPort == "" {
		WebPort = "8080"
	}

	log.Debug().
		Uint64("LiquidityFeeBps", LiquidityFeeBps).
		Int64("MaxPriceAgeSeconds", MaxPriceAgeSeconds).
		Int("ReserveCount", len(Reserves)).
		Msg("Configuration loaded successfully.")

	return nil
}

// parseReserveSpecs parses "asset:decimals:feedId" entries separated by
// commas, e.g. "uusdc:6:feed-usdc,uatom:6:feed-atom".
func parseReserveSpecs(raw string) ([]ReserveSpec, error) {
	entries := strings.Split(raw, ",")
	specs := make([]ReserveSpec, 0, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid reserve spec %q: want asset:decimals:feedId", entry)
		}

		decimals, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil || decimals > 18 {
			return nil, fmt.Errorf("invalid decimals in reserve spec %q", entry)
		}
		if parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("reserve spec %q has empty asset or feed", entry)
		}

		specs = append(specs, ReserveSpec{
			AssetType:    parts[0],
			MintDecimals: uint8(decimals),
			FeedID:       parts[2],
		})
	}

	if len(specs) == 0 {
		return nil, errors.New("JLP_RESERVES must name at least one reserve")
	}
	return specs, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsUint64WithDefault is getEnvAsUint64 with a fallback when unset.
func getEnvAsUint64WithDefault(key string, defaultValue uint64) (uint64, error) {
	if _, exists := os.LookupEnv(key); !exists {
		return defaultValue, nil
	}
	return getEnvAsUint64(key)
}

// getEnvAsInt64WithDefault retrieves an environment variable as an int64
// with a fallback when unset.
func getEnvAsInt64WithDefault(key string, defaultValue int64) (int64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// OracleConfig locates one coin's price-feed provider. The API key is taken
// from the environment, never from the file.
type OracleConfig struct {
	Endpoint  string `json:"endpoint"`
	Action    string `json:"action"`    // e.g. "ethprice"
	RateField string `json:"rateField"` // e.g. "ethusd"
	APIKey    string `json:"-"`
}

// CoinConfig is one row of the coin profile table that replaces the
// per-coin service triplication.
type CoinConfig struct {
	Symbol          string       `json:"symbol"`
	Name            string       `json:"name"`
	Decimals        int32        `json:"decimals"`
	RPCURL          string       `json:"rpcUrl"`
	ContractAddress string       `json:"contractAddress"`
	Confirmations   uint64       `json:"confirmations"`
	MaxRetries      int          `json:"maxRetries"`
	Oracle          OracleConfig `json:"oracle"`
	PrivateKey      string       `json:"-"`
}

type ServiceConfig struct {
	Env           string
	HTTPPort      int
	HMACSecret    string
	HMACClockSkew time.Duration
	IdemWindow    time.Duration
	PostgresDSN   string
}

// AppConfig ties together the coin table and service settings.
type AppConfig struct {
	Service ServiceConfig
	Coins   []CoinConfig
}

type coinsFile struct {
	Coins []CoinConfig `json:"coins"`
}

const defaultCoinsPath = "coins.json"

// Load reads the coin table from disk and secrets/overrides from the
// environment. Per-coin env vars are prefixed by the symbol, e.g.
// ETH_PRIVATE_KEY, ETH_RPC_URL, ETH_ORACLE_API_KEY.
func Load() (*AppConfig, error) {
	coinsPath := envOr("COINS_PATH", defaultCoinsPath)

	coins, err := loadCoins(coinsPath)
	if err != nil {
		return nil, fmt.Errorf("load coins: %w", err)
	}

	for i := range coins {
		prefix := strings.ToUpper(coins[i].Symbol)
		coins[i].RPCURL = envOr(prefix+"_RPC_URL", coins[i].RPCURL)
		coins[i].PrivateKey = envOr(prefix+"_PRIVATE_KEY", "")
		coins[i].Oracle.APIKey = envOr(prefix+"_ORACLE_API_KEY", "")
		if coins[i].Decimals == 0 {
			coins[i].Decimals = 18
		}
		if coins[i].Confirmations == 0 {
			coins[i].Confirmations = 1
		}
		if coins[i].MaxRetries == 0 {
			coins[i].MaxRetries = 3
		}
		if err := validateCoin(coins[i]); err != nil {
			return nil, err
		}
	}

	service := ServiceConfig{
		Env:           envOr("APP_ENV", "development"),
		HTTPPort:      envOrInt("API_HTTP_PORT", 3000),
		HMACSecret:    envOr("SETTLEMENT_HMAC_SECRET", ""),
		HMACClockSkew: time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		IdemWindow:    time.Duration(envOrInt("IDEMPOTENCY_WINDOW_SECONDS", 3600)) * time.Second,
		PostgresDSN:   envOr("DATABASE_URL", ""),
	}

	return &AppConfig{Service: service, Coins: coins}, nil
}

func loadCoins(path string) ([]CoinConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f coinsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if len(f.Coins) == 0 {
		return nil, fmt.Errorf("%s: no coins configured", path)
	}
	return f.Coins, nil
}

func validateCoin(c CoinConfig) error {
	if c.Symbol == "" {
		return fmt.Errorf("coin entry missing symbol")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("%s: rpcUrl is required", c.Symbol)
	}
	if c.Oracle.Endpoint == "" || c.Oracle.Action == "" || c.Oracle.RateField == "" {
		return fmt.Errorf("%s: oracle endpoint, action and rateField are required", c.Symbol)
	}
	return nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Relay    RelayConfig
	Fees     FeeConfig
	Chains   map[string]ChainConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds PostgreSQL configuration. An empty Host disables
// persistence; rate limits, funding history and deposit credits then live
// in memory only.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RelayConfig holds relayer operation settings
type RelayConfig struct {
	RelayerPrivateKey      string // signs all relayer transactions on every chain
	RequireValidSignature  bool   // reject requests whose intent signature does not verify
	RateLimitRequests      int    // requests allowed per window per user
	RateLimitWindowSeconds int
	ConfirmTimeoutSeconds  int // receipt wait per transaction
	QueueSize              int // pending relays per chain before rejecting
}

// FeeConfig holds the fee policy. MinFee and MaxFee are base-unit strings
// denominated in the fee token's decimals.
type FeeConfig struct {
	SameChainBps     int
	CrossChainBps    int
	MinFee           string
	MaxFee           string
	FeeTokenDecimals int
}

// TokenConfig describes one ERC-20 token on a chain
type TokenConfig struct {
	Symbol   string
	Address  string
	Decimals int
	Stable   bool
}

// ChainConfig holds configuration for an EVM chain
type ChainConfig struct {
	Name                string
	ChainID             int64
	RPCEndpoint         string
	ExplorerBaseURL     string
	RouterAddress       string // liquidity pool router for swaps
	WrappedNative       string // symbol of the wrapped native token in Tokens
	Tokens              []TokenConfig
	Features            []string // subset of: transfer, swap, native_swap
	GasThresholdWei     string   // minimum relayer native balance to operate
	LowBalanceWei       string   // startup/health warning threshold
	SponsorAmountWei    string   // native top-up sent per gas sponsorship
	SponsorThresholdWei string   // users below this native balance qualify for sponsorship
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "tokenrelay"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Relay: RelayConfig{
			RelayerPrivateKey:      getEnv("RELAY_PRIVATE_KEY", ""),
			RequireValidSignature:  getEnvBool("RELAY_REQUIRE_VALID_SIGNATURE", true),
			RateLimitRequests:      getEnvInt("RELAY_RATE_LIMIT_REQUESTS", 10),
			RateLimitWindowSeconds: getEnvInt("RELAY_RATE_LIMIT_WINDOW_SECONDS", 3600),
			ConfirmTimeoutSeconds:  getEnvInt("RELAY_CONFIRM_TIMEOUT_SECONDS", 120),
			QueueSize:              getEnvInt("RELAY_QUEUE_SIZE", 64),
		},
		Fees: FeeConfig{
			SameChainBps:     getEnvInt("FEE_SAME_CHAIN_BPS", 50),
			CrossChainBps:    getEnvInt("FEE_CROSS_CHAIN_BPS", 150),
			MinFee:           getEnv("FEE_MIN", "500000"),     // 0.5 at 6 decimals
			MaxFee:           getEnv("FEE_MAX", "10000000"),   // 10 at 6 decimals
			FeeTokenDecimals: getEnvInt("FEE_TOKEN_DECIMALS", 6),
		},
		Chains: make(map[string]ChainConfig),
	}

	loadChainConfigs(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadChainConfigs loads configuration for all supported chains. A chain is
// enabled by setting its RPC endpoint.
func loadChainConfigs(cfg *Config) {
	// Ethereum
	if rpc := getEnv("ETH_RPC_ENDPOINT", ""); rpc != "" {
		cfg.Chains["ethereum"] = ChainConfig{
			Name:            "ethereum",
			ChainID:         1,
			RPCEndpoint:     rpc,
			ExplorerBaseURL: getEnv("ETH_EXPLORER_URL", "https://etherscan.io"),
			RouterAddress:   getEnv("ETH_ROUTER_ADDRESS", "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"),
			WrappedNative:   "WETH",
			Tokens: []TokenConfig{
				{Symbol: "USDC", Address: getEnv("ETH_USDC_ADDRESS", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6, Stable: true},
				{Symbol: "USDT", Address: getEnv("ETH_USDT_ADDRESS", "0xdAC17F958D2ee523a2206206994597C13D831ec7"), Decimals: 6, Stable: true},
				{Symbol: "DAI", Address: getEnv("ETH_DAI_ADDRESS", "0x6B175474E89094C44Da98b954EedeAC495271d0F"), Decimals: 18, Stable: true},
				{Symbol: "WETH", Address: getEnv("ETH_WETH_ADDRESS", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18},
			},
			Features:            splitAndTrim(getEnv("ETH_FEATURES", "transfer,swap,native_swap"), ","),
			GasThresholdWei:     getEnv("ETH_GAS_THRESHOLD_WEI", "10000000000000000"),     // 0.01 ETH
			LowBalanceWei:       getEnv("ETH_LOW_BALANCE_WEI", "50000000000000000"),       // 0.05 ETH
			SponsorAmountWei:    getEnv("ETH_SPONSOR_AMOUNT_WEI", "2000000000000000"),     // 0.002 ETH
			SponsorThresholdWei: getEnv("ETH_SPONSOR_THRESHOLD_WEI", "1000000000000000"),  // 0.001 ETH
		}
	}

	// Base
	if rpc := getEnv("BASE_RPC_ENDPOINT", ""); rpc != "" {
		cfg.Chains["base"] = ChainConfig{
			Name:            "base",
			ChainID:         8453,
			RPCEndpoint:     rpc,
			ExplorerBaseURL: getEnv("BASE_EXPLORER_URL", "https://basescan.org"),
			RouterAddress:   getEnv("BASE_ROUTER_ADDRESS", "0x2626664c2603336E57B271c5C0b26F421741e481"),
			WrappedNative:   "WETH",
			Tokens: []TokenConfig{
				{Symbol: "USDC", Address: getEnv("BASE_USDC_ADDRESS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Decimals: 6, Stable: true},
				{Symbol: "DAI", Address: getEnv("BASE_DAI_ADDRESS", "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb"), Decimals: 18, Stable: true},
				{Symbol: "WETH", Address: getEnv("BASE_WETH_ADDRESS", "0x4200000000000000000000000000000000000006"), Decimals: 18},
			},
			Features:            splitAndTrim(getEnv("BASE_FEATURES", "transfer,swap"), ","),
			GasThresholdWei:     getEnv("BASE_GAS_THRESHOLD_WEI", "5000000000000000"),      // 0.005 ETH
			LowBalanceWei:       getEnv("BASE_LOW_BALANCE_WEI", "20000000000000000"),       // 0.02 ETH
			SponsorAmountWei:    getEnv("BASE_SPONSOR_AMOUNT_WEI", "1000000000000000"),     // 0.001 ETH
			SponsorThresholdWei: getEnv("BASE_SPONSOR_THRESHOLD_WEI", "500000000000000"),   // 0.0005 ETH
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Relay.RelayerPrivateKey == "" {
		return fmt.Errorf("relayer private key is required")
	}

	if c.Relay.RateLimitRequests <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.Relay.RateLimitRequests)
	}

	if c.Fees.SameChainBps < 0 || c.Fees.SameChainBps > 10000 {
		return fmt.Errorf("same-chain fee bps out of range: %d", c.Fees.SameChainBps)
	}
	if c.Fees.CrossChainBps < 0 || c.Fees.CrossChainBps > 10000 {
		return fmt.Errorf("cross-chain fee bps out of range: %d", c.Fees.CrossChainBps)
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}

	for name, chain := range c.Chains {
		if chain.RPCEndpoint == "" {
			return fmt.Errorf("chain %s: RPC endpoint is required", name)
		}
		if len(chain.Tokens) == 0 {
			return fmt.Errorf("chain %s: at least one token must be configured", name)
		}
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// splitAndTrim splits a comma-separated string and trims whitespace
func splitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

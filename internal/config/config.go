// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string
	Port int
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// LedgerConfig holds TON wallet and indexer settings.
type LedgerConfig struct {
	// WalletAddress is the receiving wallet in any valid textual encoding.
	WalletAddress string
	// WalletSeed is the space-separated mnemonic for the service wallet.
	WalletSeed string

	ToncenterEndpoint string
	ToncenterAPIKey   string
	TonscanBaseURL    string

	// ProofAmount is the expected payment, in whole TON (e.g. "0.05").
	ProofAmount string
	// CommentPrefix is prepended to the fingerprint in the on-chain comment.
	CommentPrefix string

	SettleDelay    time.Duration
	MaxRetries     int
	CandidateLimit int
}

// Config is the root configuration for the proof pipeline.
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Ledger      LedgerConfig
	DatabaseURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("SERVER_HOST", "0.0.0.0"),
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "text"),
		},
		Ledger: LedgerConfig{
			WalletAddress:     os.Getenv("TON_WALLET_ADDRESS"),
			WalletSeed:        os.Getenv("TON_WALLET_SEED"),
			ToncenterEndpoint: envOr("TONCENTER_ENDPOINT", "https://toncenter.com/api/v2/jsonRPC"),
			ToncenterAPIKey:   os.Getenv("TONCENTER_API_KEY"),
			TonscanBaseURL:    envOr("TONSCAN_BASE_URL", "https://tonscan.org/tx"),
			ProofAmount:       envOr("PROOF_AMOUNT", "0.05"),
			CommentPrefix:     envOr("PROOF_COMMENT_PREFIX", "Proof:"),
			SettleDelay:       15 * time.Second,
			MaxRetries:        3,
			CandidateLimit:    50,
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}

	if raw := os.Getenv("SERVER_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("SERVER_PORT invalid: %q", raw)
		}
		cfg.Server.Port = port
	}

	if raw := os.Getenv("SETTLE_DELAY"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("SETTLE_DELAY invalid: %q", raw)
		}
		cfg.Ledger.SettleDelay = d
	}

	if raw := os.Getenv("MAX_RETRIES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("MAX_RETRIES invalid: %q", raw)
		}
		cfg.Ledger.MaxRetries = n
	}

	if raw := os.Getenv("CANDIDATE_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("CANDIDATE_LIMIT invalid: %q", raw)
		}
		cfg.Ledger.CandidateLimit = n
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

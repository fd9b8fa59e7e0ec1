package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Environment variable names for the refund server configuration
const (
	EnvRefundPort            = "REFUND_PORT"
	EnvRefundRoot            = "REFUND_ROOT"
	EnvRefundOwnerAddress    = "REFUND_OWNER_ADDRESS"
	EnvRefundClaimWindowDays = "REFUND_CLAIM_WINDOW_DAYS"
	EnvRefundPersistenceType = "REFUND_PERSISTENCE_TYPE"
	EnvRefundDataDir         = "REFUND_DATA_DIR"
	EnvRefundRedisAddress    = "REFUND_REDIS_ADDRESS"
	EnvRefundRedisPassword   = "REFUND_REDIS_PASSWORD"
	EnvRefundRedisDB         = "REFUND_REDIS_DB"
	EnvRefundVerbose         = "REFUND_VERBOSE"
)

// PersistenceType selects the claim store backend.
type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceMemory PersistenceType = "memory" // testing only
	PersistenceBadger PersistenceType = "badger"
	PersistenceRedis  PersistenceType = "redis"
)

// DefaultClaimWindowDays matches the on-chain 90-day refund period.
const DefaultClaimWindowDays = 90

// ServerConfig represents the complete configuration for a refund server
type ServerConfig struct {
	// HTTP
	Port int `json:"port"`

	// Ledger parameters
	Root            string `json:"root"`          // Committed merkle root (hex)
	OwnerAddress    string `json:"owner_address"` // Address allowed to withdraw residue
	ClaimWindowDays int    `json:"claim_window_days"`

	// Persistence
	PersistenceType PersistenceType `json:"persistence_type"`
	DataDir         string          `json:"data_dir,omitempty"`       // badger
	RedisAddress    string          `json:"redis_address,omitempty"`  // redis
	RedisPassword   string          `json:"-"`                        // redis, never serialized
	RedisDB         int             `json:"redis_db,omitempty"`       // redis

	// Operational settings
	Verbose bool `json:"verbose"`
}

// Validate validates the refund server configuration
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1-65535, got %d", c.Port)
	}

	// Validate owner address
	if c.OwnerAddress == "" {
		return fmt.Errorf("owner address cannot be empty")
	}
	if !common.IsHexAddress(c.OwnerAddress) {
		return fmt.Errorf("invalid owner address format: %s", c.OwnerAddress)
	}

	// Validate root format; the all-zero root is rejected later by ledger
	// creation, here we only check the shape
	root := strings.TrimPrefix(c.Root, "0x")
	if c.Root == "" {
		return fmt.Errorf("merkle root cannot be empty")
	}
	if len(root) != 64 {
		return fmt.Errorf("merkle root must be 32 bytes (64 hex chars), got %d chars", len(root))
	}
	for _, r := range root {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return fmt.Errorf("merkle root contains non-hex character %q", r)
		}
	}

	if c.ClaimWindowDays < 1 {
		return fmt.Errorf("claim window must be at least 1 day, got %d", c.ClaimWindowDays)
	}

	// Validate persistence backend selection
	switch c.PersistenceType {
	case PersistenceMemory:
		// nothing to check
	case PersistenceBadger:
		if c.DataDir == "" {
			return fmt.Errorf("data dir is required for badger persistence")
		}
	case PersistenceRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("redis address is required for redis persistence")
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("redis db must be between 0-15, got %d", c.RedisDB)
		}
	default:
		return fmt.Errorf("unsupported persistence type: %s (supported: memory, badger, redis)", c.PersistenceType)
	}

	return nil
}

package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/persistence"
)

// Key names for namespacing in Redis
const (
	// keySetClaimed holds the hex addresses that have claimed (a Redis set,
	// which gives monotonic membership and O(1) lookups)
	keySetClaimed        = "refund:claimed"
	keyContractState     = "refund:state:main"
	keySchemaVersion     = "refund:metadata:schema_version"
	currentSchemaVersion = "v1"

	opTimeout = 5 * time.Second
)

// RedisStore is a claim store backed by Redis, suitable for deployments
// where several service instances share one ledger state.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

var _ persistence.ClaimStore = (*RedisStore)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant
	// setups). If set, keys become e.g. "myledger:refund:claimed".
	KeyPrefix string
}

// NewRedisStore creates a new Redis-backed claim store.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis claim store initialized", "address", cfg.Address, "db", cfg.DB)

	return rs, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisStore) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisStore) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		// First time setup - set schema version
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SetClaimed marks an address as claimed. Idempotent (set membership).
func (r *RedisStore) SetClaimed(addr common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("claim store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.client.SAdd(ctx, r.prefixKey(keySetClaimed), addr.Hex()).Err(); err != nil {
		return fmt.Errorf("failed to write claim record: %w", err)
	}
	return nil
}

// IsClaimed reports whether an address has claimed.
func (r *RedisStore) IsClaimed(addr common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, fmt.Errorf("claim store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	claimed, err := r.client.SIsMember(ctx, r.prefixKey(keySetClaimed), addr.Hex()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read claim record: %w", err)
	}
	return claimed, nil
}

// ListClaimed returns all claimed addresses sorted ascending.
func (r *RedisStore) ListClaimed() ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("claim store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	members, err := r.client.SMembers(ctx, r.prefixKey(keySetClaimed)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list claim records: %w", err)
	}

	addrs := make([]common.Address, 0, len(members))
	for _, member := range members {
		if !common.IsHexAddress(member) {
			r.logger.Sugar().Warnw("Skipping malformed claim member", "member", member)
			continue
		}
		addrs = append(addrs, common.HexToAddress(member))
	}

	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})

	return addrs, nil
}

// SaveContractState persists ledger state, overwriting any existing state.
func (r *RedisStore) SaveContractState(state *persistence.ContractState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil ContractState")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("claim store is closed")
	}

	data, err := persistence.MarshalContractState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal ContractState: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefixKey(keyContractState), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write ContractState: %w", err)
	}
	return nil
}

// LoadContractState retrieves ledger state, nil if none was saved.
func (r *RedisStore) LoadContractState() (*persistence.ContractState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("claim store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefixKey(keyContractState)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ContractState: %w", err)
	}

	state, err := persistence.UnmarshalContractState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ContractState: %w", err)
	}

	return state, nil
}

// Close cleanly shuts down the store. Idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil // Already closed, idempotent
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis claim store closed")
	return nil
}

// HealthCheck verifies the store is operational
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("claim store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

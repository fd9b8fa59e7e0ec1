package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyPrefixClaimed     = "refund:claimed:"
	keyContractState     = "refund:state:main"
	keySchemaVersion     = "refund:metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerStore is a production-ready claim store using Badger.
// Provides durable, disk-based storage with ACID guarantees.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.ClaimStore = (*BadgerStore)(nil)

// NewBadgerStore creates a new Badger-backed claim store.
// The database is opened at the specified path with SyncWrites enabled:
// a claim record must hit disk before the transfer that depends on it.
// A background goroutine is started for garbage collection.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newZapBadgerLogger(logger)
	opts.SyncWrites = true // fsync on every write
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1 // Claim flags are monotonic, no versioning needed

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Start background GC
	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger claim store initialized", "path", absPath)

	return bs, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			// First time setup - set schema version
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SetClaimed marks an address as claimed. Idempotent.
func (b *BadgerStore) SetClaimed(addr common.Address) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("claim store is closed")
	}

	key := keyPrefixClaimed + addr.Hex()
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), []byte{1})
	})
}

// IsClaimed reports whether an address has claimed.
func (b *BadgerStore) IsClaimed(addr common.Address) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, fmt.Errorf("claim store is closed")
	}

	key := keyPrefixClaimed + addr.Hex()

	claimed := false
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found means not claimed
		}
		if err != nil {
			return err
		}
		claimed = true
		return nil
	})

	if err != nil {
		return false, fmt.Errorf("failed to read claim record: %w", err)
	}

	return claimed, nil
}

// ListClaimed returns all claimed addresses sorted ascending.
func (b *BadgerStore) ListClaimed() ([]common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("claim store is closed")
	}

	addrs := make([]common.Address, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixClaimed)
		opts.PrefetchValues = false // Keys carry the addresses

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			hexAddr := string(it.Item().Key()[len(keyPrefixClaimed):])
			if !common.IsHexAddress(hexAddr) {
				b.logger.Sugar().Warnw("Skipping malformed claim key", "key", string(it.Item().Key()))
				continue
			}
			addrs = append(addrs, common.HexToAddress(hexAddr))
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list claim records: %w", err)
	}

	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})

	return addrs, nil
}

// SaveContractState persists ledger state, overwriting any existing state.
func (b *BadgerStore) SaveContractState(state *persistence.ContractState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil ContractState")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("claim store is closed")
	}

	data, err := persistence.MarshalContractState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal ContractState: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyContractState), data)
	})
}

// LoadContractState retrieves ledger state, nil if none was saved.
func (b *BadgerStore) LoadContractState() (*persistence.ContractState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("claim store is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyContractState))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...) // Copy value
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load ContractState: %w", err)
	}

	if data == nil {
		return nil, nil // Not found
	}

	state, err := persistence.UnmarshalContractState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ContractState: %w", err)
	}

	return state, nil
}

// Close cleanly shuts down the store. Idempotent.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	// Stop GC goroutine
	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger claim store closed")
	return nil
}

// HealthCheck verifies the store is operational
func (b *BadgerStore) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("claim store is closed")
	}

	// Try a simple read operation to verify database is accessible
	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/config"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/distributor"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/logger"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/persistence"
	badgerstore "github.com/fairdrop-labs/refund-distributor-go/pkg/persistence/badger"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/persistence/memory"
	redisstore "github.com/fairdrop-labs/refund-distributor-go/pkg/persistence/redis"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/refund"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/server"
)

func main() {
	app := &cli.App{
		Name:  "refund-server",
		Usage: "Serve a merkle-committed refund ledger",
		Description: `Runs the refund ledger state machine behind an HTTP API, simulating the
ledger environment: current time from the system clock, caller identity
from the request, transfers logged rather than settled.

The ledger is created from a committed merkle root on first start and
resumed from the claim store on subsequent starts, preserving the original
deadline, balance and claim records.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvRefundPort},
			},
			&cli.StringFlag{
				Name:     "root",
				Usage:    "Committed merkle root (0x-prefixed hex, from refund-builder)",
				EnvVars:  []string{config.EnvRefundRoot},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "owner",
				Usage:    "Owner address allowed to withdraw residual funds",
				EnvVars:  []string{config.EnvRefundOwnerAddress},
				Required: true,
			},
			&cli.IntFlag{
				Name:    "claim-window-days",
				Value:   config.DefaultClaimWindowDays,
				Usage:   "Days the claim window stays open after creation",
				EnvVars: []string{config.EnvRefundClaimWindowDays},
			},
			&cli.StringFlag{
				Name:    "persistence",
				Value:   string(config.PersistenceBadger),
				Usage:   "Claim store backend: memory (testing), badger, redis",
				EnvVars: []string{config.EnvRefundPersistenceType},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "./refund-data",
				Usage:   "Badger database directory",
				EnvVars: []string{config.EnvRefundDataDir},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis server address (host:port)",
				EnvVars: []string{config.EnvRefundRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvRefundRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number (0-15)",
				EnvVars: []string{config.EnvRefundRedisDB},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvRefundVerbose},
			},
		},
		Action: runRefundServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runRefundServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := &config.ServerConfig{
		Port:            c.Int("port"),
		Root:            c.String("root"),
		OwnerAddress:    c.String("owner"),
		ClaimWindowDays: c.Int("claim-window-days"),
		PersistenceType: config.PersistenceType(c.String("persistence")),
		DataDir:         c.String("data-dir"),
		RedisAddress:    c.String("redis-address"),
		RedisPassword:   c.String("redis-password"),
		RedisDB:         c.Int("redis-db"),
		Verbose:         c.Bool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := newClaimStore(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open claim store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.HealthCheck(); err != nil {
		return fmt.Errorf("claim store unhealthy: %w", err)
	}

	contract, err := openLedger(cfg, store, l)
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg.Port, contract, store, l)

	// Serve until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	l.Sugar().Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newClaimStore opens the configured persistence backend.
func newClaimStore(cfg *config.ServerConfig, l *zap.Logger) (persistence.ClaimStore, error) {
	switch cfg.PersistenceType {
	case config.PersistenceMemory:
		l.Sugar().Warn("Using in-memory claim store - ALL CLAIM RECORDS WILL BE LOST ON RESTART")
		return memory.NewMemoryStore(), nil
	case config.PersistenceBadger:
		return badgerstore.NewBadgerStore(cfg.DataDir, l)
	case config.PersistenceRedis:
		return redisstore.NewRedisStore(&redisstore.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.PersistenceType)
	}
}

// openLedger resumes a persisted ledger if the store holds one, otherwise
// creates a fresh ledger from the configured root.
func openLedger(cfg *config.ServerConfig, store persistence.ClaimStore, l *zap.Logger) (*refund.Contract, error) {
	transferor := refund.NewLoggingTransferor(l)

	contract, err := refund.Load(store, transferor, refund.WithLogger(l))
	if err != nil {
		return nil, fmt.Errorf("failed to resume ledger: %w", err)
	}
	if contract != nil {
		configured, err := distributor.DecodeRoot(cfg.Root)
		if err == nil && configured != contract.Root() {
			l.Sugar().Warnw("Configured root differs from persisted ledger, keeping persisted root",
				"configured", cfg.Root, "persisted", contract.Root().Hex())
		}
		return contract, nil
	}

	root, err := distributor.DecodeRoot(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root: %w", err)
	}

	contract, err = refund.New(
		root,
		common.HexToAddress(cfg.OwnerAddress),
		store,
		transferor,
		refund.WithLogger(l),
		refund.WithClaimWindow(time.Duration(cfg.ClaimWindowDays)*24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}
	return contract, nil
}

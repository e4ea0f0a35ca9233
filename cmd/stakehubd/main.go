package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stakehub/config"
	"stakehub/core/events"
	"stakehub/crypto"
	"stakehub/native/staking"
	"stakehub/observability/logging"
	"stakehub/observability/metrics"
	"stakehub/rpc"
	"stakehub/storage"
)

const moduleVaultSeed = "module/staking/vault"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("stakehubd", cfg.LogFile)

	owner, ok := cfg.Owner()
	if !ok {
		logger.Error("OwnerAddress must be set in the configuration")
		os.Exit(1)
	}
	vault, ok := cfg.Vault()
	if !ok {
		vault = deriveVaultAddress()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	store := storage.NewLedgerStore(db)
	tokens := storage.NewBalanceLedger(db)

	engine := staking.NewEngine(vault, owner, cfg.RewardToken)
	engine.SetState(store)
	engine.SetTokenLedger(tokens)
	engine.SetRewardsDistributor(owner)
	engine.SetEmitter(events.Fanout{metrics.NewRecorder(), &logEmitter{log: logger}})

	if err := store.LoadVotes(engine.Votes()); err != nil {
		logger.Error("Failed to restore voting checkpoints", slog.Any("error", err))
		os.Exit(1)
	}
	height, err := store.LoadHeight()
	if err != nil {
		logger.Error("Failed to restore operation height", slog.Any("error", err))
		os.Exit(1)
	}
	engine.RestoreHeight(height)

	if err := provisionPools(engine, store, owner, cfg.Pools, logger); err != nil {
		logger.Error("Failed to provision pools", slog.Any("error", err))
		os.Exit(1)
	}

	limiter := rpc.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpc.NewServer(engine, logger, limiter).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("query server listening", slog.String("address", cfg.ListenAddress))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if err := store.SaveVotes(engine.Votes()); err != nil {
		logger.Error("Failed to persist voting checkpoints", slog.Any("error", err))
	}
	if err := store.SaveHeight(engine.Height()); err != nil {
		logger.Error("Failed to persist operation height", slog.Any("error", err))
	}
	logger.Info("shutdown complete")
}

// provisionPools creates the configured pools on first start. Existing state
// wins: once any pool exists the config pool list is ignored.
func provisionPools(engine *staking.Engine, store *storage.LedgerStore, owner crypto.Address, pools []config.PoolConfig, logger *slog.Logger) error {
	count, err := store.PoolCount()
	if err != nil {
		return err
	}
	if count > 0 || len(pools) == 0 {
		return nil
	}
	for _, pool := range pools {
		id, err := engine.AddPool(owner, pool.Token, pool.RewardsDuration, pool.LockPeriod, pool.WithdrawDelay, pool.VestingPeriod, pool.VotingMultiplier)
		if err != nil {
			return err
		}
		logger.Info("pool provisioned",
			slog.Uint64("pool", id),
			slog.String("token", pool.Token),
			slog.Uint64("multiplier", pool.VotingMultiplier))
	}
	return store.SaveHeight(engine.Height())
}

func deriveVaultAddress() crypto.Address {
	hash := ethcrypto.Keccak256([]byte(moduleVaultSeed))
	return crypto.MustNewAddress(crypto.StakePrefix, hash[len(hash)-crypto.AddressLength:])
}

// logEmitter mirrors engine events into the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	record, ok := evt.(interface{ Event() *events.Record })
	if !ok {
		l.log.Info("engine event", slog.String("type", evt.EventType()))
		return
	}
	attrs := make([]any, 0, 2)
	rec := record.Event()
	for key, value := range rec.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	l.log.Info("engine event "+rec.Type, attrs...)
}

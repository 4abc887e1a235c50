package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coinpilot/coinpilot/config"
	"github.com/coinpilot/coinpilot/internal/clients"
	"github.com/coinpilot/coinpilot/internal/services/balance"
	"github.com/coinpilot/coinpilot/internal/services/evaluator"
	"github.com/coinpilot/coinpilot/internal/services/executor"
	"github.com/coinpilot/coinpilot/internal/services/oracle"
	"github.com/coinpilot/coinpilot/internal/storage"
	"github.com/coinpilot/coinpilot/internal/storage/journal"
	"github.com/coinpilot/coinpilot/internal/web"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	store, err := storage.New(storage.Option{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}

	sqlDB, err := store.DB().DB()
	if err != nil {
		logger.Fatal("failed to get sql connection pool", zap.Error(err))
	}
	lock := storage.NewAdvisoryLock(sqlDB, logger)

	exchange, err := newExchangeClient(cfg)
	if err != nil {
		logger.Fatal("failed to create exchange client", zap.Error(err))
	}

	llm := clients.NewOpenAICompatibleClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	decisionOracle := oracle.New(llm, logger)

	// the journal is an operator convenience; trading runs fine without it
	var decisionJournal evaluator.DecisionJournal
	if js, err := journal.NewStore(cfg.JournalDir); err != nil {
		logger.Warn("decision journal disabled", zap.Error(err))
	} else {
		decisionJournal = js
		defer js.Close()
	}

	tradeRepo := storage.NewTradeRepository(store.DB())
	balanceRepo := storage.NewBalanceRepository(store.DB())
	assetRepo := storage.NewAssetRepository(store.DB())

	eval := evaluator.New(exchange, decisionOracle, tradeRepo, decisionJournal, cfg.HistoryDays, logger)
	recorder := balance.NewRecorder(exchange, assetRepo, balanceRepo, logger)
	exec := executor.New(lock, assetRepo, exchange, eval, tradeRepo, recorder, cfg.FeeFactor, cfg.MinOrderValue, logger)

	server := web.NewServer(cfg.ListenAddr, exec, tradeRepo, balanceRepo, assetRepo, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		runScheduler(ctx, exec, cfg.RunInterval, logger)
		return nil
	})

	logger.Info("started",
		zap.String("platform", cfg.Platform),
		zap.String("settlement", cfg.Settlement),
		zap.Duration("run_interval", cfg.RunInterval))

	if err := g.Wait(); err != nil {
		logger.Error("shutting down with error", zap.Error(err))
		return
	}
	logger.Info("shut down cleanly")
}

// runScheduler triggers a trading cycle every interval until the context is
// cancelled. Cycle failures are logged and the next tick tries again.
func runScheduler(ctx context.Context, exec *executor.Executor, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := exec.Execute(ctx); err != nil {
				logger.Error("scheduled trading cycle failed", zap.Error(err))
			}
		}
	}
}

func newExchangeClient(cfg *config.Config) (clients.ExchangeClient, error) {
	switch cfg.Platform {
	case config.PlatformUpbit:
		return clients.NewUpbitClient(cfg.ExchangeAccessKey, cfg.ExchangeSecretKey, cfg.Settlement)
	case config.PlatformBinance:
		return clients.NewBinanceClient(binance.NewClient(cfg.ExchangeAccessKey, cfg.ExchangeSecretKey), cfg.Settlement), nil
	default:
		return nil, errors.Errorf("unsupported platform %s", cfg.Platform)
	}
}

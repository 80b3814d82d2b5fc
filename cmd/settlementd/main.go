package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinrails/internal/chain"
	"coinrails/internal/config"
	"coinrails/internal/idempotency"
	"coinrails/internal/ledger"
	"coinrails/internal/logging"
	"coinrails/internal/oracle"
	"coinrails/internal/server"
	"coinrails/internal/settlement"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Service.Env)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	var store idempotency.Store = idempotency.NewMemoryStore()
	var book ledger.Ledger = ledger.NewMemoryLedger()
	if cfg.Service.PostgresDSN != "" {
		pgStore, err := idempotency.NewPostgresStore(ctx, cfg.Service.PostgresDSN)
		if err != nil {
			logger.Fatal("idempotency store error", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore

		pgLedger, err := ledger.NewPostgresLedger(ctx, cfg.Service.PostgresDSN)
		if err != nil {
			logger.Fatal("ledger error", zap.Error(err))
		}
		defer pgLedger.Close()
		book = pgLedger
	} else {
		logger.Warn("DATABASE_URL not set, settlement records are in-memory only")
	}

	metrics := settlement.NewMetrics()
	rates := oracle.New(logger)

	services := make([]*settlement.Service, 0, len(cfg.Coins))
	for _, coin := range cfg.Coins {
		handle, err := chain.Dial(ctx, chain.HandleConfig{
			Coin:            coin.Symbol,
			RPCURL:          coin.RPCURL,
			PrivateKeyHex:   coin.PrivateKey,
			ContractAddress: coin.ContractAddress,
		})
		if err != nil {
			logger.Fatal("chain handle error", zap.String("coin", coin.Symbol), zap.Error(err))
		}

		feed := rates.Feed(oracle.Profile{
			Coin:      coin.Symbol,
			Endpoint:  coin.Oracle.Endpoint,
			Action:    coin.Oracle.Action,
			RateField: coin.Oracle.RateField,
			APIKey:    coin.Oracle.APIKey,
		})

		svc := settlement.NewService(
			settlement.Profile{Symbol: coin.Symbol, Decimals: coin.Decimals},
			feed,
			handle,
			book,
			metrics,
			chain.SubmitOptions{
				MaxRetries:    coin.MaxRetries,
				Confirmations: coin.Confirmations,
			},
			logger,
		)
		services = append(services, svc)
		logger.Info("settlement service ready", zap.String("coin", coin.Symbol))
	}

	apiServer := server.NewServer(cfg, services, store, book, metrics, logger)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Warn("server stopped", zap.Error(err))
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}

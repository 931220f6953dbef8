package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/interbank-settlement/internal/config"
	"github.com/josh-kwaku/interbank-settlement/internal/events"
	"github.com/josh-kwaku/interbank-settlement/internal/fx"
	"github.com/josh-kwaku/interbank-settlement/internal/handler"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
	"github.com/josh-kwaku/interbank-settlement/internal/middleware"
	"github.com/josh-kwaku/interbank-settlement/internal/registry"
	"github.com/josh-kwaku/interbank-settlement/internal/repository"
	"github.com/josh-kwaku/interbank-settlement/internal/service"
	"github.com/josh-kwaku/interbank-settlement/internal/service/transfer"
	"github.com/josh-kwaku/interbank-settlement/internal/signing"
)

const outboundTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("settlement-api", cfg.BankPrefix, cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	transferRepo := repository.NewTransferRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	userRepo := repository.NewUserRepository(db)
	bankRepo := repository.NewBankRepository(db)

	banks := registry.NewCache(registry.NewClient(cfg.RegistryURL, cfg.RegistryAPIKey, outboundTimeout), bankRepo)
	if err := banks.Load(ctx); err != nil {
		slog.Error("failed to load bank registry", "error", err)
		os.Exit(1)
	}
	if banks.Len() == 0 {
		if err := banks.Refresh(ctx); err != nil {
			slog.Warn("initial registry refresh failed; will retry on first lookup", "error", err)
		}
	}

	signer := signing.NewSigner(cfg.BankPrefix, cfg.PrivateKeyPath, cfg.AssertionTTL)
	if _, err := signer.PublicKeySet(); err != nil {
		slog.Warn("signing key not loadable yet; outbound transfers will retry", "error", err)
	}
	verifier := signing.NewVerifier(outboundTimeout, cfg.JWKSCacheTTL)
	defer verifier.Close()
	rates := fx.NewRateService(cfg.RatesURL, outboundTimeout)

	publisher, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		slog.Error("failed to connect to event broker", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	transferSvc := transfer.NewService(transferRepo, accountRepo, userRepo, banks, rates, verifier, publisher)

	worker := service.NewSettlementWorker(
		transferRepo, banks, signer, service.NewPeerClient(cfg.DispatchTimeout), publisher,
		logger.With("component", "settlement_worker"),
		service.WorkerConfig{
			BatchSize:       cfg.WorkerBatchSize,
			DispatchTimeout: cfg.DispatchTimeout,
			TransferExpiry:  cfg.TransferExpiry,
			MaxAttempts:     cfg.MaxDispatchAttempts,
			RetryBaseDelay:  cfg.RetryBaseDelay,
			RetryMaxDelay:   cfg.RetryMaxDelay,
			StaleClaimAfter: cfg.StaleClaimAfter,
		},
	)
	scheduler := service.NewScheduler(worker, cfg.WorkerSchedule, logger)
	if err := scheduler.Start(ctx); err != nil {
		slog.Error("failed to start settlement worker", "error", err)
		os.Exit(1)
	}

	transferHandler := handler.NewTransferHandler(transferSvc)
	b2bHandler := handler.NewB2BHandler(transferSvc, signer)
	fxHandler := handler.NewFXHandler(rates)
	healthHandler := handler.NewHealthHandler(db, banks)

	requireAuth := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /transactions", requireAuth(http.HandlerFunc(transferHandler.Create)))
	mux.Handle("GET /transactions", requireAuth(http.HandlerFunc(transferHandler.List)))
	mux.HandleFunc("POST /transactions/b2b", b2bHandler.Receive)
	mux.HandleFunc("GET /transactions/jwks", b2bHandler.KeySet)
	mux.HandleFunc("GET /fx/rate", fxHandler.GetRate)

	var h http.Handler = mux
	h = middleware.Metrics(h)
	h = middleware.Recovery(h)
	h = middleware.Logging(logger)(h)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "bank_name", cfg.BankName)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	scheduler.Stop()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var err error
	for i := range 30 {
		var db *sql.DB
		if db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connectDB: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dice-prediction-backend/internal/config"
	"dice-prediction-backend/internal/handlers"
	"dice-prediction-backend/internal/ledger"
	"dice-prediction-backend/internal/logging"
	"dice-prediction-backend/internal/services"
	"dice-prediction-backend/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		bootLogger := logging.New("info", "production")
		bootLogger.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.RequireAPI(); err != nil {
		return fmt.Errorf("invalid API config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Env)
	if envErr != nil {
		logger.Info().Msg("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallets := wallet.NewManager()
	if cfg.HasSigner() {
		session, err := wallets.Connect(cfg.PrivateKey, cfg.ChainID)
		if err != nil {
			return fmt.Errorf("failed to open wallet session: %w", err)
		}
		logger.Info().Str("player", session.Address).Msg("Wallet connected")
	}

	contract, err := ledger.NewContract(cfg.ContractAddress)
	if err != nil {
		return fmt.Errorf("failed to load contract: %w", err)
	}

	gateway, err := ledger.Dial(ctx, cfg.RPCURL, contract, wallets, ledger.Options{
		ChainID:      cfg.ChainID,
		DeployBlock:  cfg.DeployBlock,
		PollInterval: cfg.ReceiptPollInterval,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to ledger: %w", err)
	}
	defer gateway.Close()

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisService.Close()

	jwtService := services.NewJWTService(cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(registry)

	hub := handlers.NewWebSocketHub(logger)
	defer hub.Close()

	reconciler := services.NewReconciler(gateway, cfg.TimestampConcurrency, metrics, logger)
	histories := services.NewPlayerHistories(reconciler, hub, cfg.HistoryPageSize, cfg.Timezone, logger)
	defer histories.Wait()

	rounds := services.NewRoundController(gateway, gateway, wallets, histories, hub, metrics, services.RoundConfig{
		MinBet:        cfg.MinBet,
		RollDuration:  cfg.RollDuration,
		DisplayWindow: cfg.DisplayWindow,
	}, logger)
	defer rounds.Close()

	if session := wallets.Current(); session.Connected() {
		history := histories.Get(session.Address)
		history.EnsureLoaded(ctx)
		rounds.PreloadRecent(history.Recent(services.RecentResultsLimit))
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Sessions:     redisService,
		Limiter:      redisService,
		JWT:          jwtService,
		Wallets:      wallets,
		Rounds:       rounds,
		Histories:    histories,
		Gateway:      gateway,
		Balances:     gateway,
		Hub:          hub,
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ChainID:      cfg.ChainID,
		BetRateLimit: cfg.BetRateLimit,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Server shutdown")
		}
	}()

	logger.Info().Str("port", cfg.Port).Str("contract", contract.Address().Hex()).Msg("Server starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tokenrelay/internal/api"
	"tokenrelay/internal/blockchain/evm"
	"tokenrelay/internal/chains"
	"tokenrelay/internal/config"
	"tokenrelay/internal/database"
	"tokenrelay/internal/engine"
	"tokenrelay/internal/fees"
	"tokenrelay/internal/metric"
	"tokenrelay/internal/ratelimit"
)

func main() {
	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Token Relay Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_host", cfg.Database.Host),
		zap.Int("num_chains", len(cfg.Chains)))

	// Connect to database when one is configured. Without it rate limits,
	// funding history and deposit credits live in memory only.
	var db *database.DB
	if cfg.Database.Host != "" {
		db, err = database.Connect(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		logger.Info("Database connected successfully")

		// Run migrations
		migrationPath := "internal/database/migrations/001_schema.sql"
		if err := database.RunMigrations(db, migrationPath); err != nil {
			logger.Warn("Failed to run migrations (may already be applied)", zap.Error(err))
		} else {
			logger.Info("Database migrations applied successfully")
		}
	} else {
		logger.Warn("No database configured, relay state will not survive restarts")
	}

	// Build the chain registry
	registry, err := chains.FromConfig(cfg)
	if err != nil {
		logger.Fatal("Invalid chain configuration", zap.Error(err))
	}

	// Connect one EVM client per chain; all sign with the relayer key
	backends := make(map[string]engine.ChainBackend)
	for _, chain := range registry.All() {
		client, err := evm.NewClient(chain, cfg.Relay.RelayerPrivateKey, logger.Named(chain.Name))
		if err != nil {
			logger.Fatal("Failed to connect chain",
				zap.String("chain", chain.Name),
				zap.Error(err))
		}
		backends[chain.Name] = client
	}

	logger.Info("Chain clients connected", zap.Strings("chains", registry.Names()))

	feeCfg, err := feeConfig(cfg)
	if err != nil {
		logger.Fatal("Invalid fee configuration", zap.Error(err))
	}
	feeCalc := fees.NewCalculator(feeCfg, logger)

	// Pick persistent or in-memory stores depending on the database
	window := time.Duration(cfg.Relay.RateLimitWindowSeconds) * time.Second
	var (
		stores     engine.Stores
		limitStore ratelimit.Store
	)
	if db != nil {
		stores = engine.Stores{
			Funding: database.NewFundingStore(db),
			Credits: database.NewCreditStore(db),
			Audit:   database.NewAuditLog(db),
		}
		limitStore = database.NewRateLimitStore(db)
	} else {
		stores = engine.Stores{
			Funding: engine.NewMemoryFundingStore(),
			Credits: engine.NewMemoryCreditStore(),
		}
		limitStore = ratelimit.NewMemoryStore(window)
	}
	limiter := ratelimit.NewLimiter(limitStore, cfg.Relay.RateLimitRequests, window)

	// Initialize the relay engine
	relayEngine, err := engine.New(registry, backends, feeCalc, stores, engine.Config{
		QueueSize:      cfg.Relay.QueueSize,
		ConfirmTimeout: time.Duration(cfg.Relay.ConfirmTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize relay engine", zap.Error(err))
	}

	relayEngine.Start()
	logger.Info("Relay engine started")

	// Initialize API handlers. Assigning a nil *database.DB would make the
	// interface non-nil, so only assign when a database exists.
	var history api.HistoryStore
	if db != nil {
		history = db
	}
	apiHandler := api.NewHandler(relayEngine, registry, limiter, feeCalc, history,
		cfg.Relay.RequireValidSignature, logger)
	router := api.SetupRouter(apiHandler, logger)

	// Create HTTP server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", serverAddr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Serve Prometheus metrics on the side port
	go func() {
		if err := metric.New(nil).Start(); err != nil {
			logger.Error("Metric server error", zap.Error(err))
		}
	}()

	logger.Info("Service initialized successfully",
		zap.String("status", "ready"),
		zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		logger.Fatal("HTTP server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop accepting requests first, then drain the engine workers
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		httpServer.Close()
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	if err := relayEngine.Shutdown(10 * time.Second); err != nil {
		logger.Error("Relay engine shutdown error", zap.Error(err))
	}

	logger.Info("Service stopped successfully")
}

// feeConfig parses the fee clamp strings into the calculator's configuration
func feeConfig(cfg *config.Config) (fees.Config, error) {
	minFee, ok := new(big.Int).SetString(cfg.Fees.MinFee, 10)
	if !ok {
		return fees.Config{}, fmt.Errorf("invalid minimum fee %q", cfg.Fees.MinFee)
	}
	maxFee, ok := new(big.Int).SetString(cfg.Fees.MaxFee, 10)
	if !ok {
		return fees.Config{}, fmt.Errorf("invalid maximum fee %q", cfg.Fees.MaxFee)
	}
	return fees.Config{
		SameChainBps:     int64(cfg.Fees.SameChainBps),
		CrossChainBps:    int64(cfg.Fees.CrossChainBps),
		MinFee:           minFee,
		MaxFee:           maxFee,
		FeeTokenDecimals: cfg.Fees.FeeTokenDecimals,
	}, nil
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

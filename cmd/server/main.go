/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the bank ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger and Prometheus registry
  3. Open the Fact Store (SQLite or PostgreSQL)
  4. Load the credit eligibility policy
  5. Seed an empty store from FACTS_FILE
  6. Configure HTTP router and start the server
  7. Start the balance audit scheduler when AUDIT_INTERVAL is set

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database
  -env     dotenv file to load (default: .env)

ENVIRONMENT:
  PORT, DB_DRIVER, DB_PATH, DATABASE_URL, LOG_LEVEL, LOG_FORMAT,
  ELIGIBILITY_POLICY_FILE, FACTS_FILE, RATE_LIMIT, CORS_ORIGINS,
  SHUTDOWN_TIMEOUT, AUDIT_INTERVAL. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the audit scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/bank.db"

  # Run in memory, seeded from a fact file, everyone in Porto eligible
  FACTS_FILE=bank.pl ELIGIBILITY_POLICY_FILE=porto.yaml ./server -db=":memory:"

  # Run against PostgreSQL
  DB_DRIVER=postgres DATABASE_URL=postgres://ledger@localhost/bank ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Fact Stores
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/warp/bank-ledger/api"
	"github.com/warp/bank-ledger/config"
	"github.com/warp/bank-ledger/factory"
	"github.com/warp/bank-ledger/facts"
	"github.com/warp/bank-ledger/ledger"
	"github.com/warp/bank-ledger/logging"
	"github.com/warp/bank-ledger/metrics"
	"github.com/warp/bank-ledger/store/postgres"
	"github.com/warp/bank-ledger/store/sqlite"
)

// factStore is a ledger store the server must close on exit.
type factStore interface {
	ledger.TxStore
	Close() error
}

func main() {
	// Flags
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	envFile := flag.String("env", ".env", "dotenv file to load")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBDriver = config.DriverSQLite
		cfg.DBPath = *dbPath
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Initialize store
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer store.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("bank_ledger")
	if err := collector.Register(registry); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Eligibility policy
	policy := ledger.DenyAll
	if cfg.EligibilityPolicyFile != "" {
		policy, err = factory.NewEligibilityFactory(time.Now).LoadFile(cfg.EligibilityPolicyFile)
		if err != nil {
			logger.Fatal("Failed to load eligibility policy", zap.String("file", cfg.EligibilityPolicyFile), zap.Error(err))
		}
		logger.Info("eligibility policy loaded", zap.String("file", cfg.EligibilityPolicyFile))
	} else {
		logger.Warn("no ELIGIBILITY_POLICY_FILE set, credit is denied to every client")
	}

	engine := ledger.NewEngine(store,
		ledger.WithEligibilityPolicy(policy),
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithRecorder(collector),
	)

	if cfg.FactsFile != "" {
		if err := seedFacts(ctx, store, cfg.FactsFile, logger); err != nil {
			logger.Fatal("Failed to import facts", zap.String("file", cfg.FactsFile), zap.Error(err))
		}
	}

	// Router
	limiter, err := api.NewLimiter(cfg.RateLimit)
	if err != nil {
		logger.Fatal("Invalid rate limit", zap.String("rate", cfg.RateLimit), zap.Error(err))
	}
	handler := api.NewHandler(engine, store, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Limiter:     limiter,
		Gatherer:    registry,
		Observer:    collector,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("driver", cfg.DBDriver),
			zap.String("rate_limit", cfg.RateLimit),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	scheduler := api.NewAuditScheduler(engine, logger)
	scheduler.Reporter = collector
	scheduler.CheckInterval = cfg.AuditInterval
	scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (factStore, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.New(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.DBDriver)
	}
}

// seedFacts imports path only into a store without clients, so restarts
// against a durable database do not import twice.
func seedFacts(ctx context.Context, store ledger.TxStore, path string, logger *zap.Logger) error {
	clients, err := store.ListClients(ctx)
	if err != nil {
		return err
	}
	if len(clients) > 0 {
		logger.Info("store already seeded, skipping fact import",
			zap.String("file", path),
			zap.Int("clients", len(clients)),
		)
		return nil
	}
	_, err = facts.NewImporter(store, time.Now, logger.Named("facts")).ImportFile(ctx, path)
	return err
}

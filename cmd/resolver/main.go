package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/swapsage/resolver/pkg/app/http"
	"github.com/swapsage/resolver/pkg/config"
	"github.com/swapsage/resolver/pkg/coordinator"
	"github.com/swapsage/resolver/pkg/coordinator/service"
	"github.com/swapsage/resolver/pkg/htlc"
	"github.com/swapsage/resolver/pkg/pgutil"
	"github.com/swapsage/resolver/pkg/pool"
	"github.com/swapsage/resolver/pkg/relay"
	"github.com/swapsage/resolver/pkg/swapstore"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Swap Sage resolver")

	// Initialize database
	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connection established")

	store := swapstore.NewStore(db)

	// Initialize one HTLC adapter per configured chain
	adapters := make(map[string]htlc.Adapter, len(cfg.Chains))
	for name := range cfg.Chains {
		chainCfg := cfg.Chains[name]
		adapter, err := htlc.NewEVMAdapter(name, &chainCfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize chain adapter",
				zap.String("chain", name), zap.Error(err))
		}
		defer adapter.Close()
		adapters[name] = adapter
	}

	lifecycle := coordinator.New(store, adapters, &cfg.Swap, cfg.Pool.Address, logger)
	claimRelay := relay.New(&cfg.Relay, store, lifecycle, adapters, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the fulfillment agent before serving traffic
	agent := pool.NewAgent(&cfg.Pool, store, lifecycle, adapters, logger)
	agent.Start(ctx)
	defer agent.Stop()

	// Setup HTTP server for API and metrics
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint (liveness)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Readiness endpoint - database connectivity gates traffic
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	})

	// Metrics endpoint
	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled")
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		service.RegisterRoutes(r, lifecycle, claimRelay, logger)
	})

	if err := apphttp.ServeAndWait(ctx, r, logger, &cfg.Server); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Resolver stopped")
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/bharatranastudy/outbreak-alerts/internal/aggregator"
	"github.com/bharatranastudy/outbreak-alerts/internal/api"
	"github.com/bharatranastudy/outbreak-alerts/internal/config"
	"github.com/bharatranastudy/outbreak-alerts/internal/logging"
	"github.com/bharatranastudy/outbreak-alerts/internal/notify"
	"github.com/bharatranastudy/outbreak-alerts/internal/queue"
	"github.com/bharatranastudy/outbreak-alerts/internal/repository"
	"github.com/bharatranastudy/outbreak-alerts/internal/signing"
	"github.com/bharatranastudy/outbreak-alerts/internal/sources"
	"github.com/bharatranastudy/outbreak-alerts/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobQueue, err := queue.NewRedisQueue(ctx, cfg.Redis.URL)
	if err != nil {
		logging.Fatalf("Failed to connect to redis: %v", err)
	}
	defer jobQueue.Close()

	signer := signing.New(cfg.Signing.Secret)

	var clients []sources.Client
	if cfg.Sources.MOFHWEnabled {
		clients = append(clients, sources.NewMOFHWClient(cfg.Sources.MOFHWBaseURL, cfg.Sources.MOFHWAPIKey, cfg.Sources.Timeout))
	}
	if cfg.Sources.IDSPEnabled {
		clients = append(clients, sources.NewIDSPClient(cfg.Sources.IDSPBaseURL, cfg.Sources.IDSPAPIKey, cfg.Sources.Timeout))
	}
	agg := aggregator.New(clients, db, cfg.Sources.AlertWindow)

	dispatcher := notify.NewDispatcher(buildProviders(cfg))

	pool := worker.NewPool(jobQueue, dispatcher, worker.Options{
		Workers:         cfg.Worker.Count,
		MaxAttempts:     cfg.Queue.MaxAttempts,
		RetryBase:       cfg.Queue.RetryBase,
		RetryMax:        cfg.Queue.RetryMax,
		Lease:           cfg.Queue.Lease,
		PollInterval:    cfg.Queue.PollInterval,
		DispatchTimeout: cfg.Providers.DispatchTimeout,
	})
	pool.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", api.SignatureHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(5)) // 5 req/s global limit

	handler := api.NewHandler(db, agg, signer, jobQueue, cfg.Sources.AlertWindow)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

// buildProviders returns the delivery adapters in configured priority
// order. Providers missing credentials stay in the list; they fail fast at
// dispatch time and the next one is tried.
func buildProviders(cfg *config.Config) []notify.Provider {
	var providers []notify.Provider
	for _, name := range cfg.Providers.Order {
		switch name {
		case "twilio":
			providers = append(providers, notify.NewTwilioProvider(
				cfg.Providers.TwilioAccountSID, cfg.Providers.TwilioAuthToken, cfg.Providers.TwilioNumber))
		case "gupshup":
			providers = append(providers, notify.NewGupshupProvider(cfg.Providers.GupshupAPIKey))
		case "telegram":
			providers = append(providers, notify.NewTelegramProvider(cfg.Providers.TelegramToken))
		}
	}
	return providers
}

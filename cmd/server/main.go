package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/config"
	"github.com/segyhp/rental-ledger/internal/events"
	"github.com/segyhp/rental-ledger/internal/handler"
	"github.com/segyhp/rental-ledger/internal/idempotency"
	"github.com/segyhp/rental-ledger/internal/logging"
	"github.com/segyhp/rental-ledger/internal/repository"
	"github.com/segyhp/rental-ledger/internal/service"
	"github.com/segyhp/rental-ledger/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.Setup(os.Stdout, cfg, "ledger-api")
	defer logger.Sync()

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		logger.Error("failed to initialize database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Redis
	redisClient := initRedis(cfg)
	defer redisClient.Close()

	publisher := events.NewPublisher(cfg.KafkaBrokers(), cfg.Kafka.Topic, logger)
	defer publisher.Close()

	store := repository.NewPostgresStore(db, cfg.Ledger.TxMaxRetries)
	ledger := service.NewLedgerService(store,
		service.WithLocation(cfg.LedgerLocation()),
		service.WithPublisher(publisher),
		service.WithIdempotency(idempotency.NewRedisStore(redisClient, cfg.GetIdempotencyTTL())),
		service.WithLogger(logger),
	)

	ledgerHandler := handler.NewLedgerHandler(ledger)
	healthHandler := handler.NewHealthHandler(cfg.GetHealthTimeout(),
		handler.Check{Name: "database", Ping: store.Ping},
		handler.Check{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	)

	router := setupRoutes(ledgerHandler, healthHandler, logger)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.GetConnMaxLifetime())

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(ledgerHandler *handler.LedgerHandler, healthHandler *handler.HealthHandler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(logger), response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	ledgerHandler.Register(api)

	return router
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Chmgx81/ordina/config"
	"github.com/Chmgx81/ordina/internal/cache"
	"github.com/Chmgx81/ordina/internal/database"
	"github.com/Chmgx81/ordina/internal/logger"
	"github.com/Chmgx81/ordina/internal/metrics"
	"github.com/Chmgx81/ordina/internal/producer"
	"github.com/Chmgx81/ordina/internal/service"
	"github.com/Chmgx81/ordina/internal/storage"
	"github.com/Chmgx81/ordina/internal/storage/memory"
	"github.com/Chmgx81/ordina/internal/storage/postgres"
	transport "github.com/Chmgx81/ordina/internal/transport/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	log.Info("cfg: ", zap.Any("config", cfg))

	var store storage.Store
	switch cfg.Storage {
	case config.StoragePostgres:
		db := database.ConnectDB(&cfg.DB, log)
		defer database.CloseDB(db, log)
		store = postgres.New(db)
	default:
		store = memory.New()
	}

	var events service.EventBus
	if cfg.Kafka.Enabled {
		kafkaProducer := producer.NewLedgerEventProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaProducer.Close()
		events = kafkaProducer
	}

	mets := metrics.NewRegistry()
	svc := service.NewLedgerService(store, events, mets, log)

	var reportCache cache.Cache
	if cfg.Redis.Enabled {
		reportCache = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}

	handler := transport.NewHandler(svc, reportCache, time.Duration(cfg.Redis.TTLSeconds)*time.Second, log)
	router := transport.NewRouter(handler, mets.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("Ledger HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down Ledger HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("Ledger HTTP server stopped gracefully")
}

package main

import (
	"context"
	"os"
	"time"

	"github.com/Chmgx81/ordina/config"
	"github.com/Chmgx81/ordina/internal/database"
	"github.com/Chmgx81/ordina/internal/logger"
	"github.com/Chmgx81/ordina/internal/migrate"

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
	if cfg.Storage != config.StoragePostgres {
		log.Fatal("Миграции применимы только к postgres", zap.String("driver", cfg.Storage))
	}

	db := database.ConnectDB(&cfg.DB, log)
	defer database.CloseDB(db, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := migrate.MigrateLedgerDB(ctx, db, log, migrate.DefaultMigrateOptions()); err != nil {
		log.Fatal("Ошибка миграции базы данных", zap.Error(err))
	}
	log.Info("Миграции успешно применены")
}

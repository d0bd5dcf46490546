package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/Chmgx81/ordina/internal/database"

	"go.uber.org/zap"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port    string
	Storage string // memory | postgres
	DB      database.Config
	Redis   Redis
	Kafka   Kafka
}

type Redis struct {
	Enabled    bool
	Addr       string
	Password   string
	DB         int
	TTLSeconds int
}

type Kafka struct {
	Enabled bool
	Brokers []string
	Topic   string
}

func Load(log *zap.Logger) *Config {
	cfg := &Config{
		Port:    getEnvDefault("APP_PORT", "8080"),
		Storage: getEnvDefault("STORAGE_DRIVER", StorageMemory),
		Redis: Redis{
			Enabled:    getEnvDefault("REDIS_ENABLED", "false") == "true",
			Addr:       getEnvDefault("REDIS_ADDR", "localhost:6379"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         atoiDefault(os.Getenv("REDIS_DB"), 0),
			TTLSeconds: atoiDefault(os.Getenv("CACHE_TTL_SECONDS"), 60),
		},
		Kafka: Kafka{
			Enabled: getEnvDefault("KAFKA_ENABLED", "false") == "true",
			Brokers: splitAndTrim(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnvDefault("KAFKA_TOPIC_LEDGER", "ordina.ledger.events"),
		},
	}

	if cfg.Storage != StorageMemory && cfg.Storage != StoragePostgres {
		log.Error("Неизвестный драйвер хранилища", zap.String("driver", cfg.Storage))
		panic("unknown STORAGE_DRIVER: " + cfg.Storage)
	}

	// параметры БД обязательны только для postgres
	if cfg.Storage == StoragePostgres {
		cfg.DB = database.Config{
			Host:     getEnv("DB_HOST", log),
			Port:     getEnv("DB_PORT", log),
			User:     getEnv("DB_USER", log),
			Password: getEnv("DB_PASSWORD", log),
			Name:     getEnv("DB_NAME", log),
			SSLMode:  getEnv("DB_SSLMODE", log),
		}
	}

	return cfg
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func getEnvDefault(key, def string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return def
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		pt := strings.TrimSpace(p)
		if pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}

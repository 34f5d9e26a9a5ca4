// Package config reads service settings from the environment. A .env file in
// the working directory, if present, is loaded first without overriding
// variables that are already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port            string
	Store           string
	PostgresURL     string
	MigrationsPath  string
	KafkaBrokers    []string
	RedisAddr       string
	EmailServiceURL string
	OTLPEndpoint    string
	ServiceVersion  string
}

// Load reads the orders service settings and checks the selected store can
// be opened.
func Load() (Config, error) {
	cfg, err := load()
	if err != nil {
		return Config{}, err
	}

	switch cfg.Store {
	case StorePostgres:
		if cfg.PostgresURL == "" {
			return Config{}, errors.New("POSTGRES_URL environment variable is required")
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE %q", cfg.Store)
	}

	return cfg, nil
}

// LoadWorker reads the notification worker settings. The worker never opens
// the store.
func LoadWorker() (Config, error) {
	cfg, err := load()
	if err != nil {
		return Config{}, err
	}
	if len(cfg.KafkaBrokers) == 0 {
		return Config{}, errors.New("KAFKA_BROKERS environment variable is required")
	}
	if cfg.EmailServiceURL == "" {
		return Config{}, errors.New("EMAIL_SERVICE_URL environment variable is required")
	}
	return cfg, nil
}

func load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	return Config{
		Port:            getenv("PORT", "8081"),
		Store:           getenv("STORE", StorePostgres),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		MigrationsPath:  getenv("MIGRATIONS_PATH", "file://migrations"),
		KafkaBrokers:    splitCSV(os.Getenv("KAFKA_BROKERS")),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		EmailServiceURL: os.Getenv("EMAIL_SERVICE_URL"),
		OTLPEndpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceVersion:  getenv("SERVICE_VERSION", "0.1.0"),
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

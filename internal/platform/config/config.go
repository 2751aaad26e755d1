package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration.
type Config struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	KafkaBrokers    []string
	KafkaTopic      string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// Redis and Kafka are optional: idempotency replay and event announcements
// are disabled when their URLs are absent.
func FromEnv() Config {
	cfg := Config{
		Addr:            getenv("VERITRAIL_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaTopic:      getenv("KAFKA_TOPIC", "veritrail.ledger.events"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		ShutdownTimeout: 10 * time.Second,
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr   string
	BackendURL   string
	StateDB      string
	KafkaAddress string
	LogLevel     string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(v string, name string) string {
	if v == "" {
		log.Fatalf("missing required env %s", name)
	}
	return v
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return &Config{
		ListenAddr:   getenv("LISTEN_ADDR", ":8080"),
		BackendURL:   must(os.Getenv("BACKEND_URL"), "BACKEND_URL"),
		StateDB:      getenv("STATE_DB", "storefront.db"),
		KafkaAddress: os.Getenv("KAFKA_ADDRESS"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}
}

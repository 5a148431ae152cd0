package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config for the development server. Values load env > default; a .env file
// in the working directory is picked up when present.
type Config struct {
	Addr     string
	LogLevel string
}

func Load() Config {
	_ = godotenv.Load() // optional

	return Config{
		Addr:     getenv("SKETCHWIRE_ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

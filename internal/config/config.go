package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL    string `yaml:"database_url"`
	HTTPAddr       string `yaml:"http_addr"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	Currency       string `yaml:"currency"`
}

// Load builds configuration from defaults, an optional YAML file pointed at
// by LEDGER_CONFIG, and environment overrides, in that order.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       ":8080",
		LogLevel:       "info",
		LogFormat:      "json",
		MetricsEnabled: true,
		Currency:       "EUR",
	}

	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenvDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsEnabled = getenvBoolDefault("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.Currency = getenvDefault("CURRENCY", cfg.Currency)

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("config: DATABASE_URL is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

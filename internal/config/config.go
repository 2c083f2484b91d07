// Package config содержит логику чтения конфигурации портала.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultBackendURL     = "http://127.0.0.1:8000"
	defaultBackendTimeout = 10 * time.Second
	defaultSessionTTL     = 12 * time.Hour
)

// Config содержит параметры конфигурации портала.
type Config struct {
	RunAddress       string        `env:"RUN_ADDRESS"`
	BackendURL       string        `env:"BACKEND_URL"`
	BackendPublicURL string        `env:"BACKEND_PUBLIC_URL"`
	BackendTimeout   time.Duration `env:"BACKEND_TIMEOUT"`
	SessionSecret    string        `env:"SESSION_SECRET"`
	SessionTTL       time.Duration `env:"SESSION_TTL"`
	RedisURL         string        `env:"REDIS_URL"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	CookieSecure     bool          `env:"COOKIE_SECURE"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Parse считывает конфигурацию из файла .env, переменных окружения и флагов командной строки.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен, уже заданные переменные окружения он не перезаписывает.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.BackendURL, "b", defaultBackendURL, "ration backend base URL")
	flag.StringVar(&cfg.BackendPublicURL, "p", "", "public base URL for product images")
	flag.DurationVar(&cfg.BackendTimeout, "t", defaultBackendTimeout, "backend request timeout")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session cookie signing secret")
	flag.StringVar(&cfg.RedisURL, "r", "", "redis URL for the session store")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI for the session store")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.BackendURL != "" {
		cfg.BackendURL = envCfg.BackendURL
	}
	if envCfg.BackendPublicURL != "" {
		cfg.BackendPublicURL = envCfg.BackendPublicURL
	}
	if envCfg.BackendTimeout != 0 {
		cfg.BackendTimeout = envCfg.BackendTimeout
	}
	if envCfg.SessionSecret != "" {
		cfg.SessionSecret = envCfg.SessionSecret
	}
	if envCfg.RedisURL != "" {
		cfg.RedisURL = envCfg.RedisURL
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.BackendURL == "" {
		cfg.BackendURL = defaultBackendURL
	}
	if cfg.BackendPublicURL == "" {
		cfg.BackendPublicURL = cfg.BackendURL
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = defaultBackendTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	return cfg, nil
}

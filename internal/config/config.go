// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации школьного сервиса баллов.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	SessionSecret     string `env:"SESSION_SECRET"`
	CommitteeCode     string `env:"COMMITTEE_CODE"`
	AuthRatePerMinute int    `env:"AUTH_RATE_PER_MINUTE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envSessionSecret := cfg.SessionSecret
	envCommitteeCode := cfg.CommitteeCode
	envAuthRate := cfg.AuthRatePerMinute

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.SessionSecret, "s", "", "secret key for session cookies")
	flag.StringVar(&cfg.CommitteeCode, "c", "STCOUNCIL2026", "registration code granting the committee role")
	flag.IntVar(&cfg.AuthRatePerMinute, "l", 20, "per-IP request limit per minute on auth endpoints")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}
	if envCommitteeCode != "" {
		cfg.CommitteeCode = envCommitteeCode
	}
	if envAuthRate != 0 {
		cfg.AuthRatePerMinute = envAuthRate
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AuthRatePerMinute <= 0 {
		cfg.AuthRatePerMinute = 20
	}

	return cfg, nil
}

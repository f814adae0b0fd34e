package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server"`
	Store struct {
		// Backend is "memory" or "redis". Empty picks redis when redis.addr is set.
		Backend     string `yaml:"backend" env:"STORE_BACKEND"`
		MaxAttempts int    `yaml:"maxAttempts"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"DATABASE_URL"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Session struct {
		QuestionTimeLimit string `yaml:"questionTimeLimit"`
	} `yaml:"session"`
	Missions struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"missions"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"AUTH_JWT_SECRET"`
		Issuer    string `yaml:"issuer"`
		TokenTTL  string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Log struct {
		Env   string `yaml:"env" env:"APP_ENV"`
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Store.MaxAttempts = 5
	cfg.Redis.TTL = "30m"
	cfg.Quiz.TTL = "10m"
	cfg.Session.QuestionTimeLimit = "30s"
	cfg.Missions.Schedule = "@daily"
	cfg.Auth.Issuer = "chronotech"
	cfg.Auth.TokenTTL = "24h"
	cfg.Log.Env = "development"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads YAML config from path over the defaults, then applies
// environment overrides. A missing file is not an error. A .env file in the
// working directory is loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	// only variables that are set override the file
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// UseRedis reports whether the document store should be backed by Redis.
func (c Config) UseRedis() bool {
	switch c.Store.Backend {
	case "redis":
		return true
	case "memory":
		return false
	default:
		return c.Redis.Addr != ""
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

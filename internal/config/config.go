// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pokeproto/pokebattle-backend/internal/transport"
)

// Config is everything a battle process reads from the environment. Role,
// identity and peer addressing come from flags instead; see cmd/pokebattle.
type Config struct {
	// ListenAddr is the UDP bind address for battle traffic.
	ListenAddr string
	// HTTPAddr is the bind address for the observer API; empty disables it.
	HTTPAddr string
	// LogLevel is a zap level string (debug, info, warn, error).
	LogLevel string
	// PokedexPath overrides the embedded stat database when set.
	PokedexPath string

	Transport transport.Config
}

// Load reads the environment, first merging the named .env file if it
// exists. A missing file is not an error.
func Load(envFile string) Config {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	tcfg := transport.DefaultConfig()
	tcfg.Timeout = envDuration("ACK_TIMEOUT", tcfg.Timeout)
	tcfg.Retries = envInt("ACK_RETRIES", tcfg.Retries)
	tcfg.BufferSize = envInt("RECV_BUFFER_BYTES", tcfg.BufferSize)

	return Config{
		ListenAddr:  envString("LISTEN_ADDR", "0.0.0.0:0"),
		HTTPAddr:    envString("HTTP_ADDR", ""),
		LogLevel:    envString("LOG_LEVEL", "info"),
		PokedexPath: envString("POKEDEX_PATH", ""),
		Transport:   tcfg,
	}
}

// Logger builds a zap logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load("testdata/does-not-exist.env")
	require.Equal(t, "0.0.0.0:0", cfg.ListenAddr)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 500*time.Millisecond, cfg.Transport.Timeout)
	require.Equal(t, 3, cfg.Transport.Retries)
	require.Equal(t, 65535, cfg.Transport.BufferSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "127.0.0.1:4000")
	t.Setenv("ACK_TIMEOUT", "250ms")
	t.Setenv("ACK_RETRIES", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load("")
	require.Equal(t, "127.0.0.1:4000", cfg.ListenAddr)
	require.Equal(t, 250*time.Millisecond, cfg.Transport.Timeout)
	require.Equal(t, 5, cfg.Transport.Retries)
	require.Equal(t, "debug", cfg.LogLevel)

	log, err := cfg.Logger()
	require.NoError(t, err)
	defer log.Sync()
	require.NotNil(t, log)
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("ACK_RETRIES", "lots")
	t.Setenv("ACK_TIMEOUT", "soon")
	cfg := Load("")
	require.Equal(t, 3, cfg.Transport.Retries)
	require.Equal(t, 500*time.Millisecond, cfg.Transport.Timeout)
}

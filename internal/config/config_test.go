package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "OME1", cfg.Engine.ID)
	assert.Equal(t, 9001, cfg.Gateway.Port)
	require.Len(t, cfg.Tickers, 1)
	assert.Equal(t, "TPCF0101", cfg.Tickers[0].Symbol)
	assert.Equal(t, uint32(1), cfg.Tickers[0].MinPrice)
	assert.Equal(t, uint32(99999), cfg.Tickers[0].MaxPrice)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
engine:
  id: OME2
gateway:
  port: 9100
bus:
  kafka:
    brokers: [localhost:9092]
tickers:
  - symbol: AAA
    min_price: 1
    max_price: 500
    lot_size: 10
    decimals: 2
    settlement: cash
    multiplier: 1
  - symbol: BBB
    min_price: 10
    max_price: 20
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "OME2", cfg.Engine.ID)
	assert.Equal(t, 1024, cfg.Engine.QueueSize, "missing keys keep their default")
	assert.Equal(t, 9100, cfg.Gateway.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Bus.Kafka.Brokers)
	require.Len(t, cfg.Tickers, 2)
	assert.Equal(t, "AAA", cfg.Tickers[0].Symbol)
	assert.Equal(t, uint32(500), cfg.Tickers[0].MaxPrice)
	assert.Equal(t, int32(2), cfg.Tickers[0].Decimals)
	assert.Equal(t, "BBB", cfg.Tickers[1].Symbol)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OME_LOG_LEVEL", "warn")
	t.Setenv("OME_GATEWAY_PORT", "7000")
	t.Setenv("OME_KAFKA_BROKERS", "a:9092, b:9092,")

	cfg, err := Load(writeConfig(t, "gateway:\n  port: 9100\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 7000, cfg.Gateway.Port)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Bus.Kafka.Brokers)

	t.Setenv("OME_GATEWAY_PORT", "nope")
	_, err = FromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "engine: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "tickers:\n  - symbol: X\n    min_price: 5\n    max_price: 5\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty engine id", func(c *Config) { c.Engine.ID = "" }},
		{"delimiter in engine id", func(c *Config) { c.Engine.ID = "A@B" }},
		{"zero queue", func(c *Config) { c.Engine.QueueSize = 0 }},
		{"bad port", func(c *Config) { c.Gateway.Port = 70000 }},
		{"no connections", func(c *Config) { c.Gateway.MaxConnections = 0 }},
		{"zero session queue", func(c *Config) { c.Gateway.SessionQueue = 0 }},
		{"zero bus buffer", func(c *Config) { c.Bus.Buffer = 0 }},
		{"no tickers", func(c *Config) { c.Tickers = nil }},
		{"long symbol", func(c *Config) { c.Tickers[0].Symbol = "ABCDEFGHI" }},
		{"padded symbol", func(c *Config) { c.Tickers[0].Symbol = "AB " }},
		{"duplicate symbol", func(c *Config) { c.Tickers = append(c.Tickers, c.Tickers[0]) }},
		{"zero min price", func(c *Config) { c.Tickers[0].MinPrice = 0 }},
		{"inverted range", func(c *Config) { c.Tickers[0].MinPrice = c.Tickers[0].MaxPrice }},
		{"negative decimals", func(c *Config) { c.Tickers[0].Decimals = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	cfg := Default()
	cfg.Logging.Level = "ERROR"
	require.NoError(t, cfg.SetupLogging())
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())

	cfg.Logging.Level = ""
	require.NoError(t, cfg.SetupLogging())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

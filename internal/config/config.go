package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"ome/internal/bus"
	"ome/internal/common"
	"ome/internal/protocol"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds everything the exchange process needs. Load reads it from
// YAML and then lets environment variables override deployment settings.
type Config struct {
	Engine struct {
		ID        string `yaml:"id"`
		QueueSize int    `yaml:"queue_size"` // Per symbol inbound queue
	} `yaml:"engine"`

	Gateway struct {
		Address        string `yaml:"address"`
		Port           int    `yaml:"port"`
		MaxConnections uint   `yaml:"max_connections"`
		SessionQueue   int    `yaml:"session_queue"` // Per session outbound queue
	} `yaml:"gateway"`

	Bus struct {
		Buffer int `yaml:"buffer"` // Per subscriber buffer
		Kafka  struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
	} `yaml:"bus"`

	Tickers []common.TickerConfiguration `yaml:"tickers"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// Default is a single engine trading one test symbol on port 9001.
func Default() *Config {
	var cfg Config
	cfg.Engine.ID = "OME1"
	cfg.Engine.QueueSize = 1024
	cfg.Gateway.Address = "0.0.0.0"
	cfg.Gateway.Port = 9001
	cfg.Gateway.MaxConnections = 10
	cfg.Gateway.SessionQueue = 256
	cfg.Bus.Buffer = 4096
	cfg.Tickers = []common.TickerConfiguration{{
		Symbol:     "TPCF0101",
		MinPrice:   1,
		MaxPrice:   99999,
		LotSize:    100,
		Decimals:   2,
		Settlement: "cash",
		Multiplier: 100,
	}}
	cfg.Logging.Level = "info"
	return &cfg
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value; a tickers list in the file replaces the default one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv is Default with environment overrides applied.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Engine.ID == "" || strings.IndexByte(c.Engine.ID, bus.Delimiter) >= 0 {
		return fmt.Errorf("engine id %q: %w", c.Engine.ID, ErrInvalidConfig)
	}
	if c.Engine.QueueSize <= 0 {
		return fmt.Errorf("engine queue size must be positive: %w", ErrInvalidConfig)
	}

	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway port %d: %w", c.Gateway.Port, ErrInvalidConfig)
	}
	if c.Gateway.MaxConnections == 0 {
		return fmt.Errorf("gateway max connections must be positive: %w", ErrInvalidConfig)
	}
	if c.Gateway.SessionQueue <= 0 {
		return fmt.Errorf("gateway session queue must be positive: %w", ErrInvalidConfig)
	}
	if c.Bus.Buffer <= 0 {
		return fmt.Errorf("bus buffer must be positive: %w", ErrInvalidConfig)
	}

	if len(c.Tickers) == 0 {
		return fmt.Errorf("at least one ticker is required: %w", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Tickers))
	for _, t := range c.Tickers {
		if t.Symbol == "" || len(t.Symbol) > protocol.TickerLen {
			return fmt.Errorf("ticker %q must be 1-%d characters: %w", t.Symbol, protocol.TickerLen, ErrInvalidConfig)
		}
		if strings.TrimRight(t.Symbol, " ") != t.Symbol {
			return fmt.Errorf("ticker %q has trailing spaces: %w", t.Symbol, ErrInvalidConfig)
		}
		if _, dup := seen[t.Symbol]; dup {
			return fmt.Errorf("ticker %q listed twice: %w", t.Symbol, ErrInvalidConfig)
		}
		seen[t.Symbol] = struct{}{}
		if t.MinPrice < 1 || t.MinPrice >= t.MaxPrice {
			return fmt.Errorf("ticker %s price range [%d, %d]: %w", t.Symbol, t.MinPrice, t.MaxPrice, ErrInvalidConfig)
		}
		if t.Decimals < 0 {
			return fmt.Errorf("ticker %s decimals %d: %w", t.Symbol, t.Decimals, ErrInvalidConfig)
		}
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// overrideWithEnv lets the environment take precedence over the file.
func overrideWithEnv(cfg *Config) error {
	if level := os.Getenv("OME_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if port := os.Getenv("OME_GATEWAY_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("OME_GATEWAY_PORT %q: %w", port, ErrInvalidConfig)
		}
		cfg.Gateway.Port = p
	}
	if brokers := os.Getenv("OME_KAFKA_BROKERS"); brokers != "" {
		cfg.Bus.Kafka.Brokers = nil
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Bus.Kafka.Brokers = append(cfg.Bus.Kafka.Brokers, b)
			}
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/StrathCole/pricespread/pkg/server/sources"
	"github.com/StrathCole/pricespread/pkg/version"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML after expanding ${VAR} references and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = Duration(20 * time.Second)
	}

	// Aggregator defaults
	if len(cfg.Aggregator.AutoOrder) == 0 {
		for _, id := range sources.AllExchanges() {
			cfg.Aggregator.AutoOrder = append(cfg.Aggregator.AutoOrder, string(id))
		}
	}
	if cfg.Aggregator.SpreadTimeout == 0 {
		cfg.Aggregator.SpreadTimeout = Duration(15 * time.Second)
	}

	// Transport defaults
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = Duration(10 * time.Second)
	}
	if cfg.Transport.UserAgent == "" {
		cfg.Transport.UserAgent = version.AgentString()
	}
	if cfg.Transport.MaxIdleConns == 0 {
		cfg.Transport.MaxIdleConns = 100
	}
	if cfg.Transport.MaxIdleConnsPerHost == 0 {
		cfg.Transport.MaxIdleConnsPerHost = 10
	}
	if cfg.Transport.IdleConnTimeout == 0 {
		cfg.Transport.IdleConnTimeout = Duration(90 * time.Second)
	}

	if len(cfg.Symbols) == 0 {
		cfg.Symbols = append([]string(nil), sources.DefaultSymbols...)
	}
	if len(cfg.Exchanges) == 0 {
		for _, id := range sources.AllExchanges() {
			cfg.Exchanges = append(cfg.Exchanges, ExchangeConfig{Name: string(id)})
		}
	}

	// Cache defaults
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "none"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(5 * time.Second)
	}

	if cfg.Storage.QueueSize == 0 {
		cfg.Storage.QueueSize = 256
	}

	// Watch defaults
	if cfg.Watch.Interval == 0 {
		cfg.Watch.Interval = Duration(30 * time.Second)
	}
	if len(cfg.Watch.Symbols) == 0 {
		cfg.Watch.Symbols = append([]string(nil), cfg.Symbols...)
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// GetString retrieves a string value from the exchange configuration.
func (e *ExchangeConfig) GetString(key, defaultValue string) string {
	return sources.StringFromConfig(e.Config, key, defaultValue)
}

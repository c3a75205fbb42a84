package config

import "time"

// Config is the root configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Transport  TransportConfig  `yaml:"transport"`
	Symbols    []string         `yaml:"symbols"`
	Exchanges  []ExchangeConfig `yaml:"exchanges"`
	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
	Watch      WatchConfig      `yaml:"watch"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	HTTP           HTTPConfig `yaml:"http"`
	WebSocket      WSConfig   `yaml:"websocket"`
	RequestTimeout Duration   `yaml:"request_timeout"`
}

// HTTPConfig configures the HTTP listener
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// WSConfig enables the /ws spread stream
type WSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AggregatorConfig configures price selection and spread queries
type AggregatorConfig struct {
	AutoOrder     []string `yaml:"auto_order"`     // Priority for source=auto
	SpreadTimeout Duration `yaml:"spread_timeout"` // Deadline for the whole fan-out
}

// TransportConfig configures the shared outbound HTTP client
type TransportConfig struct {
	Timeout             Duration `yaml:"timeout"` // Per attempt
	UserAgent           string   `yaml:"user_agent"`
	MaxIdleConns        int      `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int      `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     Duration `yaml:"idle_conn_timeout"`
	InsecureSkipVerify  bool     `yaml:"insecure_skip_verify"` // Local development only
	AllowInsecure       bool     `yaml:"allow_insecure"`       // Must be set together with insecure_skip_verify
}

// ExchangeConfig configures one exchange client
type ExchangeConfig struct {
	Name    string                 `yaml:"name"`
	Enabled *bool                  `yaml:"enabled"` // Defaults to true
	Config  map[string]interface{} `yaml:"config"`  // api_url, pairs
}

// IsEnabled reports whether the exchange is enabled. Unset means enabled.
func (e ExchangeConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// CacheConfig configures the response cache
type CacheConfig struct {
	Backend string      `yaml:"backend"` // none, memory, redis
	TTL     Duration    `yaml:"ttl"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis cache backend
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// StorageConfig configures the optional Postgres history sink
type StorageConfig struct {
	Enabled   bool   `yaml:"enabled"`
	DSN       string `yaml:"dsn"`
	QueueSize int    `yaml:"queue_size"`
}

// WatchConfig configures periodic spread refreshes
type WatchConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	Symbols  []string `yaml:"symbols"` // Defaults to all catalog symbols
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

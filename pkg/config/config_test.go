package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

const sampleConfig = `
server:
  http:
    addr: ":9000"
  websocket:
    enabled: true
aggregator:
  auto_order: [coinbase, binance]
  spread_timeout: 5s
transport:
  timeout: 3s
symbols: [btc, eth, bnb]
exchanges:
  - name: binance
  - name: bybit
    enabled: false
  - name: coinbase
    config:
      api_url: https://api.coinbase.example
      pairs:
        ETH: ETH-USDC
        BTC: ""
cache:
  backend: redis
  ttl: 2s
  redis:
    addr: ${TEST_REDIS_ADDR}
watch:
  enabled: true
  interval: 10s
  symbols: [BTC]
logging:
  level: debug
  format: text
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "localhost:6380")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, ":9000", cfg.Server.HTTP.Addr)
	assert.True(t, cfg.Server.WebSocket.Enabled)
	assert.Equal(t, 20*time.Second, cfg.Server.RequestTimeout.ToDuration())
	assert.Equal(t, 5*time.Second, cfg.Aggregator.SpreadTimeout.ToDuration())
	assert.Equal(t, []sources.ExchangeID{sources.Coinbase, sources.Binance}, cfg.AutoOrder())
	assert.Equal(t, "localhost:6380", cfg.Cache.Redis.Addr)
	assert.Equal(t, "redis", cfg.CacheOptions().Backend)
	assert.Equal(t, 2*time.Second, cfg.CacheOptions().TTL)
	assert.Equal(t, cfg.Server.RequestTimeout.ToDuration(), cfg.CacheOptions().LoadTimeout)

	topts := cfg.TransportOptions()
	assert.Equal(t, 3*time.Second, topts.Timeout)
	assert.Equal(t, 100, topts.MaxIdleConns)
	assert.Contains(t, topts.UserAgent, "pricespread/")
	assert.False(t, topts.InsecureSkipVerify)

	enabled := cfg.EnabledExchanges()
	assert.Len(t, enabled, 2)
	assert.Contains(t, enabled, sources.Binance)
	assert.NotContains(t, enabled, sources.Bybit)
	coinbase := enabled[sources.Coinbase]
	assert.Equal(t, "https://api.coinbase.example", coinbase.GetString("api_url", ""))
}

func TestCatalogFromConfig(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "localhost:6380")
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	catalog, err := cfg.Catalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH", "BNB"}, catalog.SupportedSymbols())

	inst, ok := catalog.InstrumentFor(sources.Coinbase, "ETH")
	assert.True(t, ok)
	assert.Equal(t, "ETH-USDC", inst)

	_, ok = catalog.InstrumentFor(sources.Coinbase, "BTC")
	assert.False(t, ok, "empty pair disables the symbol")

	_, ok = catalog.InstrumentFor(sources.Coinbase, "BNB")
	assert.False(t, ok)

	inst, ok = catalog.InstrumentFor(sources.Binance, "BTC")
	assert.True(t, ok)
	assert.Equal(t, "BTCUSDT", inst)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, ":8080", cfg.Server.HTTP.Addr)
	assert.Equal(t, sources.AllExchanges(), cfg.AutoOrder())
	assert.Len(t, cfg.EnabledExchanges(), 4)
	assert.Equal(t, sources.DefaultSymbols, cfg.Symbols)
	assert.Equal(t, cfg.Symbols, cfg.Watch.Symbols)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, 10*time.Second, cfg.Transport.Timeout.ToDuration())
	assert.Equal(t, 15*time.Second, cfg.Aggregator.SpreadTimeout.ToDuration())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbols: [SOL]\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SOL"}, cfg.Symbols)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte("transport:\n  timeout: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	disabled := false

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad symbol", func(c *Config) { c.Symbols = []string{"BTC/USD"} }, ErrInvalidSymbol},
		{"unknown exchange", func(c *Config) { c.Exchanges = []ExchangeConfig{{Name: "kraken"}} }, ErrUnknownExchange},
		{"duplicate exchange", func(c *Config) {
			c.Exchanges = []ExchangeConfig{{Name: "binance"}, {Name: "Binance"}}
		}, ErrDuplicateExchange},
		{"missing name", func(c *Config) { c.Exchanges = []ExchangeConfig{{Name: " "}} }, ErrExchangeNameRequired},
		{"all disabled", func(c *Config) {
			c.Exchanges = []ExchangeConfig{{Name: "binance", Enabled: &disabled}}
		}, ErrNoExchangesEnabled},
		{"bad pairs", func(c *Config) {
			c.Exchanges = []ExchangeConfig{{Name: "binance", Config: map[string]interface{}{"pairs": "BTCUSDT"}}}
		}, sources.ErrInvalidConfig},
		{"unknown auto order", func(c *Config) { c.Aggregator.AutoOrder = []string{"ftx"} }, ErrUnknownExchange},
		{"insecure without allow", func(c *Config) { c.Transport.InsecureSkipVerify = true }, ErrInsecureNotAllowed},
		{"zero timeout", func(c *Config) { c.Transport.Timeout = Duration(-time.Second) }, ErrInvalidTimeout},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, ErrInvalidCacheBackend},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, ErrRedisAddrRequired},
		{"storage without dsn", func(c *Config) { c.Storage.Enabled = true }, ErrStorageDSNRequired},
		{"watch unknown symbol", func(c *Config) {
			c.Watch.Enabled = true
			c.Watch.Symbols = []string{"PEPE"}
		}, ErrWatchSymbolNotInCatalog},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, ErrInvalidLogLevel},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.want)
		})
	}
}

func TestValidate_InsecureAllowed(t *testing.T) {
	cfg := Default()
	cfg.Transport.InsecureSkipVerify = true
	cfg.Transport.AllowInsecure = true
	require.NoError(t, Validate(cfg))
	assert.True(t, cfg.TransportOptions().InsecureSkipVerify)
}

package config

import (
	"fmt"
	"strings"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateSymbols(cfg.Symbols); err != nil {
		return fmt.Errorf("symbols: %w", err)
	}

	if err := validateExchanges(cfg.Exchanges); err != nil {
		return fmt.Errorf("exchanges: %w", err)
	}

	if err := validateAggregatorConfig(&cfg.Aggregator); err != nil {
		return fmt.Errorf("aggregator config: %w", err)
	}

	if err := validateTransportConfig(&cfg.Transport); err != nil {
		return fmt.Errorf("transport config: %w", err)
	}

	if err := validateCacheConfig(&cfg.Cache); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if cfg.Storage.Enabled && strings.TrimSpace(cfg.Storage.DSN) == "" {
		return fmt.Errorf("storage config: %w", ErrStorageDSNRequired)
	}

	if cfg.Watch.Enabled {
		if err := validateWatchConfig(&cfg.Watch, cfg.Symbols); err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
	}

	if cfg.Server.RequestTimeout.ToDuration() <= 0 {
		return fmt.Errorf("server config: request_timeout: %w", ErrInvalidTimeout)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateSymbols(symbols []string) error {
	if len(symbols) == 0 {
		return ErrNoSymbols
	}
	for i, s := range symbols {
		if err := sources.ValidateSymbol(sources.NormalizeSymbol(s)); err != nil {
			return fmt.Errorf("%w: symbol[%d] %q", ErrInvalidSymbol, i, s)
		}
	}
	return nil
}

func validateExchanges(exchanges []ExchangeConfig) error {
	seen := make(map[sources.ExchangeID]bool, len(exchanges))
	enabled := 0
	for i, ex := range exchanges {
		if strings.TrimSpace(ex.Name) == "" {
			return fmt.Errorf("exchange %d: %w", i, ErrExchangeNameRequired)
		}
		id, ok := sources.ParseExchangeID(ex.Name)
		if !ok {
			return fmt.Errorf("%w: %s (must be one of: %s)", ErrUnknownExchange, ex.Name, exchangeNames())
		}
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateExchange, id)
		}
		seen[id] = true

		if _, err := sources.ParsePairsFromMap(ex.Config); err != nil {
			return fmt.Errorf("exchange %s: %w", id, err)
		}
		if ex.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoExchangesEnabled
	}
	return nil
}

func validateAggregatorConfig(cfg *AggregatorConfig) error {
	for _, name := range cfg.AutoOrder {
		if _, ok := sources.ParseExchangeID(name); !ok {
			return fmt.Errorf("auto_order: %w: %s", ErrUnknownExchange, name)
		}
	}
	if cfg.SpreadTimeout.ToDuration() <= 0 {
		return fmt.Errorf("spread_timeout: %w", ErrInvalidTimeout)
	}
	return nil
}

func validateTransportConfig(cfg *TransportConfig) error {
	if cfg.Timeout.ToDuration() <= 0 {
		return fmt.Errorf("timeout: %w", ErrInvalidTimeout)
	}
	if cfg.InsecureSkipVerify && !cfg.AllowInsecure {
		return ErrInsecureNotAllowed
	}
	return nil
}

func validateCacheConfig(cfg *CacheConfig) error {
	switch strings.ToLower(cfg.Backend) {
	case "none", "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return ErrRedisAddrRequired
		}
	default:
		return fmt.Errorf("%w: %s (must be 'none', 'memory', or 'redis')", ErrInvalidCacheBackend, cfg.Backend)
	}
	if cfg.TTL.ToDuration() < 0 {
		return fmt.Errorf("ttl: %w", ErrInvalidTimeout)
	}
	return nil
}

func validateWatchConfig(cfg *WatchConfig, symbols []string) error {
	known := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		known[sources.NormalizeSymbol(s)] = true
	}
	for _, s := range cfg.Symbols {
		if !known[sources.NormalizeSymbol(s)] {
			return fmt.Errorf("%w: %s", ErrWatchSymbolNotInCatalog, s)
		}
	}
	if cfg.Interval.ToDuration() <= 0 {
		return fmt.Errorf("interval: %w", ErrInvalidTimeout)
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}

func exchangeNames() string {
	ids := sources.AllExchanges()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}

package config

import (
	"fmt"
	"strings"

	"github.com/StrathCole/pricespread/pkg/server/cache"
	"github.com/StrathCole/pricespread/pkg/server/sources"
	"github.com/StrathCole/pricespread/pkg/server/transport"
)

// Catalog builds the symbol catalog, applying each exchange's pairs override.
func (c *Config) Catalog() (*sources.Catalog, error) {
	overrides := make(map[sources.ExchangeID]map[string]string)
	for _, ex := range c.Exchanges {
		id, ok := sources.ParseExchangeID(ex.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, ex.Name)
		}
		pairs, err := sources.ParsePairsFromMap(ex.Config)
		if err != nil {
			return nil, fmt.Errorf("exchange %s: %w", id, err)
		}
		if len(pairs) > 0 {
			overrides[id] = pairs
		}
	}
	return sources.NewCatalog(c.Symbols, overrides)
}

// EnabledExchanges returns the enabled exchange entries keyed by ID.
func (c *Config) EnabledExchanges() map[sources.ExchangeID]ExchangeConfig {
	out := make(map[sources.ExchangeID]ExchangeConfig, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		if !ex.IsEnabled() {
			continue
		}
		if id, ok := sources.ParseExchangeID(ex.Name); ok {
			out[id] = ex
		}
	}
	return out
}

// AutoOrder returns the configured auto-mode priority.
func (c *Config) AutoOrder() []sources.ExchangeID {
	order := make([]sources.ExchangeID, 0, len(c.Aggregator.AutoOrder))
	for _, name := range c.Aggregator.AutoOrder {
		if id, ok := sources.ParseExchangeID(name); ok {
			order = append(order, id)
		}
	}
	return order
}

// TransportOptions converts the transport section for transport.New.
func (c *Config) TransportOptions() transport.Config {
	return transport.Config{
		Timeout:             c.Transport.Timeout.ToDuration(),
		UserAgent:           c.Transport.UserAgent,
		InsecureSkipVerify:  c.Transport.InsecureSkipVerify && c.Transport.AllowInsecure,
		MaxIdleConns:        c.Transport.MaxIdleConns,
		MaxIdleConnsPerHost: c.Transport.MaxIdleConnsPerHost,
		IdleConnTimeout:     c.Transport.IdleConnTimeout.ToDuration(),
	}
}

// CacheOptions converts the cache section for cache.Open.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend:     strings.ToLower(c.Cache.Backend),
		TTL:         c.Cache.TTL.ToDuration(),
		Addr:        c.Cache.Redis.Addr,
		Password:    c.Cache.Redis.Password,
		DB:          c.Cache.Redis.DB,
		Prefix:      c.Cache.Redis.Prefix,
		LoadTimeout: c.Server.RequestTimeout.ToDuration(),
	}
}

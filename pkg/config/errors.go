// Package config provides configuration loading and validation for pricespread.
package config

import "errors"

var (
	// ErrNoExchangesEnabled indicates that every exchange is disabled.
	ErrNoExchangesEnabled = errors.New("at least one exchange must be enabled")
	// ErrExchangeNameRequired indicates an exchange entry without a name.
	ErrExchangeNameRequired = errors.New("exchange name is required")
	// ErrUnknownExchange indicates an exchange name that has no client.
	ErrUnknownExchange = errors.New("unknown exchange")
	// ErrDuplicateExchange indicates the same exchange is configured twice.
	ErrDuplicateExchange = errors.New("duplicate exchange")
	// ErrNoSymbols indicates an empty symbol list.
	ErrNoSymbols = errors.New("at least one symbol must be configured")
	// ErrInvalidSymbol indicates a malformed symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrInvalidTimeout indicates a zero or negative timeout.
	ErrInvalidTimeout = errors.New("timeout must be positive")
	// ErrInsecureNotAllowed indicates insecure_skip_verify without allow_insecure.
	ErrInsecureNotAllowed = errors.New("insecure_skip_verify requires allow_insecure: true")
	// ErrInvalidCacheBackend indicates an unsupported cache backend.
	ErrInvalidCacheBackend = errors.New("invalid cache backend")
	// ErrRedisAddrRequired indicates the redis backend without an address.
	ErrRedisAddrRequired = errors.New("cache.redis.addr is required for the redis backend")
	// ErrStorageDSNRequired indicates storage enabled without a DSN.
	ErrStorageDSNRequired = errors.New("storage.dsn is required when storage is enabled")
	// ErrWatchSymbolNotInCatalog indicates a watched symbol missing from symbols.
	ErrWatchSymbolNotInCatalog = errors.New("watched symbol is not in the symbol list")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)

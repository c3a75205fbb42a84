package sources

import (
	"fmt"
	"strings"
)

// DefaultSymbols is the catalog used when no symbols are configured.
var DefaultSymbols = []string{"BTC", "ETH", "BNB", "ADA", "XRP", "SOL", "DOT", "DOGE", "AVAX", "MATIC"}

// coinbaseUnlisted holds symbols Coinbase does not quote against USD.
var coinbaseUnlisted = map[string]struct{}{
	"BNB": {},
}

// Catalog maps canonical symbols to each exchange's native instrument.
// It is immutable once built and safe for concurrent use.
type Catalog struct {
	symbols     []string
	index       map[string]struct{}
	instruments map[ExchangeID]map[string]string
}

// DefaultCatalog returns the catalog for DefaultSymbols.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultSymbols, nil)
	if err != nil {
		panic(err) // static data
	}
	return c
}

// DefaultInstrument returns the native pair an exchange uses for a symbol.
func DefaultInstrument(exchange ExchangeID, symbol string) (string, bool) {
	switch exchange {
	case Binance, Bybit, Bitget:
		return symbol + "USDT", true
	case Coinbase:
		if _, unlisted := coinbaseUnlisted[symbol]; unlisted {
			return "", false
		}
		return symbol + "-USD", true
	default:
		return "", false
	}
}

// NewCatalog builds a catalog for the given symbols. Overrides replace the
// default instrument per exchange; an empty instrument marks the symbol
// unsupported on that exchange.
func NewCatalog(symbols []string, overrides map[ExchangeID]map[string]string) (*Catalog, error) {
	c := &Catalog{
		index:       make(map[string]struct{}, len(symbols)),
		instruments: make(map[ExchangeID]map[string]string, len(exchangeOrder)),
	}

	for _, raw := range symbols {
		symbol := NormalizeSymbol(raw)
		if err := ValidateSymbol(symbol); err != nil {
			return nil, err
		}
		if _, dup := c.index[symbol]; dup {
			continue
		}
		c.index[symbol] = struct{}{}
		c.symbols = append(c.symbols, symbol)
	}
	if len(c.symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols", ErrInvalidConfig)
	}

	for _, exchange := range exchangeOrder {
		m := make(map[string]string, len(c.symbols))
		for _, symbol := range c.symbols {
			if inst, ok := DefaultInstrument(exchange, symbol); ok {
				m[symbol] = inst
			}
		}
		c.instruments[exchange] = m
	}

	for exchange, pairs := range overrides {
		if err := c.apply(exchange, pairs); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithOverrides returns a copy of the catalog with one exchange's pairs replaced.
func (c *Catalog) WithOverrides(exchange ExchangeID, pairs map[string]string) (*Catalog, error) {
	out := &Catalog{
		symbols:     c.symbols,
		index:       c.index,
		instruments: make(map[ExchangeID]map[string]string, len(c.instruments)),
	}
	for id, m := range c.instruments {
		cp := make(map[string]string, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out.instruments[id] = cp
	}
	if err := out.apply(exchange, pairs); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Catalog) apply(exchange ExchangeID, pairs map[string]string) error {
	m, ok := c.instruments[exchange]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExchange, exchange)
	}
	for raw, inst := range pairs {
		symbol := NormalizeSymbol(raw)
		if _, known := c.index[symbol]; !known {
			return fmt.Errorf("%w: %s pair for unknown symbol %q", ErrInvalidConfig, exchange, raw)
		}
		inst = strings.TrimSpace(inst)
		if inst == "" {
			delete(m, symbol)
			continue
		}
		m[symbol] = inst
	}
	return nil
}

// SupportedSymbols returns the catalog symbols in configured order.
func (c *Catalog) SupportedSymbols() []string {
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// IsSupported reports whether the symbol is in the catalog.
func (c *Catalog) IsSupported(symbol string) bool {
	_, ok := c.index[NormalizeSymbol(symbol)]
	return ok
}

// InstrumentFor returns the exchange's native instrument for a symbol.
func (c *Catalog) InstrumentFor(exchange ExchangeID, symbol string) (string, bool) {
	inst, ok := c.instruments[exchange][NormalizeSymbol(symbol)]
	return inst, ok
}

// ExchangesFor lists the exchanges that map the symbol, in canonical order.
func (c *Catalog) ExchangesFor(symbol string) []ExchangeID {
	var out []ExchangeID
	for _, exchange := range exchangeOrder {
		if _, ok := c.InstrumentFor(exchange, symbol); ok {
			out = append(out, exchange)
		}
	}
	return out
}

package sources

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeID identifies one of the supported exchanges.
type ExchangeID string

const (
	Binance  ExchangeID = "binance"
	Bybit    ExchangeID = "bybit"
	Bitget   ExchangeID = "bitget"
	Coinbase ExchangeID = "coinbase"
)

// exchangeOrder is the canonical order used for auto mode and for sorting.
var exchangeOrder = []ExchangeID{Binance, Bybit, Bitget, Coinbase}

// Quote currencies.
const (
	CurrencyUSD  = "USD"
	CurrencyUSDT = "USDT"
)

// AllExchanges returns every known exchange in canonical order.
func AllExchanges() []ExchangeID {
	out := make([]ExchangeID, len(exchangeOrder))
	copy(out, exchangeOrder)
	return out
}

// ParseExchangeID resolves a case-insensitive exchange name.
func ParseExchangeID(name string) (ExchangeID, bool) {
	id := ExchangeID(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range exchangeOrder {
		if id == known {
			return id, true
		}
	}
	return "", false
}

// Rank returns the position of the exchange in canonical order.
// Unknown exchanges sort last.
func (id ExchangeID) Rank() int {
	for i, known := range exchangeOrder {
		if id == known {
			return i
		}
	}
	return len(exchangeOrder)
}

func (id ExchangeID) String() string {
	return string(id)
}

// PriceQuote is one exchange's current price for a symbol.
type PriceQuote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Source    ExchangeID      `json:"source"`
	Currency  string          `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
}

// FetchOutcome is the result of one client call: exactly one of Quote or Err is set.
type FetchOutcome struct {
	Exchange ExchangeID
	Quote    *PriceQuote
	Err      *FetchError
}

// NewOutcome wraps a FetchPrice result.
func NewOutcome(exchange ExchangeID, quote PriceQuote, err error) FetchOutcome {
	if err != nil {
		return FetchOutcome{Exchange: exchange, Err: AsFetchError(exchange, err)}
	}
	return FetchOutcome{Exchange: exchange, Quote: &quote}
}

// OK reports whether the outcome carries a quote.
func (o FetchOutcome) OK() bool {
	return o.Quote != nil
}

// Client fetches a single current price from one exchange.
// Every error returned by FetchPrice is a *FetchError.
type Client interface {
	// ID returns the exchange this client talks to
	ID() ExchangeID

	// FetchPrice returns the current price of a canonical symbol
	FetchPrice(ctx context.Context, symbol string) (PriceQuote, error)
}

// ClientFactory builds a Client from shared dependencies and its config section.
type ClientFactory func(deps Deps, config map[string]interface{}) (Client, error)

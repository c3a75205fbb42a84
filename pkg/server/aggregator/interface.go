package aggregator

import (
	"context"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

// SourceAuto selects the first exchange, in priority order, that returns a price.
const SourceAuto = "auto"

// Service is the query surface consumed by the API layer and the watcher.
type Service interface {
	// GetPrice returns one quote, either from the pinned source or in auto mode
	GetPrice(ctx context.Context, symbol, source string) (sources.PriceQuote, error)

	// GetSpread queries every enabled exchange and summarizes their disagreement
	GetSpread(ctx context.Context, symbol string) (*SpreadSummary, error)

	// Catalog returns the symbol catalog used for validation
	Catalog() *sources.Catalog

	// Exchanges returns the enabled exchanges in canonical order
	Exchanges() []sources.ExchangeID
}

// Sink receives every successful quote. Implementations must not block.
type Sink interface {
	RecordQuotes(ctx context.Context, quotes []sources.PriceQuote) error
}

var _ Service = (*Aggregator)(nil)

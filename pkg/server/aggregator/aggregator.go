package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/StrathCole/pricespread/pkg/logging"
	"github.com/StrathCole/pricespread/pkg/metrics"
	"github.com/StrathCole/pricespread/pkg/server/sources"
)

// DefaultSpreadTimeout bounds a whole GetSpread fan-out.
const DefaultSpreadTimeout = 15 * time.Second

// Aggregator routes price queries to exchange clients. Clients are built once
// at startup and shared; the Aggregator itself holds no mutable state.
type Aggregator struct {
	catalog       *sources.Catalog
	clients       map[sources.ExchangeID]sources.Client
	enabled       []sources.ExchangeID
	order         []sources.ExchangeID
	spreadTimeout time.Duration
	sink          Sink
	logger        *logging.Logger
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithOrder sets the auto-mode priority. Exchanges without a client are
// skipped; enabled exchanges missing from the list are tried last.
func WithOrder(order ...sources.ExchangeID) Option {
	return func(a *Aggregator) {
		if len(order) > 0 {
			a.order = order
		}
	}
}

// WithSpreadTimeout sets the whole-operation deadline for GetSpread.
func WithSpreadTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.spreadTimeout = d
		}
	}
}

// WithSink hands every successful quote to a history sink.
func WithSink(s Sink) Option {
	return func(a *Aggregator) {
		a.sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an aggregator over the given clients.
func New(catalog *sources.Catalog, clients []sources.Client, opts ...Option) (*Aggregator, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w", ErrNoCatalog)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("%w", ErrNoClients)
	}

	a := &Aggregator{
		catalog:       catalog,
		clients:       make(map[sources.ExchangeID]sources.Client, len(clients)),
		order:         sources.AllExchanges(),
		spreadTimeout: DefaultSpreadTimeout,
		logger:        logging.NewNoopLogger(),
	}
	for _, c := range clients {
		if _, dup := a.clients[c.ID()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClient, c.ID())
		}
		a.clients[c.ID()] = c
	}
	for _, opt := range opts {
		opt(a)
	}

	for _, id := range sources.AllExchanges() {
		if _, ok := a.clients[id]; ok {
			a.enabled = append(a.enabled, id)
		}
	}

	seen := make(map[sources.ExchangeID]bool, len(a.clients))
	order := make([]sources.ExchangeID, 0, len(a.clients))
	for _, id := range a.order {
		if _, ok := a.clients[id]; ok && !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for _, id := range a.enabled {
		if !seen[id] {
			order = append(order, id)
		}
	}
	a.order = order

	a.logger.Info("Aggregator ready", "exchanges", a.enabled, "auto_order", a.order)
	return a, nil
}

// Catalog returns the symbol catalog.
func (a *Aggregator) Catalog() *sources.Catalog {
	return a.catalog
}

// Exchanges returns the enabled exchanges in canonical order.
func (a *Aggregator) Exchanges() []sources.ExchangeID {
	out := make([]sources.ExchangeID, len(a.enabled))
	copy(out, a.enabled)
	return out
}

// AutoOrder returns the auto-mode priority.
func (a *Aggregator) AutoOrder() []sources.ExchangeID {
	out := make([]sources.ExchangeID, len(a.order))
	copy(out, a.order)
	return out
}

// GetPrice returns a quote for symbol. An empty source or "auto" tries the
// exchanges sequentially in priority order and returns the first success.
func (a *Aggregator) GetPrice(ctx context.Context, symbol, source string) (sources.PriceQuote, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation("price", time.Since(start))
	}()

	symbol = sources.NormalizeSymbol(symbol)
	if !a.catalog.IsSupported(symbol) {
		return sources.PriceQuote{}, fmt.Errorf("%w: %q", ErrUnsupportedSymbol, symbol)
	}

	src := strings.ToLower(strings.TrimSpace(source))
	if src == "" || src == SourceAuto {
		return a.getAuto(ctx, symbol)
	}

	id, ok := sources.ParseExchangeID(src)
	if !ok {
		return sources.PriceQuote{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	// Unlisted symbols are reported before disabled exchanges.
	if _, ok := a.catalog.InstrumentFor(id, symbol); !ok {
		return sources.PriceQuote{}, fmt.Errorf("%w: %s is not listed on %s", ErrUnsupportedOnExchange, symbol, id)
	}
	client, ok := a.clients[id]
	if !ok {
		return sources.PriceQuote{}, fmt.Errorf("%w: %s", ErrSourceDisabled, id)
	}

	quote, err := client.FetchPrice(ctx, symbol)
	if err != nil {
		fe := sources.AsFetchError(id, err)
		if fe.Kind == sources.KindNotSupported {
			return sources.PriceQuote{}, fmt.Errorf("%w: %w", ErrUnsupportedOnExchange, fe)
		}
		return sources.PriceQuote{}, fe
	}

	a.record(ctx, quote)
	return quote, nil
}

// getAuto tries one exchange at a time; attempt N+1 starts only after
// attempt N has returned a failure.
func (a *Aggregator) getAuto(ctx context.Context, symbol string) (sources.PriceQuote, error) {
	failures := make([]*sources.FetchError, 0, len(a.order))

	for _, id := range a.order {
		if err := ctx.Err(); err != nil {
			failures = append(failures, sources.NewFetchError(id, sources.KindTimeout, err))
			break
		}

		quote, err := a.clients[id].FetchPrice(ctx, symbol)
		if err == nil {
			metrics.RecordAutoSelection(string(id))
			a.record(ctx, quote)
			return quote, nil
		}

		fe := sources.AsFetchError(id, err)
		a.logger.Debug("Auto source failed, trying next", "symbol", symbol, "exchange", string(id), "error", fe)
		failures = append(failures, fe)
	}

	err := &SourcesError{Kind: ErrAllSourcesFailed, Symbol: symbol, Failures: failures}
	a.logger.Warn("All sources failed", "symbol", symbol, "error", err)
	return sources.PriceQuote{}, err
}

func (a *Aggregator) record(ctx context.Context, quotes ...sources.PriceQuote) {
	if a.sink == nil || len(quotes) == 0 {
		return
	}
	if err := a.sink.RecordQuotes(ctx, quotes); err != nil {
		a.logger.Warn("Failed to record quotes", "symbol", quotes[0].Symbol, "error", err)
	}
}

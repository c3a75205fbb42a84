package sources

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pricespread/pkg/logging"
	"github.com/StrathCole/pricespread/pkg/metrics"
	"github.com/StrathCole/pricespread/pkg/server/transport"
)

// JSONGetter performs one bounded GET and decodes the JSON body.
// *transport.Client satisfies it.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out interface{}) error
}

// Locator picks the ticker object out of a decoded response body.
type Locator func(body interface{}) (Ticker, error)

// Endpoint is one step of a client's fallback chain.
type Endpoint struct {
	Name       string // metrics label, e.g. "v2_ticker"
	Path       string // path and query relative to the base URL
	Locate     Locator
	Strategies []Strategy
}

// BaseClient provides common functionality for all exchange clients
type BaseClient struct {
	id       ExchangeID
	catalog  *Catalog
	http     JSONGetter
	baseURL  string
	currency string
	logger   *logging.Logger
}

// NewBaseClient creates the shared part of an exchange client.
func NewBaseClient(id ExchangeID, deps Deps, baseURL, currency string) *BaseClient {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &BaseClient{
		id:       id,
		catalog:  deps.Catalog,
		http:     deps.HTTP,
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: currency,
		logger:   logger.With("exchange", string(id)),
	}
}

// ID returns the exchange identifier
func (b *BaseClient) ID() ExchangeID {
	return b.id
}

// Logger returns the logger
func (b *BaseClient) Logger() *logging.Logger {
	return b.logger
}

// Instrument resolves the native instrument for a symbol. Unmapped symbols
// fail with a NotSupported FetchError without touching the network.
func (b *BaseClient) Instrument(symbol string) (string, error) {
	inst, ok := b.catalog.InstrumentFor(b.id, symbol)
	if !ok {
		return "", NewFetchError(b.id, KindNotSupported, fmt.Errorf("%s", NormalizeSymbol(symbol)))
	}
	return inst, nil
}

// Quote builds a PriceQuote stamped with the exchange and its currency.
func (b *BaseClient) Quote(symbol string, price decimal.Decimal) PriceQuote {
	return PriceQuote{
		Symbol:    NormalizeSymbol(symbol),
		Price:     price,
		Source:    b.id,
		Currency:  b.currency,
		Timestamp: time.Now().UTC(),
	}
}

// FetchChain tries endpoints in order until one yields a usable price.
// A response that arrived but was unusable falls through to the next endpoint;
// a timeout or connection failure ends the chain.
func (b *BaseClient) FetchChain(ctx context.Context, symbol string, endpoints []Endpoint) (PriceQuote, error) {
	start := time.Now()
	var (
		errs    []error
		lastErr error
	)

	for i, ep := range endpoints {
		price, err := b.tryEndpoint(ctx, ep)
		if err == nil {
			if i > 0 {
				b.logger.Debug("Price found via fallback endpoint", "symbol", symbol, "endpoint", ep.Name)
			}
			metrics.RecordExchangeFetch(string(b.id), "ok", time.Since(start))
			return b.Quote(symbol, price), nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", ep.Name, err))
		lastErr = err
		if !continuesChain(err) {
			break
		}
	}

	if lastErr == nil {
		lastErr = ErrNoUsablePrice
		errs = append(errs, lastErr)
	}

	kind := Classify(lastErr)
	cause := lastErr
	if len(errs) > 1 {
		cause = errors.Join(errs...)
	} else if len(errs) == 1 {
		cause = errs[0]
	}
	fe := NewFetchError(b.id, kind, cause)

	metrics.RecordExchangeFetch(string(b.id), kind.Label(), time.Since(start))
	b.logger.Debug("Fetch failed", "symbol", symbol, "kind", kind.String(), "error", fe.Err)
	return PriceQuote{}, fe
}

func (b *BaseClient) tryEndpoint(ctx context.Context, ep Endpoint) (decimal.Decimal, error) {
	var body interface{}
	err := b.http.GetJSON(ctx, b.baseURL+ep.Path, &body)
	metrics.RecordExchangeRequest(string(b.id), ep.Name, requestStatus(err))
	if err != nil {
		return decimal.Zero, err
	}

	ticker, err := ep.Locate(body)
	if err != nil {
		return decimal.Zero, err
	}

	price, ok := Extract(ticker, ep.Strategies...)
	if !ok {
		return decimal.Zero, ErrNoUsablePrice
	}
	return price, nil
}

func requestStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return strconv.Itoa(statusErr.StatusCode)
	}
	return Classify(err).Label()
}

// RootTicker treats the whole body as the ticker.
func RootTicker(body interface{}) (Ticker, error) {
	m, ok := body.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: body is %T", ErrMalformedResponse, body)
	}
	return m, nil
}

// FirstTicker returns the first ticker found at path, which may hold a single
// object or a list.
func FirstTicker(path ...string) Locator {
	return func(body interface{}) (Ticker, error) {
		v, ok := Lookup(body, path...)
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedResponse, strings.Join(path, "."))
		}
		tickers := Tickers(v)
		if len(tickers) == 0 {
			return nil, fmt.Errorf("%w: empty %s", ErrTickerNotFound, strings.Join(path, "."))
		}
		return tickers[0], nil
	}
}

// MatchingTicker searches the list at path for the ticker accepted by match.
func MatchingTicker(match func(Ticker) bool, path ...string) Locator {
	return func(body interface{}) (Ticker, error) {
		v, ok := Lookup(body, path...)
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedResponse, strings.Join(path, "."))
		}
		t, ok := FindTicker(Tickers(v), match)
		if !ok {
			return nil, ErrTickerNotFound
		}
		return t, nil
	}
}

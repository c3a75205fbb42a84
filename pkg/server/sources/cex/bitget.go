package cex

import (
	"context"
	"net/url"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

const (
	bitgetBaseURL = "https://api.bitget.com"
	bitgetOKCode  = "00000"
)

// bitgetIDFields are the identifier fields seen across Bitget API generations.
var bitgetIDFields = []string{"symbol", "instId", "symbolName"}

// BitgetClient fetches spot prices from Bitget. The public API has shipped
// several incompatible ticker endpoints, so FetchPrice walks all of them.
type BitgetClient struct {
	*sources.BaseClient
}

var _ sources.Client = (*BitgetClient)(nil)

// NewBitgetClient creates a new Bitget client.
func NewBitgetClient(deps sources.Deps, config map[string]interface{}) (sources.Client, error) {
	apiURL := sources.StringFromConfig(config, "api_url", bitgetBaseURL)
	return &BitgetClient{
		BaseClient: sources.NewBaseClient(sources.Bitget, deps, apiURL, sources.CurrencyUSDT),
	}, nil
}

// FetchPrice tries, in order: v2 single ticker, v2 tickers by symbol,
// v2 full spot listing, v1 full listing and v1 single ticker.
func (c *BitgetClient) FetchPrice(ctx context.Context, symbol string) (sources.PriceQuote, error) {
	pair, err := c.Instrument(symbol)
	if err != nil {
		return sources.PriceQuote{}, err
	}
	spbl := pair + "_SPBL"
	match := sources.MatchSymbol(bitgetIDFields, pair, spbl)

	first := func() sources.Locator {
		return withEnvelope("code", bitgetOKCode, "msg", sources.FirstTicker("data"))
	}
	find := func() sources.Locator {
		return withEnvelope("code", bitgetOKCode, "msg", sources.MatchingTicker(match, "data"))
	}

	return c.FetchChain(ctx, symbol, []sources.Endpoint{
		{Name: "v2_ticker", Path: "/api/v2/spot/market/ticker?symbol=" + url.QueryEscape(spbl), Locate: first(), Strategies: bitgetStrategies},
		{Name: "v2_tickers_symbol", Path: "/api/v2/spot/market/tickers?symbol=" + url.QueryEscape(pair), Locate: find(), Strategies: bitgetStrategies},
		{Name: "v2_tickers_all", Path: "/api/v2/spot/market/tickers?productType=spbl", Locate: find(), Strategies: bitgetStrategies},
		{Name: "v1_tickers", Path: "/api/spot/v1/market/tickers", Locate: find(), Strategies: bitgetStrategies},
		{Name: "v1_ticker", Path: "/api/spot/v1/market/ticker?symbol=" + url.QueryEscape(spbl), Locate: first(), Strategies: bitgetStrategies},
	})
}

var bitgetStrategies = []sources.Strategy{
	sources.Field("lastPr", "last", "close"),
	sources.Field("markPrice"),
	sources.Midpoint("bidPr", "askPr"),
	sources.Midpoint("buyOne", "sellOne"),
	sources.Midpoint("bestBid", "bestAsk"),
}

package cex

import (
	"context"
	"net/url"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

const binanceBaseURL = "https://api.binance.com"

// BinanceClient fetches spot prices from the Binance REST API.
type BinanceClient struct {
	*sources.BaseClient
}

var _ sources.Client = (*BinanceClient)(nil)

// NewBinanceClient creates a new Binance client.
func NewBinanceClient(deps sources.Deps, config map[string]interface{}) (sources.Client, error) {
	apiURL := sources.StringFromConfig(config, "api_url", binanceBaseURL)
	return &BinanceClient{
		BaseClient: sources.NewBaseClient(sources.Binance, deps, apiURL, sources.CurrencyUSDT),
	}, nil
}

// FetchPrice returns the last traded price from /api/v3/ticker/price.
// Response: {"symbol":"BTCUSDT","price":"64000.01000000"}
func (c *BinanceClient) FetchPrice(ctx context.Context, symbol string) (sources.PriceQuote, error) {
	pair, err := c.Instrument(symbol)
	if err != nil {
		return sources.PriceQuote{}, err
	}

	return c.FetchChain(ctx, symbol, []sources.Endpoint{
		{
			Name:       "ticker_price",
			Path:       "/api/v3/ticker/price?symbol=" + url.QueryEscape(pair),
			Locate:     withEnvelope("code", "0", "msg", sources.RootTicker),
			Strategies: []sources.Strategy{sources.Field("price")},
		},
	})
}

package cex

import (
	"context"
	"net/url"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

const coinbaseBaseURL = "https://api.coinbase.com"

// CoinbaseClient fetches USD spot prices from the Coinbase v2 API.
type CoinbaseClient struct {
	*sources.BaseClient
}

var _ sources.Client = (*CoinbaseClient)(nil)

// NewCoinbaseClient creates a new Coinbase client.
func NewCoinbaseClient(deps sources.Deps, config map[string]interface{}) (sources.Client, error) {
	apiURL := sources.StringFromConfig(config, "api_url", coinbaseBaseURL)
	return &CoinbaseClient{
		BaseClient: sources.NewBaseClient(sources.Coinbase, deps, apiURL, sources.CurrencyUSD),
	}, nil
}

// FetchPrice reads data.amount from /v2/prices/<BASE>-USD/spot.
// Response: {"data":{"base":"BTC","currency":"USD","amount":"64000.12"}}
func (c *CoinbaseClient) FetchPrice(ctx context.Context, symbol string) (sources.PriceQuote, error) {
	pair, err := c.Instrument(symbol)
	if err != nil {
		return sources.PriceQuote{}, err
	}

	return c.FetchChain(ctx, symbol, []sources.Endpoint{
		{
			Name:       "spot",
			Path:       "/v2/prices/" + url.PathEscape(pair) + "/spot",
			Locate:     sources.FirstTicker("data"),
			Strategies: []sources.Strategy{sources.Field("amount")},
		},
	})
}

package cex

import (
	"context"
	"net/url"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

const bybitBaseURL = "https://api.bybit.com"

// bybitCategories are tried in order: perpetuals first, then spot.
var bybitCategories = []string{"linear", "spot"}

// BybitClient fetches prices from the Bybit v5 market API.
type BybitClient struct {
	*sources.BaseClient
}

var _ sources.Client = (*BybitClient)(nil)

// NewBybitClient creates a new Bybit client.
func NewBybitClient(deps sources.Deps, config map[string]interface{}) (sources.Client, error) {
	apiURL := sources.StringFromConfig(config, "api_url", bybitBaseURL)
	return &BybitClient{
		BaseClient: sources.NewBaseClient(sources.Bybit, deps, apiURL, sources.CurrencyUSDT),
	}, nil
}

// FetchPrice reads result.list[0] from /v5/market/tickers.
func (c *BybitClient) FetchPrice(ctx context.Context, symbol string) (sources.PriceQuote, error) {
	pair, err := c.Instrument(symbol)
	if err != nil {
		return sources.PriceQuote{}, err
	}

	strategies := []sources.Strategy{
		sources.Field("lastPrice"),
		sources.Field("markPrice"),
		sources.Midpoint("bid1Price", "ask1Price"),
	}

	endpoints := make([]sources.Endpoint, 0, len(bybitCategories))
	for _, category := range bybitCategories {
		q := url.Values{}
		q.Set("category", category)
		q.Set("symbol", pair)
		endpoints = append(endpoints, sources.Endpoint{
			Name:       "tickers_" + category,
			Path:       "/v5/market/tickers?" + q.Encode(),
			Locate:     withEnvelope("retCode", "0", "retMsg", sources.FirstTicker("result", "list")),
			Strategies: strategies,
		})
	}

	return c.FetchChain(ctx, symbol, endpoints)
}

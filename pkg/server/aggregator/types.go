package aggregator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

// PairKey identifies an unordered exchange pair as "a:b" in canonical order.
type PairKey string

// NewPairKey returns the same key for (a, b) and (b, a).
func NewPairKey(a, b sources.ExchangeID) PairKey {
	if b.Rank() < a.Rank() {
		a, b = b, a
	}
	return PairKey(string(a) + ":" + string(b))
}

// PairDivergence is the disagreement between two exchanges. DiffPct uses the
// lower of the two prices as its base.
type PairDivergence struct {
	A       sources.ExchangeID `json:"a"`
	B       sources.ExchangeID `json:"b"`
	PriceA  decimal.Decimal    `json:"price_a"`
	PriceB  decimal.Decimal    `json:"price_b"`
	DiffAbs decimal.Decimal    `json:"diff_abs"`
	DiffPct decimal.Decimal    `json:"diff_pct"`
}

// SpreadSummary is the cross-exchange view of one symbol.
type SpreadSummary struct {
	Symbol    string               `json:"symbol"`
	Quotes    []sources.PriceQuote `json:"quotes"`
	Min       sources.PriceQuote   `json:"min"`
	Max       sources.PriceQuote   `json:"max"`
	SpreadAbs decimal.Decimal      `json:"spread_abs"`
	SpreadPct decimal.Decimal      `json:"spread_pct"`

	// Median of all quotes; Outliers deviate from it by more than OutlierThreshold.
	Median        decimal.Decimal               `json:"median"`
	Outliers      []sources.ExchangeID          `json:"outliers,omitempty"`
	Divergence    map[PairKey]PairDivergence    `json:"divergence"`
	Failures      map[sources.ExchangeID]string `json:"failures,omitempty"`
	MixedCurrency bool                          `json:"mixed_currency"`
	Timestamp     time.Time                     `json:"timestamp"`
}

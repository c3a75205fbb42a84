package aggregator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

const (
	// OutlierThreshold is the fractional deviation from the median at which a
	// quote is flagged as an outlier.
	OutlierThreshold = 0.10 // 10%
)

// medianPrice computes the median of the quote prices.
func medianPrice(quotes []sources.PriceQuote) decimal.Decimal {
	n := len(quotes)
	if n == 0 {
		return decimal.Zero
	}

	prices := make([]decimal.Decimal, n)
	for i, q := range quotes {
		prices[i] = q.Price
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].LessThan(prices[j])
	})

	if n%2 == 1 {
		return prices[n/2]
	}
	return prices[n/2-1].Add(prices[n/2]).Div(decimal.NewFromInt(2))
}

// outliers lists the exchanges whose price deviates from the median by more
// than OutlierThreshold. Quotes are flagged, never dropped.
func outliers(quotes []sources.PriceQuote, median decimal.Decimal) []sources.ExchangeID {
	if len(quotes) < 3 || !median.IsPositive() {
		return nil
	}

	threshold := decimal.NewFromFloat(OutlierThreshold)
	var out []sources.ExchangeID
	for _, q := range quotes {
		deviation := q.Price.Sub(median).Abs().Div(median)
		if deviation.GreaterThan(threshold) {
			out = append(out, q.Source)
		}
	}
	return out
}

package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/StrathCole/pricespread/pkg/metrics"
	"github.com/StrathCole/pricespread/pkg/server/sources"
)

var hundred = decimal.NewFromInt(100)

// GetSpread fetches symbol from every enabled exchange concurrently and
// summarizes the result. One exchange failing never cancels the others; the
// whole fan-out is bounded by the spread timeout.
func (a *Aggregator) GetSpread(ctx context.Context, symbol string) (*SpreadSummary, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation("spread", time.Since(start))
	}()

	symbol = sources.NormalizeSymbol(symbol)
	if !a.catalog.IsSupported(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSymbol, symbol)
	}

	ctx, cancel := context.WithTimeout(ctx, a.spreadTimeout)
	defer cancel()

	outcomes := make([]sources.FetchOutcome, len(a.enabled))

	// Goroutines never return an error so that errgroup does not short-circuit.
	var g errgroup.Group
	for i, id := range a.enabled {
		client := a.clients[id]
		g.Go(func() error {
			quote, err := client.FetchPrice(ctx, symbol)
			outcomes[i] = sources.NewOutcome(id, quote, err)
			return nil
		})
	}
	_ = g.Wait()

	summary, err := Summarize(symbol, outcomes)
	if err != nil {
		a.logger.Debug("Spread unavailable", "symbol", symbol, "error", err)
		a.recordOutcomes(ctx, outcomes)
		return nil, err
	}

	pct, _ := summary.SpreadPct.Float64()
	metrics.RecordSpread(symbol, pct, len(summary.Quotes))
	a.record(ctx, summary.Quotes...)

	a.logger.Debug("Spread computed",
		"symbol", symbol,
		"quotes", len(summary.Quotes),
		"spread_pct", summary.SpreadPct.StringFixed(4))
	return summary, nil
}

func (a *Aggregator) recordOutcomes(ctx context.Context, outcomes []sources.FetchOutcome) {
	for _, o := range outcomes {
		if o.OK() {
			a.record(ctx, *o.Quote)
		}
	}
}

// Summarize folds fetch outcomes into a SpreadSummary. It needs at least two
// successful quotes; otherwise it returns a SourcesError matching
// ErrInsufficientSpreadData.
func Summarize(symbol string, outcomes []sources.FetchOutcome) (*SpreadSummary, error) {
	quotes := make([]sources.PriceQuote, 0, len(outcomes))
	failed := make([]*sources.FetchError, 0)
	failures := make(map[sources.ExchangeID]string)

	for _, o := range outcomes {
		switch {
		case o.OK() && !comparableCurrency(o.Quote.Currency):
			fe := sources.NewFetchError(o.Exchange, sources.KindMalformedResponse, fmt.Errorf("%w: %s", sources.ErrIncomparableCurrency, o.Quote.Currency))
			failed = append(failed, fe)
			failures[o.Exchange] = fe.Error()
		case o.OK() && o.Quote.Price.IsPositive():
			quotes = append(quotes, *o.Quote)
		case o.OK():
			fe := sources.NewFetchError(o.Exchange, sources.KindMalformedResponse, fmt.Errorf("%w: %s", sources.ErrNoUsablePrice, o.Quote.Price))
			failed = append(failed, fe)
			failures[o.Exchange] = fe.Error()
		case o.Err != nil:
			failed = append(failed, o.Err)
			failures[o.Exchange] = o.Err.Error()
		}
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Source.Rank() < quotes[j].Source.Rank()
	})
	sort.SliceStable(failed, func(i, j int) bool {
		return failed[i].Exchange.Rank() < failed[j].Exchange.Rank()
	})

	if len(quotes) < 2 {
		return nil, &SourcesError{Kind: ErrInsufficientSpreadData, Symbol: symbol, Failures: failed}
	}

	minQ, maxQ := quotes[0], quotes[0]
	for _, q := range quotes[1:] {
		if q.Price.LessThan(minQ.Price) {
			minQ = q
		}
		if q.Price.GreaterThan(maxQ.Price) {
			maxQ = q
		}
	}

	spreadAbs := maxQ.Price.Sub(minQ.Price)
	median := medianPrice(quotes)

	summary := &SpreadSummary{
		Symbol:        symbol,
		Quotes:        quotes,
		Min:           minQ,
		Max:           maxQ,
		SpreadAbs:     spreadAbs,
		SpreadPct:     percentOf(spreadAbs, minQ.Price),
		Median:        median,
		Outliers:      outliers(quotes, median),
		Divergence:    divergence(quotes),
		MixedCurrency: sources.MixedCurrencies(quotes),
		Timestamp:     time.Now().UTC(),
	}
	if len(failures) > 0 {
		summary.Failures = failures
	}
	return summary, nil
}

// comparableCurrency accepts USD, its stablecoin aliases and untagged quotes.
func comparableCurrency(currency string) bool {
	return currency == "" || sources.IsEquivalentCurrency(currency, sources.CurrencyUSD)
}

// divergence computes every unordered pair once.
func divergence(quotes []sources.PriceQuote) map[PairKey]PairDivergence {
	out := make(map[PairKey]PairDivergence, len(quotes)*(len(quotes)-1)/2)
	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			a, b := quotes[i], quotes[j]
			if b.Source.Rank() < a.Source.Rank() {
				a, b = b, a
			}
			base := decimal.Min(a.Price, b.Price)
			diff := a.Price.Sub(b.Price).Abs()
			out[NewPairKey(a.Source, b.Source)] = PairDivergence{
				A:       a.Source,
				B:       b.Source,
				PriceA:  a.Price,
				PriceB:  b.Price,
				DiffAbs: diff,
				DiffPct: percentOf(diff, base),
			}
		}
	}
	return out
}

func percentOf(diff, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return diff.Mul(hundred).Div(base)
}

package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/pricespread/pkg/server/sources"
	"github.com/StrathCole/pricespread/pkg/server/transport"
)

func TestSummarize_TwoQuotes(t *testing.T) {
	outcomes := []sources.FetchOutcome{
		sources.NewOutcome(sources.Coinbase, quote(sources.Coinbase, "BTC", 110), nil),
		sources.NewOutcome(sources.Binance, quote(sources.Binance, "BTC", 100), nil),
	}

	s, err := Summarize("BTC", outcomes)
	require.NoError(t, err)

	ten := decimal.NewFromInt(10)
	assert.True(t, s.SpreadAbs.Equal(ten), "spread_abs %s", s.SpreadAbs)
	assert.True(t, s.SpreadPct.Equal(ten), "spread_pct %s", s.SpreadPct)
	assert.True(t, s.Min.Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, sources.Binance, s.Min.Source)
	assert.True(t, s.Max.Price.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, sources.Coinbase, s.Max.Source)

	require.Len(t, s.Quotes, 2)
	assert.Equal(t, sources.Binance, s.Quotes[0].Source, "quotes sorted by exchange")

	require.Len(t, s.Divergence, 1)
	d, ok := s.Divergence[NewPairKey(sources.Coinbase, sources.Binance)]
	require.True(t, ok)
	assert.Equal(t, PairKey("binance:coinbase"), NewPairKey(sources.Coinbase, sources.Binance))
	assert.True(t, d.DiffPct.Equal(ten), "diff_pct %s", d.DiffPct)
	assert.True(t, d.DiffAbs.Equal(ten))
	assert.Equal(t, sources.Binance, d.A)

	assert.True(t, s.MixedCurrency)
	assert.Nil(t, s.Failures)
	assert.True(t, s.Median.Equal(decimal.NewFromInt(105)))
	assert.Empty(t, s.Outliers)
}

func TestSummarize_PairwiseUsesLowerPriceAsBase(t *testing.T) {
	outcomes := []sources.FetchOutcome{
		sources.NewOutcome(sources.Binance, quote(sources.Binance, "ETH", 200), nil),
		sources.NewOutcome(sources.Bybit, quote(sources.Bybit, "ETH", 250), nil),
		sources.NewOutcome(sources.Bitget, quote(sources.Bitget, "ETH", 100), nil),
		sources.NewOutcome(sources.Coinbase, sources.PriceQuote{}, fail(sources.Coinbase, sources.KindTimeout)),
	}

	s, err := Summarize("ETH", outcomes)
	require.NoError(t, err)
	require.Len(t, s.Divergence, 3)

	ab := s.Divergence["binance:bybit"]
	assert.True(t, ab.DiffPct.Equal(decimal.NewFromInt(25)), "got %s", ab.DiffPct)

	bg := s.Divergence["bybit:bitget"]
	assert.True(t, bg.DiffPct.Equal(decimal.NewFromInt(150)), "got %s", bg.DiffPct)

	assert.True(t, s.SpreadPct.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, sources.Bitget, s.Min.Source)
	assert.Equal(t, sources.Bybit, s.Max.Source)

	assert.Contains(t, s.Failures[sources.Coinbase], "timed out")
	assert.ElementsMatch(t, []sources.ExchangeID{sources.Bybit, sources.Bitget}, s.Outliers)
	assert.False(t, s.MixedCurrency)
}

func TestSummarize_TiesGoToFirstExchange(t *testing.T) {
	outcomes := []sources.FetchOutcome{
		sources.NewOutcome(sources.Bitget, quote(sources.Bitget, "ADA", 1), nil),
		sources.NewOutcome(sources.Bybit, quote(sources.Bybit, "ADA", 1), nil),
	}

	s, err := Summarize("ADA", outcomes)
	require.NoError(t, err)
	assert.Equal(t, sources.Bybit, s.Min.Source)
	assert.Equal(t, sources.Bybit, s.Max.Source)
	assert.True(t, s.SpreadAbs.IsZero())
}

func TestSummarize_Insufficient(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []sources.FetchOutcome
	}{
		{name: "none", outcomes: nil},
		{
			name: "one success",
			outcomes: []sources.FetchOutcome{
				sources.NewOutcome(sources.Binance, quote(sources.Binance, "BTC", 100), nil),
				sources.NewOutcome(sources.Bybit, sources.PriceQuote{}, fail(sources.Bybit, sources.KindUnreachable)),
			},
		},
		{
			name: "zero price does not count",
			outcomes: []sources.FetchOutcome{
				sources.NewOutcome(sources.Binance, quote(sources.Binance, "BTC", 100), nil),
				sources.NewOutcome(sources.Bybit, quote(sources.Bybit, "BTC", 0), nil),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Summarize("BTC", tt.outcomes)
			assert.ErrorIs(t, err, ErrInsufficientSpreadData)
		})
	}
}

func TestSummarize_ExcludesNonUSDQuotes(t *testing.T) {
	eur := quote(sources.Bitget, "BTC", 59000)
	eur.Currency = "eur"
	dai := quote(sources.Bybit, "BTC", 101)
	dai.Currency = "DAI"

	outcomes := []sources.FetchOutcome{
		sources.NewOutcome(sources.Binance, quote(sources.Binance, "BTC", 100), nil),
		sources.NewOutcome(sources.Bybit, dai, nil),
		sources.NewOutcome(sources.Bitget, eur, nil),
	}

	s, err := Summarize("BTC", outcomes)
	require.NoError(t, err)
	require.Len(t, s.Quotes, 2)
	assert.Equal(t, sources.Bybit, s.Max.Source)
	assert.True(t, s.SpreadAbs.Equal(decimal.NewFromInt(1)))
	assert.Contains(t, s.Failures[sources.Bitget], "not USD-equivalent")
	assert.True(t, s.MixedCurrency)

	_, err = Summarize("BTC", outcomes[1:])
	require.ErrorIs(t, err, ErrInsufficientSpreadData)
	var se *SourcesError
	require.ErrorAs(t, err, &se)
	require.Len(t, se.Failures, 1)
	assert.Equal(t, sources.KindMalformedResponse, se.Failures[0].Kind)
	assert.ErrorIs(t, se.Failures[0], sources.ErrIncomparableCurrency)
}

func TestGetSpread_OneSuccessIsInsufficient(t *testing.T) {
	byID, clients, _ := newMocks()
	byID[sources.Binance].On("FetchPrice", mock.Anything, "BTC").Return(quote(sources.Binance, "BTC", 100), nil)
	byID[sources.Bybit].On("FetchPrice", mock.Anything, "BTC").Return(sources.PriceQuote{}, fail(sources.Bybit, sources.KindUnreachable))
	byID[sources.Bitget].On("FetchPrice", mock.Anything, "BTC").Return(sources.PriceQuote{}, fail(sources.Bitget, sources.KindMalformedResponse))
	byID[sources.Coinbase].On("FetchPrice", mock.Anything, "BTC").Return(sources.PriceQuote{}, fail(sources.Coinbase, sources.KindTimeout))

	sink := &recordingSink{}
	agg, err := New(sources.DefaultCatalog(), clients, WithSink(sink))
	require.NoError(t, err)

	_, err = agg.GetSpread(context.Background(), "BTC")
	require.ErrorIs(t, err, ErrInsufficientSpreadData)

	var se *SourcesError
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Failures, 3)
	assert.Len(t, sink.quotes, 1, "the lone quote is still recorded")
}

func TestGetSpread_AllExchangesQueried(t *testing.T) {
	byID, clients, log := newMocks()
	for i, id := range sources.AllExchanges() {
		byID[id].On("FetchPrice", mock.Anything, "SOL").Return(quote(id, "SOL", 140+float64(i)), nil)
	}

	agg, err := New(sources.DefaultCatalog(), clients)
	require.NoError(t, err)

	s, err := agg.GetSpread(context.Background(), "sol")
	require.NoError(t, err)
	assert.Len(t, s.Quotes, 4)
	assert.Len(t, s.Divergence, 6)
	assert.ElementsMatch(t, sources.AllExchanges(), log.order())
	assert.Equal(t, "SOL", s.Symbol)
}

func TestGetSpread_SlowExchangeBoundedByTimeout(t *testing.T) {
	byID, clients, _ := newMocks()
	byID[sources.Binance].On("FetchPrice", mock.Anything, "BTC").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(sources.PriceQuote{}, fail(sources.Binance, sources.KindTimeout))
	byID[sources.Bybit].On("FetchPrice", mock.Anything, "BTC").Return(quote(sources.Bybit, "BTC", 100), nil)
	byID[sources.Bitget].On("FetchPrice", mock.Anything, "BTC").Return(quote(sources.Bitget, "BTC", 101), nil)
	byID[sources.Coinbase].On("FetchPrice", mock.Anything, "BTC").Return(quote(sources.Coinbase, "BTC", 102), nil)

	agg, err := New(sources.DefaultCatalog(), clients, WithSpreadTimeout(100*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	s, err := agg.GetSpread(context.Background(), "BTC")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second)
	assert.Len(t, s.Quotes, 3)
	assert.Contains(t, s.Failures, sources.Binance)
}

// TestGetSpread_HangingExchangeOverHTTP drives the real clients: binance never
// answers and is cut off by the per-attempt transport timeout.
func TestGetSpread_HangingExchangeOverHTTP(t *testing.T) {
	hang := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer hang.Close()

	bybit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"retCode":0,"result":{"list":[{"symbol":"ETHUSDT","lastPrice":"3000"}]}}`)
	}))
	defer bybit.Close()

	bitget := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code":"00000","data":[{"symbol":"ETHUSDT","lastPr":"3003"}]}`)
	}))
	defer bitget.Close()

	coinbase := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":{"base":"ETH","currency":"USD","amount":"3001.5"}}`)
	}))
	defer coinbase.Close()

	deps := sources.Deps{
		Catalog: sources.DefaultCatalog(),
		HTTP:    transport.New(transport.Config{Timeout: 150 * time.Millisecond}),
	}
	urls := map[sources.ExchangeID]string{
		sources.Binance:  hang.URL,
		sources.Bybit:    bybit.URL,
		sources.Bitget:   bitget.URL,
		sources.Coinbase: coinbase.URL,
	}
	var clients []sources.Client
	for _, id := range sources.AllExchanges() {
		c, err := sources.Create(id, deps, map[string]interface{}{"api_url": urls[id]})
		require.NoError(t, err)
		clients = append(clients, c)
	}

	agg, err := New(sources.DefaultCatalog(), clients, WithSpreadTimeout(2*time.Second))
	require.NoError(t, err)

	start := time.Now()
	s, err := agg.GetSpread(context.Background(), "ETH")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second)
	require.Len(t, s.Quotes, 3)
	assert.Equal(t, sources.Bybit, s.Quotes[0].Source)
	assert.Equal(t, sources.Bitget, s.Quotes[1].Source)
	assert.Equal(t, sources.Coinbase, s.Quotes[2].Source)
	assert.Contains(t, s.Failures[sources.Binance], "timed out")
	assert.True(t, s.SpreadAbs.Equal(decimal.NewFromInt(3)))
}

func TestGetSpread_CancelledContextReportsTimeouts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	deps := sources.Deps{
		Catalog: sources.DefaultCatalog(),
		HTTP:    transport.New(transport.Config{Timeout: time.Second}),
	}
	var clients []sources.Client
	for _, id := range sources.AllExchanges() {
		c, err := sources.Create(id, deps, map[string]interface{}{"api_url": srv.URL})
		require.NoError(t, err)
		clients = append(clients, c)
	}

	agg, err := New(sources.DefaultCatalog(), clients)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = agg.GetSpread(ctx, "BTC")
	require.ErrorIs(t, err, ErrInsufficientSpreadData)

	var se *SourcesError
	require.ErrorAs(t, err, &se)
	require.Len(t, se.Failures, len(sources.AllExchanges()))
	for _, fe := range se.Failures {
		assert.Equal(t, sources.KindTimeout, fe.Kind, "exchange %s", fe.Exchange)
	}
	assert.Zero(t, hits.Load())
}

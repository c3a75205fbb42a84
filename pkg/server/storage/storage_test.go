package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", len(args)/5)), nil
}

func testQuote(ex sources.ExchangeID, price string) sources.PriceQuote {
	return sources.PriceQuote{
		Symbol:    "BTC",
		Price:     decimal.RequireFromString(price),
		Source:    ex,
		Currency:  sources.CurrencyUSDT,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPostgresWriter_WriteQuotes(t *testing.T) {
	db := &fakeExecer{}
	w := newPostgresWriter(db, nil)

	err := w.WriteQuotes(context.Background(), []sources.PriceQuote{
		testQuote(sources.Binance, "64000.123456789"),
		testQuote(sources.Coinbase, "64010.5"),
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)

	call := db.calls[0]
	assert.Contains(t, call.sql, "INSERT INTO prices (timestamp, symbol, price, source, currency)")
	assert.Contains(t, call.sql, "($1, $2, $3, $4, $5), ($6, $7, $8, $9, $10)")
	require.Len(t, call.args, 10)
	assert.Equal(t, "64000.12345679", call.args[2])
	assert.Equal(t, "binance", call.args[3])
	assert.Equal(t, "64010.50000000", call.args[7])
	assert.Equal(t, "coinbase", call.args[8])
}

func TestPostgresWriter_EmptyBatch(t *testing.T) {
	db := &fakeExecer{}
	w := newPostgresWriter(db, nil)
	require.NoError(t, w.WriteQuotes(context.Background(), nil))
	assert.Empty(t, db.calls)
}

func TestPostgresWriter_Errors(t *testing.T) {
	boom := errors.New("connection reset")
	w := newPostgresWriter(&fakeExecer{err: boom}, nil)

	err := w.WriteQuotes(context.Background(), []sources.PriceQuote{testQuote(sources.Bybit, "1")})
	assert.ErrorIs(t, err, boom)

	err = w.EnsureSchema(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestPostgresWriter_EnsureSchema(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, newPostgresWriter(db, nil).EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS prices")
	assert.Contains(t, db.calls[0].sql, "NUMERIC(20, 8)")
}

func TestOpenPostgres_RequiresDSN(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoDSN)
}

type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	batches [][]sources.PriceQuote
}

func (b *blockingWriter) WriteQuotes(_ context.Context, quotes []sources.PriceQuote) error {
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, quotes)
	return nil
}

func TestAsyncSink_DrainsOnClose(t *testing.T) {
	w := &blockingWriter{}
	s := NewAsyncSink(w, 8, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordQuotes(context.Background(), []sources.PriceQuote{testQuote(sources.Binance, "1")}))
	}
	require.NoError(t, s.Close())
	assert.Len(t, w.batches, 3)

	err := s.RecordQuotes(context.Background(), []sources.PriceQuote{testQuote(sources.Binance, "1")})
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.NoError(t, s.Close())
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	s := NewAsyncSink(w, 1, nil)

	q := []sources.PriceQuote{testQuote(sources.Bitget, "2")}
	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordQuotes(context.Background(), q))
	}

	close(w.release)
	require.NoError(t, s.Close())

	// At most one batch in flight plus one queued.
	assert.LessOrEqual(t, len(w.batches), 2)
	assert.GreaterOrEqual(t, len(w.batches), 1)
}

func TestAsyncSink_CopiesBatch(t *testing.T) {
	w := &blockingWriter{}
	s := NewAsyncSink(w, 4, nil)

	q := []sources.PriceQuote{testQuote(sources.Binance, "1")}
	require.NoError(t, s.RecordQuotes(context.Background(), q))
	q[0].Symbol = "ETH"
	require.NoError(t, s.Close())

	require.Len(t, w.batches, 1)
	assert.Equal(t, "BTC", w.batches[0][0].Symbol)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.RecordQuotes(context.Background(), nil))
}

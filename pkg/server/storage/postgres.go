// Package storage persists quote history for later analysis.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StrathCole/pricespread/pkg/logging"
	"github.com/StrathCole/pricespread/pkg/server/sources"
)

// ErrNoDSN is returned when the sink is enabled without a connection string.
var ErrNoDSN = errors.New("storage: dsn is required")

const schema = `
CREATE TABLE IF NOT EXISTS prices (
	id        BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
	symbol    VARCHAR(16) NOT NULL,
	price     NUMERIC(20, 8) NOT NULL,
	source    VARCHAR(32) NOT NULL,
	currency  VARCHAR(8) NOT NULL
);
CREATE INDEX IF NOT EXISTS prices_symbol_timestamp_idx ON prices (symbol, timestamp DESC);
`

// execer is the subset of *pgxpool.Pool used for writes.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresWriter inserts quotes into the prices table.
type PostgresWriter struct {
	db     execer
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// OpenPostgres connects to the database and makes sure the schema exists.
func OpenPostgres(ctx context.Context, dsn string, logger *logging.Logger) (*PostgresWriter, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	w := newPostgresWriter(pool, logger)
	w.pool = pool
	if err := w.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

func newPostgresWriter(db execer, logger *logging.Logger) *PostgresWriter {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &PostgresWriter{db: db, logger: logger}
}

// EnsureSchema creates the prices table if it does not exist.
func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("storage: create schema: %w", err)
	}
	return nil
}

// WriteQuotes inserts all quotes in a single statement.
func (w *PostgresWriter) WriteQuotes(ctx context.Context, quotes []sources.PriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	query, args := insertQuotes(quotes)
	tag, err := w.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("storage: insert %d quotes: %w", len(quotes), err)
	}
	w.logger.Debug("Stored quotes", "rows", tag.RowsAffected(), "symbol", quotes[0].Symbol)
	return nil
}

// Close releases the connection pool.
func (w *PostgresWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}

func insertQuotes(quotes []sources.PriceQuote) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO prices (timestamp, symbol, price, source, currency) VALUES ")

	args := make([]any, 0, len(quotes)*5)
	for i, q := range quotes {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 5
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, q.Timestamp, q.Symbol, q.Price.StringFixed(8), string(q.Source), q.Currency)
	}
	return b.String(), args
}

package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/StrathCole/pricespread/pkg/logging"
	"github.com/StrathCole/pricespread/pkg/metrics"
	"github.com/StrathCole/pricespread/pkg/server/aggregator"
	"github.com/StrathCole/pricespread/pkg/server/sources"
)

const (
	// DefaultQueueSize is the number of pending batches the async sink buffers.
	DefaultQueueSize = 256

	writeTimeout = 5 * time.Second
)

// ErrSinkClosed is returned when quotes are recorded after Close.
var ErrSinkClosed = errors.New("storage: sink closed")

// Writer persists a batch of quotes.
type Writer interface {
	WriteQuotes(ctx context.Context, quotes []sources.PriceQuote) error
}

var (
	_ aggregator.Sink = (*AsyncSink)(nil)
	_ aggregator.Sink = Nop{}
	_ Writer          = (*PostgresWriter)(nil)
)

// AsyncSink queues quote batches and writes them from a single goroutine so
// request paths never wait on the database. Batches are dropped when the
// queue is full.
type AsyncSink struct {
	writer Writer
	logger *logging.Logger
	queue  chan []sources.PriceQuote
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsyncSink starts the writer goroutine.
func NewAsyncSink(w Writer, queueSize int, logger *logging.Logger) *AsyncSink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	s := &AsyncSink{
		writer: w,
		logger: logger,
		queue:  make(chan []sources.PriceQuote, queueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// RecordQuotes enqueues a copy of quotes without blocking.
func (s *AsyncSink) RecordQuotes(_ context.Context, quotes []sources.PriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	batch := make([]sources.PriceQuote, len(quotes))
	copy(batch, quotes)

	select {
	case s.queue <- batch:
		return nil
	default:
		metrics.RecordSinkWrite("dropped", len(batch))
		s.logger.Warn("History queue full, dropping quotes", "symbol", batch[0].Symbol, "rows", len(batch))
		return nil
	}
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for batch := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.writer.WriteQuotes(ctx, batch)
		cancel()

		if err != nil {
			metrics.RecordSinkWrite("error", len(batch))
			s.logger.Error("Failed to write quotes", "symbol", batch[0].Symbol, "rows", len(batch), "error", err)
			continue
		}
		metrics.RecordSinkWrite("ok", len(batch))
	}
}

// Close stops accepting quotes and waits for queued batches to be written.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Nop discards quotes.
type Nop struct{}

// RecordQuotes does nothing.
func (Nop) RecordQuotes(context.Context, []sources.PriceQuote) error { return nil }

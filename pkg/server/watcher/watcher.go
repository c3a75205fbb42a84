// Package watcher refreshes spread summaries for a fixed set of symbols and
// hands them to subscribers such as the WebSocket stream.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/StrathCole/pricespread/pkg/logging"
	"github.com/StrathCole/pricespread/pkg/server/aggregator"
	"github.com/StrathCole/pricespread/pkg/server/sources"
)

// DefaultInterval is used when no refresh interval is configured.
const DefaultInterval = 30 * time.Second

var (
	// ErrNoSymbols indicates the watcher was configured without symbols.
	ErrNoSymbols = errors.New("watcher: no symbols")
	// ErrAlreadyRunning indicates Start was called twice.
	ErrAlreadyRunning = errors.New("watcher: already running")
)

// Publisher receives every fresh summary.
type Publisher interface {
	SendUpdate(summary *aggregator.SpreadSummary)
}

// Watcher periodically calls GetSpread for each symbol.
type Watcher struct {
	svc        aggregator.Service
	symbols    []string
	interval   time.Duration
	publishers []Publisher
	logger     *logging.Logger

	mu     sync.RWMutex
	latest map[string]*aggregator.SpreadSummary

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

// New validates symbols against the service catalog.
func New(svc aggregator.Service, symbols []string, interval time.Duration, logger *logging.Logger, publishers ...Publisher) (*Watcher, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym := sources.NormalizeSymbol(s)
		if !svc.Catalog().IsSupported(sym) {
			return nil, fmt.Errorf("%w: %s", aggregator.ErrUnsupportedSymbol, sym)
		}
		normalized = append(normalized, sym)
	}

	return &Watcher{
		svc:        svc,
		symbols:    normalized,
		interval:   interval,
		publishers: publishers,
		logger:     logger.With("component", "watcher"),
		latest:     make(map[string]*aggregator.SpreadSummary),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start refreshes once and then keeps refreshing in the background until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Info("Starting spread watcher", "symbols", w.symbols, "interval", w.interval.String())
	w.Refresh(ctx)

	go w.pollLoop(ctx)
	return nil
}

// Stop ends the poll loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })

	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if started {
		<-w.done
	}
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

// Refresh fetches a spread for every symbol. Failures are logged and keep the
// previous summary.
func (w *Watcher) Refresh(ctx context.Context) {
	for _, sym := range w.symbols {
		if ctx.Err() != nil {
			return
		}

		summary, err := w.svc.GetSpread(ctx, sym)
		if err != nil {
			w.logger.Warn("Spread refresh failed", "symbol", sym, "error", err)
			continue
		}

		w.mu.Lock()
		w.latest[sym] = summary
		w.mu.Unlock()

		for _, p := range w.publishers {
			p.SendUpdate(summary)
		}
	}
}

// Latest returns the last successful summary for symbol.
func (w *Watcher) Latest(symbol string) (*aggregator.SpreadSummary, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.latest[sources.NormalizeSymbol(symbol)]
	return s, ok
}

// Symbols returns the watched symbols.
func (w *Watcher) Symbols() []string {
	out := make([]string, len(w.symbols))
	copy(out, w.symbols)
	return out
}

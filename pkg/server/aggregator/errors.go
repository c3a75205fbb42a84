// Package aggregator combines exchange clients into single-price and
// cross-exchange spread queries.
package aggregator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

var (
	// ErrUnsupportedSymbol indicates the symbol is not in the catalog.
	ErrUnsupportedSymbol = errors.New("unsupported symbol")
	// ErrUnsupportedOnExchange indicates the pinned exchange does not list the symbol.
	ErrUnsupportedOnExchange = errors.New("symbol not supported on exchange")
	// ErrUnknownSource indicates the requested source is not a known exchange.
	ErrUnknownSource = errors.New("unknown source")
	// ErrSourceDisabled indicates the requested exchange is known but not enabled.
	ErrSourceDisabled = errors.New("source not enabled")
	// ErrAllSourcesFailed indicates every exchange failed in auto mode.
	ErrAllSourcesFailed = errors.New("all sources failed")
	// ErrInsufficientSpreadData indicates fewer than two exchanges returned a quote.
	ErrInsufficientSpreadData = errors.New("insufficient data for spread")
	// ErrNoClients indicates the aggregator was built without exchange clients.
	ErrNoClients = errors.New("no exchange clients configured")
	// ErrNoCatalog indicates the aggregator was built without a symbol catalog.
	ErrNoCatalog = errors.New("no symbol catalog")
	// ErrDuplicateClient indicates two clients share an exchange ID.
	ErrDuplicateClient = errors.New("duplicate exchange client")
)

// SourcesError carries the per-exchange failures behind an aggregate error.
// errors.Is matches Kind (ErrAllSourcesFailed or ErrInsufficientSpreadData).
type SourcesError struct {
	Kind     error
	Symbol   string
	Failures []*sources.FetchError
}

func (e *SourcesError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s for %s", e.Kind, e.Symbol)
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%s for %s: %s", e.Kind, e.Symbol, strings.Join(msgs, "; "))
}

func (e *SourcesError) Unwrap() error {
	return e.Kind
}

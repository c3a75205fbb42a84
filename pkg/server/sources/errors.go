// Package sources provides the exchange client contract, the symbol catalog
// and the shared plumbing used by every exchange implementation.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/StrathCole/pricespread/pkg/server/transport"
)

var (
	// ErrNotSupported indicates the symbol is not listed on the exchange.
	ErrNotSupported = errors.New("symbol not supported on exchange")
	// ErrTimeout indicates the exchange did not answer before the deadline.
	ErrTimeout = errors.New("exchange request timed out")
	// ErrUnreachable indicates a connection, DNS, TLS or server-side failure.
	ErrUnreachable = errors.New("exchange unreachable")
	// ErrMalformedResponse indicates a response without a usable price.
	ErrMalformedResponse = errors.New("malformed exchange response")

	// ErrNoUsablePrice indicates no extraction strategy matched the ticker.
	ErrNoUsablePrice = errors.New("no usable price in response")
	// ErrIncomparableCurrency indicates a quote in a unit that is not USD or a USD stablecoin.
	ErrIncomparableCurrency = errors.New("quote currency is not USD-equivalent")
	// ErrTickerNotFound indicates a listing response did not contain the instrument.
	ErrTickerNotFound = errors.New("ticker not found in response")
	// ErrExchangeAPI indicates the exchange reported an error in its envelope.
	ErrExchangeAPI = errors.New("exchange API error")
	// ErrInvalidConfig indicates that the client configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUnknownExchange indicates no factory is registered for the exchange.
	ErrUnknownExchange = errors.New("unknown exchange")
)

// ErrorKind is the failure class of a fetch.
type ErrorKind int

const (
	KindNotSupported ErrorKind = iota + 1
	KindTimeout
	KindUnreachable
	KindMalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotSupported:
		return "NotSupported"
	case KindTimeout:
		return "Timeout"
	case KindUnreachable:
		return "Unreachable"
	case KindMalformedResponse:
		return "MalformedResponse"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Label is the metrics label for the kind.
func (k ErrorKind) Label() string {
	switch k {
	case KindNotSupported:
		return "not_supported"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindMalformedResponse:
		return "malformed"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotSupported:
		return ErrNotSupported
	case KindTimeout:
		return ErrTimeout
	case KindUnreachable:
		return ErrUnreachable
	default:
		return ErrMalformedResponse
	}
}

// FetchError is the typed failure returned by every Client.
// errors.Is matches both the kind sentinel and the underlying cause.
type FetchError struct {
	Exchange ExchangeID
	Kind     ErrorKind
	Err      error
}

// NewFetchError builds a FetchError.
func NewFetchError(exchange ExchangeID, kind ErrorKind, err error) *FetchError {
	return &FetchError{Exchange: exchange, Kind: kind, Err: err}
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Exchange, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %s: %v", e.Exchange, e.Kind.sentinel(), e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// AsFetchError returns err as a *FetchError, classifying it if necessary.
func AsFetchError(exchange ExchangeID, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return NewFetchError(exchange, Classify(err), err)
}

// Classify maps a raw error onto the fetch failure taxonomy.
func Classify(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}

	switch {
	case errors.Is(err, ErrNotSupported):
		return KindNotSupported
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 || statusErr.StatusCode == 429 {
			return KindUnreachable
		}
		return KindMalformedResponse
	}

	switch {
	case errors.Is(err, ErrMalformedResponse),
		errors.Is(err, transport.ErrDecode),
		errors.Is(err, ErrNoUsablePrice),
		errors.Is(err, ErrTickerNotFound),
		errors.Is(err, ErrExchangeAPI):
		return KindMalformedResponse
	}

	return KindUnreachable
}

// continuesChain reports whether a failed endpoint should fall through to the
// next one. Only a response that arrived but was unusable does.
func continuesChain(err error) bool {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return true
	}
	return Classify(err) == KindMalformedResponse
}

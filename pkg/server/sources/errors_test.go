package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/StrathCole/pricespread/pkg/server/transport"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), KindTimeout},
		{"net timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, KindTimeout},
		{"dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindUnreachable},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.example"}, KindUnreachable},
		{"server error", &transport.StatusError{StatusCode: 503}, KindUnreachable},
		{"rate limited", &transport.StatusError{StatusCode: 429}, KindUnreachable},
		{"bad request", &transport.StatusError{StatusCode: 400}, KindMalformedResponse},
		{"decode", fmt.Errorf("%w: eof", transport.ErrDecode), KindMalformedResponse},
		{"no price", ErrNoUsablePrice, KindMalformedResponse},
		{"api envelope", fmt.Errorf("%w: retCode 10001", ErrExchangeAPI), KindMalformedResponse},
		{"not supported", ErrNotSupported, KindNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFetchError_Is(t *testing.T) {
	cause := &transport.StatusError{StatusCode: 502}
	fe := NewFetchError(Bybit, KindUnreachable, cause)

	assert.ErrorIs(t, fe, ErrUnreachable)
	assert.NotErrorIs(t, fe, ErrTimeout)

	var statusErr *transport.StatusError
	assert.ErrorAs(t, fe, &statusErr)
	assert.Equal(t, 502, statusErr.StatusCode)

	assert.Contains(t, fe.Error(), "bybit")
	assert.Contains(t, fe.Error(), "exchange unreachable")
}

func TestAsFetchError(t *testing.T) {
	assert.Nil(t, AsFetchError(Binance, nil))

	fe := AsFetchError(Binance, context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.Equal(t, Binance, fe.Exchange)

	wrapped := fmt.Errorf("outer: %w", NewFetchError(Bitget, KindMalformedResponse, nil))
	fe = AsFetchError(Binance, wrapped)
	assert.Equal(t, Bitget, fe.Exchange, "existing FetchError is preserved")
}

func TestNewOutcome(t *testing.T) {
	ok := NewOutcome(Coinbase, PriceQuote{Symbol: "BTC"}, nil)
	assert.True(t, ok.OK())
	assert.Nil(t, ok.Err)

	failed := NewOutcome(Coinbase, PriceQuote{}, context.Canceled)
	assert.False(t, failed.OK())
	assert.Equal(t, KindTimeout, failed.Err.Kind)
}

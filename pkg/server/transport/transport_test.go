package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/StrathCole/pricespread/pkg/server/transport/mocks"
)

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestGetJSON_SetsHeadersAndDecodes(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)

	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "pricespread/test", req.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", req.Header.Get("Accept"))
		assert.Equal(t, "yes", req.Header.Get("X-Test"))
		_, hasDeadline := req.Context().Deadline()
		assert.True(t, hasDeadline, "every attempt is bounded")
		return response(http.StatusOK, `{"price":"1.50"}`), nil
	})

	c := New(Config{UserAgent: "pricespread/test"}, WithDoer(doer), WithHeader("X-Test", "yes"))

	var out struct {
		Price string `json:"price"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "https://api.example.com/x", &out))
	assert.Equal(t, "1.50", out.Price)
}

func TestGetJSON_StatusError(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Return(response(http.StatusTooManyRequests, `{"msg":"slow down"}`), nil)

	c := New(Config{}, WithDoer(doer))
	var out interface{}
	err := c.GetJSON(context.Background(), "https://api.example.com/x", &out)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Contains(t, statusErr.Error(), "slow down")
}

func TestGetJSON_DecodeError(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Return(response(http.StatusOK, `<html>`), nil)

	c := New(Config{}, WithDoer(doer))
	var out interface{}
	err := c.GetJSON(context.Background(), "https://api.example.com/x", &out)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestGetJSON_TransportErrorPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockDoer(ctrl)
	boom := errors.New("connection refused")
	doer.EXPECT().Do(gomock.Any()).Return(nil, boom)

	c := New(Config{}, WithDoer(doer))
	var out interface{}
	assert.ErrorIs(t, c.GetJSON(context.Background(), "https://api.example.com/x", &out), boom)
}

func TestGetJSON_UntypedNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"amount":64000.123456789012}`)
	}))
	defer srv.Close()

	c := New(Config{Timeout: time.Second})
	defer c.CloseIdleConnections()

	var out map[string]interface{}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "64000.123456789012", out["amount"].(interface{ String() string }).String())
}

func TestGetJSON_PerAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(Config{Timeout: 50 * time.Millisecond})
	assert.Equal(t, 50*time.Millisecond, c.Timeout())

	start := time.Now()
	var out interface{}
	err := c.GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultTimeout, c.Timeout())
	assert.False(t, c.transport.TLSClientConfig.InsecureSkipVerify)
}

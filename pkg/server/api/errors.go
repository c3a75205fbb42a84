package api

import (
	"errors"
	"net/http"

	"github.com/StrathCole/pricespread/pkg/server/aggregator"
	"github.com/StrathCole/pricespread/pkg/server/sources"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeUnsupportedSymbol       = "UnsupportedSymbol"
	CodeUnsupportedOnExchange   = "UnsupportedOnExchange"
	CodeUnknownSource           = "UnknownSource"
	CodeSourceDisabled          = "SourceDisabled"
	CodeSourceTimeout           = "SourceTimeout"
	CodeSourceUnreachable       = "SourceUnreachable"
	CodeSourceMalformedResponse = "SourceMalformedResponse"
	CodeAllSourcesFailed        = "AllSourcesFailed"
	CodeInsufficientSpreadData  = "InsufficientSpreadData"
	CodeInternal                = "InternalError"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: aggregate errors are checked before the per-exchange kinds
// they may carry.
var errorMappings = []errorMapping{
	{aggregator.ErrUnsupportedSymbol, http.StatusBadRequest, CodeUnsupportedSymbol},
	{aggregator.ErrUnsupportedOnExchange, http.StatusBadRequest, CodeUnsupportedOnExchange},
	{aggregator.ErrUnknownSource, http.StatusBadRequest, CodeUnknownSource},
	{aggregator.ErrSourceDisabled, http.StatusServiceUnavailable, CodeSourceDisabled},
	{aggregator.ErrInsufficientSpreadData, http.StatusServiceUnavailable, CodeInsufficientSpreadData},
	{aggregator.ErrAllSourcesFailed, http.StatusBadGateway, CodeAllSourcesFailed},
	{sources.ErrNotSupported, http.StatusBadRequest, CodeUnsupportedOnExchange},
	{sources.ErrTimeout, http.StatusBadGateway, CodeSourceTimeout},
	{sources.ErrUnreachable, http.StatusBadGateway, CodeSourceUnreachable},
	{sources.ErrMalformedResponse, http.StatusBadGateway, CodeSourceMalformedResponse},
}

// errorStatus maps a service error to its HTTP status and code.
func errorStatus(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

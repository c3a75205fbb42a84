// Package cex implements exchange clients for centralized exchanges.
package cex

import (
	"encoding/json"
	"fmt"

	"github.com/StrathCole/pricespread/pkg/server/sources"
)

// checkEnvelope returns ErrExchangeAPI when body[codeKey] is present and
// differs from okCode. Bybit uses a numeric retCode, Bitget a string code.
func checkEnvelope(body interface{}, codeKey, okCode, msgKey string) error {
	m, ok := body.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, present := m[codeKey]
	if !present || raw == nil {
		return nil
	}

	var code string
	switch v := raw.(type) {
	case string:
		code = v
	case json.Number:
		code = v.String()
	default:
		code = fmt.Sprint(v)
	}
	if code == okCode {
		return nil
	}

	msg, _ := m[msgKey].(string)
	return fmt.Errorf("%w: %s=%s %s", sources.ErrExchangeAPI, codeKey, code, msg)
}

// withEnvelope runs checkEnvelope before locating the ticker.
func withEnvelope(codeKey, okCode, msgKey string, locate sources.Locator) sources.Locator {
	return func(body interface{}) (sources.Ticker, error) {
		if err := checkEnvelope(body, codeKey, okCode, msgKey); err != nil {
			return nil, err
		}
		return locate(body)
	}
}

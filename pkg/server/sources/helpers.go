package sources

import (
	"fmt"
	"strings"
)

// ParsePairsFromMap extracts per-exchange pair overrides from a client config.
// Expected format: pairs: { "BTC": "BTCUSDT", "BNB": "" }. An empty value
// marks the symbol unsupported on that exchange. A missing key is not an error.
func ParsePairsFromMap(config map[string]interface{}) (map[string]string, error) {
	pairsRaw, ok := config["pairs"]
	if !ok || pairsRaw == nil {
		return nil, nil
	}

	pairsMap, ok := pairsRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: pairs must be map[string]string", ErrInvalidConfig)
	}

	pairs := make(map[string]string, len(pairsMap))
	for symbol, instRaw := range pairsMap {
		var inst string
		switch v := instRaw.(type) {
		case string:
			inst = v
		case nil:
		default:
			return nil, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, symbol, instRaw)
		}
		if err := ValidateSymbol(NormalizeSymbol(symbol)); err != nil {
			return nil, fmt.Errorf("pair symbol: %w", err)
		}
		pairs[NormalizeSymbol(symbol)] = inst
	}
	return pairs, nil
}

// StringFromConfig returns config[key] when it is a non-empty string.
func StringFromConfig(config map[string]interface{}, key, def string) string {
	if v, ok := config[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// ValidateSymbol checks that a canonical symbol is a bare uppercase ticker.
// Valid: "BTC", "1INCH". Invalid: "", "BTC/USD", "btc".
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidConfig)
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("%w: symbol %q must be uppercase alphanumeric", ErrInvalidConfig, symbol)
		}
	}
	return nil
}

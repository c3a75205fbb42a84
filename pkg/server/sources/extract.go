package sources

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Ticker is one decoded ticker object from an exchange response.
type Ticker map[string]interface{}

// Strategy extracts a price from a ticker. It reports false when the ticker
// carries no usable value for it.
type Strategy func(Ticker) (decimal.Decimal, bool)

// Field returns the first positive value among the named fields.
func Field(names ...string) Strategy {
	return func(t Ticker) (decimal.Decimal, bool) {
		for _, name := range names {
			if v, ok := ParsePrice(t[name]); ok {
				return v, true
			}
		}
		return decimal.Zero, false
	}
}

// Midpoint returns the mean of a best bid and best ask field pair.
func Midpoint(bid, ask string) Strategy {
	return func(t Ticker) (decimal.Decimal, bool) {
		b, ok := ParsePrice(t[bid])
		if !ok {
			return decimal.Zero, false
		}
		a, ok := ParsePrice(t[ask])
		if !ok {
			return decimal.Zero, false
		}
		return b.Add(a).Div(decimal.NewFromInt(2)), true
	}
}

// Extract applies strategies in order and returns the first match.
func Extract(t Ticker, strategies ...Strategy) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	for _, s := range strategies {
		if v, ok := s(t); ok {
			return v, true
		}
	}
	return decimal.Zero, false
}

// ParsePrice converts a JSON value into a strictly positive decimal.
func ParsePrice(v interface{}) (decimal.Decimal, bool) {
	var (
		d   decimal.Decimal
		err error
	)
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return decimal.Zero, false
		}
		d, err = decimal.NewFromString(s)
	case json.Number:
		d, err = decimal.NewFromString(x.String())
	case float64:
		d = decimal.NewFromFloat(x)
	default:
		return decimal.Zero, false
	}
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// Lookup walks nested objects along path.
func Lookup(raw interface{}, path ...string) (interface{}, bool) {
	cur := raw
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Tickers normalizes a single object or a list of objects into tickers.
func Tickers(v interface{}) []Ticker {
	switch x := v.(type) {
	case map[string]interface{}:
		return []Ticker{x}
	case []interface{}:
		out := make([]Ticker, 0, len(x))
		for _, item := range x {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// FindTicker returns the first ticker accepted by match.
func FindTicker(tickers []Ticker, match func(Ticker) bool) (Ticker, bool) {
	for _, t := range tickers {
		if match(t) {
			return t, true
		}
	}
	return nil, false
}

// MatchSymbol matches tickers whose identifier fields equal one of ids,
// ignoring case.
func MatchSymbol(fields []string, ids ...string) func(Ticker) bool {
	return func(t Ticker) bool {
		for _, f := range fields {
			s, ok := t[f].(string)
			if !ok {
				continue
			}
			for _, id := range ids {
				if strings.EqualFold(s, id) {
					return true
				}
			}
		}
		return false
	}
}

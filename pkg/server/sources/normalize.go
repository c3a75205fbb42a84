package sources

import (
	"strings"
)

// Stablecoin aliases - all considered equivalent to USD
var stablecoinAliases = map[string]string{
	"USDT": CurrencyUSD,
	"USDC": CurrencyUSD,
	"BUSD": CurrencyUSD,
	"DAI":  CurrencyUSD,
	"TUSD": CurrencyUSD,
	"USDP": CurrencyUSD,
}

// NormalizeSymbol converts user input to a canonical symbol.
// Examples:
//   - " btc " -> BTC
//   - Eth -> ETH
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeCurrency maps stablecoins onto USD so quotes in USD and USDT
// compare as the same unit.
func NormalizeCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if normalized, ok := stablecoinAliases[c]; ok {
		return normalized
	}
	return c
}

// IsEquivalentCurrency checks if two quote currencies are equivalent after normalization
func IsEquivalentCurrency(a, b string) bool {
	return NormalizeCurrency(a) == NormalizeCurrency(b)
}

// MixedCurrencies reports whether the quotes carry more than one raw currency tag.
func MixedCurrencies(quotes []PriceQuote) bool {
	for i := 1; i < len(quotes); i++ {
		if !strings.EqualFold(quotes[i].Currency, quotes[0].Currency) {
			return true
		}
	}
	return false
}

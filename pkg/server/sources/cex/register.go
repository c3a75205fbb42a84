package cex

import (
	"github.com/StrathCole/pricespread/pkg/server/sources"
)

func init() {
	// Register all exchange clients
	sources.Register(sources.Binance, NewBinanceClient)
	sources.Register(sources.Bybit, NewBybitClient)
	sources.Register(sources.Bitget, NewBitgetClient)
	sources.Register(sources.Coinbase, NewCoinbaseClient)
}

package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the per-coin market state fed to AI prompts and used for
// simulated fills. Prices are quoted in USDT.
type Snapshot struct {
	Coin         string          `json:"coin"`
	Price        decimal.Decimal `json:"price"`
	Change24hPct decimal.Decimal `json:"change_24h_pct"`
	High24h      decimal.Decimal `json:"high_24h"`
	Low24h       decimal.Decimal `json:"low_24h"`
	Volume24h    decimal.Decimal `json:"volume_24h"`
	SMA20        decimal.Decimal `json:"sma_20"`
	RSI14        decimal.Decimal `json:"rsi_14"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// Basket is a full market snapshot across the configured coins
type Basket struct {
	Snapshots map[string]*Snapshot `json:"snapshots"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// Kline is one hourly candle used for indicator computation
type Kline struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

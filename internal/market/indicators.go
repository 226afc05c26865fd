package market

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// SMA computes the simple moving average of the last period closes. Returns
// zero when fewer candles than the period are available.
func SMA(klines []Kline, period int) decimal.Decimal {
	if len(klines) < period || period <= 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, k := range klines[len(klines)-period:] {
		sum = sum.Add(k.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// RSI computes the relative strength index over the last period closes using
// simple averages of gains and losses. Returns 50 when not enough data is
// available, 100 when there are no losses in the window.
func RSI(klines []Kline, period int) decimal.Decimal {
	if len(klines) < period+1 || period <= 0 {
		return decimal.NewFromInt(50)
	}

	gains := decimal.Zero
	losses := decimal.Zero
	window := klines[len(klines)-period-1:]
	for i := 1; i < len(window); i++ {
		delta := window[i].Close.Sub(window[i-1].Close)
		if delta.IsPositive() {
			gains = gains.Add(delta)
		} else {
			losses = losses.Sub(delta)
		}
	}

	if losses.IsZero() {
		return hundred
	}
	rs := gains.Div(losses)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

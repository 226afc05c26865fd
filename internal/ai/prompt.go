package ai

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a disciplined cryptocurrency trading assistant managing a spot portfolio quoted in USDT.

You receive the current market state for a fixed basket of coins, the portfolio state, and recent trade history. For each coin, decide one of:
- "buy_to_enter": open or add to a long position
- "sell_to_enter": open or add to a short position
- "close_position": close the existing position for the coin
- "hold": do nothing

Respond with ONLY a JSON object mapping coin symbol to decision, no prose:
{
  "BTC": {
    "signal": "buy_to_enter",
    "quantity": "0.02",
    "leverage": 1,
    "entry_price": "40000",
    "stop_loss": "38000",
    "take_profit": "44000",
    "confidence": 0.7,
    "justification": "one sentence"
  },
  "ETH": {"signal": "hold", "confidence": 0.5, "justification": "..."}
}

Rules:
- quantity and prices are decimal strings in the coin's units
- confidence is a number in [0, 1]
- never propose a close_position for a coin without an open position
- prefer hold when uncertain`

func buildUserPrompt(req *Request) string {
	var b strings.Builder

	b.WriteString("## Market\n")
	for _, coin := range req.Coins {
		snapshot, ok := req.Basket.Snapshots[coin]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: price=%s change24h=%s%% high=%s low=%s sma20=%s rsi14=%s\n",
			coin, snapshot.Price, snapshot.Change24hPct, snapshot.High24h,
			snapshot.Low24h, snapshot.SMA20, snapshot.RSI14)
	}

	p := req.Portfolio
	b.WriteString("\n## Portfolio\n")
	fmt.Fprintf(&b, "cash: %s USDT\ntotal value: %s USDT\n", p.Cash, p.TotalValue)

	if len(p.Positions) == 0 {
		b.WriteString("open positions: none\n")
	} else {
		b.WriteString("open positions:\n")
		for _, pos := range p.Positions {
			fmt.Fprintf(&b, "- %s %s qty=%s entry=%s current=%s\n",
				pos.Coin, pos.Side, pos.Quantity, pos.AvgEntryPrice, pos.CurrentPrice)
		}
	}

	if len(p.RecentTrades) > 0 {
		b.WriteString("\n## Recent trades (newest first)\n")
		for _, t := range p.RecentTrades {
			fmt.Fprintf(&b, "- %s %s %s qty=%s price=%s pnl=%s\n",
				t.Timestamp.Format("2006-01-02 15:04"), t.Coin, t.Side,
				t.Quantity, t.Price, t.RealizedPnL)
		}
	}

	b.WriteString("\nDecide for: " + strings.Join(req.Coins, ", "))
	return b.String()
}

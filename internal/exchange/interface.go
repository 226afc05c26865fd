package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order sides accepted by the order methods
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// OrderRequest describes an order to place. Price and TimeInForce apply to
// limit orders only.
type OrderRequest struct {
	Coin        string // Bare coin symbol; the client appends the USDT quote
	Side        string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	TimeInForce string // GTC when empty
}

// OrderResult is the exchange's confirmation. A resting limit order carries
// status NEW with a zero executed quantity.
type OrderResult struct {
	OrderID      string
	Coin         string
	Side         string
	Status       string
	ExecutedQty  decimal.Decimal
	AvgFillPrice decimal.Decimal
	Commission   decimal.Decimal
	TransactTime time.Time
}

// Balance is one asset's account balance split into spendable and
// order-reserved amounts
type Balance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// SymbolFilters holds the exchange trading rules for one symbol
type SymbolFilters struct {
	Coin        string
	StepSize    decimal.Decimal // LOT_SIZE quantity increment
	MinQty      decimal.Decimal // LOT_SIZE minimum quantity
	MinNotional decimal.Decimal // NOTIONAL minimum order value in quote units
}

// ExchangeClient is the order execution surface for live trading. All
// implementations must quantize quantities against symbol filters before
// submitting.
type ExchangeClient interface {
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	PlaceLimitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	CancelOrder(ctx context.Context, coin, orderID string) error
	CancelAllOrders(ctx context.Context, coin string) error
	GetBalance(ctx context.Context, asset string) (*Balance, error)
	GetTickerPrice(ctx context.Context, coin string) (decimal.Decimal, error)
	GetSymbolFilters(ctx context.Context, coin string) (*SymbolFilters, error)
	Ping(ctx context.Context) error
}

var _ ExchangeClient = (*Client)(nil)
var _ ExchangeClient = (*MockClient)(nil)

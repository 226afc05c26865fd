package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceFunc supplies the current price for a coin
type PriceFunc func(ctx context.Context, coin string) (decimal.Decimal, error)

// MockClient simulates an exchange for development and tests. Market orders
// fill instantly at the supplied price with no slippage; limit orders rest on
// a simulated book until cancelled, locking quote funds for buys.
type MockClient struct {
	priceFn PriceFunc

	mu      sync.Mutex
	balance decimal.Decimal
	locked  decimal.Decimal
	nextID  int64
	resting map[string]OrderRequest
	Orders  []OrderRequest

	// FailWith, when set, is returned by the order methods instead of a fill
	FailWith error
}

// NewMockClient creates a mock exchange with the given USDT balance
func NewMockClient(balance decimal.Decimal, priceFn PriceFunc) *MockClient {
	return &MockClient{
		priceFn: priceFn,
		balance: balance,
		nextID:  1,
		resting: make(map[string]OrderRequest),
	}
}

// PlaceMarketOrder simulates an immediate full fill at the current price
func (m *MockClient) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	price, err := m.priceFn(ctx, req.Coin)
	if err != nil {
		return nil, err
	}

	notional := req.Quantity.Mul(price)
	if req.Side == SideBuy {
		if notional.GreaterThan(m.balance) {
			return nil, &APIError{Kind: KindInsufficientFunds, Code: -2010, Message: "Account has insufficient balance for requested action."}
		}
		m.balance = m.balance.Sub(notional)
	} else {
		m.balance = m.balance.Add(notional)
	}

	m.Orders = append(m.Orders, req)

	return &OrderResult{
		OrderID:      m.orderID(),
		Coin:         req.Coin,
		Side:         req.Side,
		Status:       "FILLED",
		ExecutedQty:  req.Quantity,
		AvgFillPrice: price,
		TransactTime: time.Now().UTC(),
	}, nil
}

// PlaceLimitOrder simulates a resting order: nothing fills, and buy notional
// moves from free to locked until the order is cancelled
func (m *MockClient) PlaceLimitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	if req.Side == SideBuy {
		notional := req.Quantity.Mul(req.Price)
		if notional.GreaterThan(m.balance) {
			return nil, &APIError{Kind: KindInsufficientFunds, Code: -2010, Message: "Account has insufficient balance for requested action."}
		}
		m.balance = m.balance.Sub(notional)
		m.locked = m.locked.Add(notional)
	}

	id := m.orderID()
	m.resting[id] = req
	m.Orders = append(m.Orders, req)

	return &OrderResult{
		OrderID:      id,
		Coin:         req.Coin,
		Side:         req.Side,
		Status:       "NEW",
		TransactTime: time.Now().UTC(),
	}, nil
}

// CancelOrder removes a resting order, releasing its locked funds
func (m *MockClient) CancelOrder(ctx context.Context, coin, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.resting[orderID]
	if !ok || req.Coin != coin {
		return &APIError{Kind: KindOther, Code: -2011, Message: "Unknown order sent."}
	}
	m.release(orderID, req)
	return nil
}

// CancelAllOrders removes every resting order for a coin
func (m *MockClient) CancelAllOrders(ctx context.Context, coin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, req := range m.resting {
		if req.Coin == coin {
			m.release(id, req)
		}
	}
	return nil
}

// release unlocks a resting order's funds. Caller holds m.mu.
func (m *MockClient) release(orderID string, req OrderRequest) {
	if req.Side == SideBuy {
		notional := req.Quantity.Mul(req.Price)
		m.locked = m.locked.Sub(notional)
		m.balance = m.balance.Add(notional)
	}
	delete(m.resting, orderID)
}

// GetBalance returns the simulated balance; only USDT is tracked
func (m *MockClient) GetBalance(ctx context.Context, asset string) (*Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if asset != "USDT" {
		return &Balance{}, nil
	}
	return &Balance{Free: m.balance, Locked: m.locked}, nil
}

// GetTickerPrice returns the supplied price for a coin
func (m *MockClient) GetTickerPrice(ctx context.Context, coin string) (decimal.Decimal, error) {
	return m.priceFn(ctx, coin)
}

// GetSymbolFilters returns permissive filters suitable for simulation
func (m *MockClient) GetSymbolFilters(ctx context.Context, coin string) (*SymbolFilters, error) {
	return &SymbolFilters{
		Coin:        coin,
		StepSize:    decimal.New(1, -8),
		MinQty:      decimal.New(1, -8),
		MinNotional: decimal.Zero,
	}, nil
}

// Ping always succeeds
func (m *MockClient) Ping(ctx context.Context) error {
	return nil
}

func (m *MockClient) orderID() string {
	id := m.nextID
	m.nextID++
	return fmt.Sprintf("mock-%d", id)
}

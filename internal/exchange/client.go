package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client is a signed Binance REST client scoped to one set of API keys.
// Symbol filters are fetched once and cached for the client's lifetime.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	mu      sync.RWMutex
	filters map[string]*SymbolFilters
}

// NewClient creates a signed exchange client
func NewClient(apiKey, secretKey, baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		filters:    make(map[string]*SymbolFilters),
	}
}

type orderResponse struct {
	OrderID             int64  `json:"orderId"`
	Symbol              string `json:"symbol"`
	Side                string `json:"side"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	TransactTime        int64  `json:"transactTime"`
	Fills               []struct {
		Price      string `json:"price"`
		Qty        string `json:"qty"`
		Commission string `json:"commission"`
	} `json:"fills"`
}

// PlaceMarketOrder submits a MARKET order and returns the confirmed fill.
// The quantity must already be quantized to the symbol's step size.
func (c *Client) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Coin+"USDT")
	params.Set("side", req.Side)
	params.Set("type", "MARKET")
	params.Set("quantity", req.Quantity.String())
	params.Set("newOrderRespType", "FULL")

	body, err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	result, err := parseOrderResult(req.Coin, body)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("coin", req.Coin).
		Str("side", req.Side).
		Str("quantity", result.ExecutedQty.String()).
		Str("avg_price", result.AvgFillPrice.String()).
		Str("order_id", result.OrderID).
		Msg("exchange order filled")

	return result, nil
}

// PlaceLimitOrder submits a LIMIT order. The order may rest on the book; the
// result's status and executed quantity say how much filled immediately.
// Time in force defaults to GTC.
func (c *Client) PlaceLimitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	tif := req.TimeInForce
	if tif == "" {
		tif = "GTC"
	}

	params := url.Values{}
	params.Set("symbol", req.Coin+"USDT")
	params.Set("side", req.Side)
	params.Set("type", "LIMIT")
	params.Set("quantity", req.Quantity.String())
	params.Set("price", req.Price.String())
	params.Set("timeInForce", tif)
	params.Set("newOrderRespType", "FULL")

	body, err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	result, err := parseOrderResult(req.Coin, body)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("coin", req.Coin).
		Str("side", req.Side).
		Str("quantity", req.Quantity.String()).
		Str("price", req.Price.String()).
		Str("status", result.Status).
		Str("order_id", result.OrderID).
		Msg("exchange limit order placed")

	return result, nil
}

// parseOrderResult decodes an order placement response
func parseOrderResult(coin string, body []byte) (*OrderResult, error) {
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}

	result := &OrderResult{
		OrderID:      strconv.FormatInt(resp.OrderID, 10),
		Coin:         coin,
		Side:         resp.Side,
		Status:       resp.Status,
		TransactTime: time.UnixMilli(resp.TransactTime).UTC(),
	}
	var err error
	if result.ExecutedQty, err = decimal.NewFromString(resp.ExecutedQty); err != nil {
		return nil, fmt.Errorf("invalid executed quantity %q: %w", resp.ExecutedQty, err)
	}

	// Weighted average fill price from the quote volume; a resting order has
	// no executed quantity yet and keeps a zero price
	quoteQty, err := decimal.NewFromString(resp.CummulativeQuoteQty)
	if err == nil && result.ExecutedQty.IsPositive() {
		result.AvgFillPrice = quoteQty.Div(result.ExecutedQty)
	}

	for _, fill := range resp.Fills {
		commission, err := decimal.NewFromString(fill.Commission)
		if err != nil {
			continue
		}
		result.Commission = result.Commission.Add(commission)
	}
	return result, nil
}

// CancelOrder cancels one open order
func (c *Client) CancelOrder(ctx context.Context, coin, orderID string) error {
	params := url.Values{}
	params.Set("symbol", coin+"USDT")
	params.Set("orderId", orderID)
	_, err := c.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

// CancelAllOrders cancels every open order for a coin
func (c *Client) CancelAllOrders(ctx context.Context, coin string) error {
	params := url.Values{}
	params.Set("symbol", coin+"USDT")
	_, err := c.signedRequest(ctx, http.MethodDelete, "/api/v3/openOrders", params)
	return err
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// GetBalance returns the free and locked balance for an asset
func (c *Client) GetBalance(ctx context.Context, asset string) (*Balance, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, err
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse account response: %w", err)
	}

	for _, b := range resp.Balances {
		if b.Asset != asset {
			continue
		}
		balance := &Balance{}
		if balance.Free, err = decimal.NewFromString(b.Free); err != nil {
			return nil, fmt.Errorf("invalid free balance %q: %w", b.Free, err)
		}
		if balance.Locked, err = decimal.NewFromString(b.Locked); err != nil {
			return nil, fmt.Errorf("invalid locked balance %q: %w", b.Locked, err)
		}
		return balance, nil
	}
	return &Balance{}, nil
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetTickerPrice returns the last traded price for a coin
func (c *Client) GetTickerPrice(ctx context.Context, coin string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%sUSDT", c.baseURL, coin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}

	body, err := c.do(req)
	if err != nil {
		return decimal.Zero, err
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse ticker response: %w", err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid ticker price %q: %w", resp.Price, err)
	}
	return price, nil
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType  string `json:"filterType"`
			StepSize    string `json:"stepSize"`
			MinQty      string `json:"minQty"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// GetSymbolFilters returns the trading rules for a coin, cached after the
// first fetch
func (c *Client) GetSymbolFilters(ctx context.Context, coin string) (*SymbolFilters, error) {
	c.mu.RLock()
	if f, ok := c.filters[coin]; ok {
		c.mu.RUnlock()
		return f, nil
	}
	c.mu.RUnlock()

	endpoint := fmt.Sprintf("%s/api/v3/exchangeInfo?symbol=%sUSDT", c.baseURL, coin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse exchange info: %w", err)
	}
	if len(resp.Symbols) == 0 {
		return nil, &APIError{Kind: KindSymbolFilter, Message: fmt.Sprintf("symbol %sUSDT not found", coin)}
	}

	filters := &SymbolFilters{Coin: coin}
	for _, f := range resp.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			if filters.StepSize, err = decimal.NewFromString(f.StepSize); err != nil {
				return nil, fmt.Errorf("invalid step size %q: %w", f.StepSize, err)
			}
			if filters.MinQty, err = decimal.NewFromString(f.MinQty); err != nil {
				return nil, fmt.Errorf("invalid min quantity %q: %w", f.MinQty, err)
			}
		case "NOTIONAL", "MIN_NOTIONAL":
			if filters.MinNotional, err = decimal.NewFromString(f.MinNotional); err != nil {
				return nil, fmt.Errorf("invalid min notional %q: %w", f.MinNotional, err)
			}
		}
	}

	c.mu.Lock()
	c.filters[coin] = filters
	c.mu.Unlock()
	return filters, nil
}

// Ping verifies connectivity and key validity
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	return err
}

// signedRequest sends an HMAC-signed request and returns the response body
func (c *Client) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	params.Set("signature", c.sign(params.Encode()))

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	return c.do(req)
}

type binanceError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NetworkError(err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr binanceError
		if err := json.Unmarshal(body, &apiErr); err != nil {
			apiErr.Message = string(body)
		}
		return nil, &APIError{
			Kind:    classify(resp.StatusCode, apiErr.Code, apiErr.Message),
			Code:    apiErr.Code,
			Message: apiErr.Message,
		}
	}
	return body, nil
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client fetches public market data from the Binance REST API. No
// authentication is required for these endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a public market data client
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type ticker24hResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
}

// GetTicker24h fetches 24 hour rolling statistics for a coin
func (c *Client) GetTicker24h(ctx context.Context, coin string) (*Snapshot, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%sUSDT", c.baseURL, coin)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp ticker24hResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse ticker response: %w", err)
	}

	snapshot := &Snapshot{Coin: coin, FetchedAt: time.Now().UTC()}
	if snapshot.Price, err = decimal.NewFromString(resp.LastPrice); err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", resp.LastPrice, err)
	}
	if snapshot.Change24hPct, err = decimal.NewFromString(resp.PriceChangePercent); err != nil {
		return nil, fmt.Errorf("invalid change %q: %w", resp.PriceChangePercent, err)
	}
	if snapshot.High24h, err = decimal.NewFromString(resp.HighPrice); err != nil {
		return nil, fmt.Errorf("invalid high %q: %w", resp.HighPrice, err)
	}
	if snapshot.Low24h, err = decimal.NewFromString(resp.LowPrice); err != nil {
		return nil, fmt.Errorf("invalid low %q: %w", resp.LowPrice, err)
	}
	if snapshot.Volume24h, err = decimal.NewFromString(resp.Volume); err != nil {
		return nil, fmt.Errorf("invalid volume %q: %w", resp.Volume, err)
	}

	return snapshot, nil
}

// GetKlines fetches recent hourly candles for a coin, oldest first
func (c *Client) GetKlines(ctx context.Context, coin string, limit int) ([]Kline, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%sUSDT&interval=1h&limit=%d", c.baseURL, coin, limit)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	// Binance returns klines as positional arrays
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse klines response: %w", err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return nil, fmt.Errorf("invalid kline open time: %w", err)
		}
		k := Kline{OpenTime: time.UnixMilli(openTime).UTC()}
		fields := []struct {
			idx  int
			dest *decimal.Decimal
		}{
			{1, &k.Open}, {2, &k.High}, {3, &k.Low}, {4, &k.Close}, {5, &k.Volume},
		}
		for _, f := range fields {
			var s string
			if err := json.Unmarshal(row[f.idx], &s); err != nil {
				return nil, fmt.Errorf("invalid kline field: %w", err)
			}
			if *f.dest, err = decimal.NewFromString(s); err != nil {
				return nil, fmt.Errorf("invalid kline value %q: %w", s, err)
			}
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market data request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read market data response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market data request returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

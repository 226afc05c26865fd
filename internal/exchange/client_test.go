package exchange

import "testing"

func TestParseOrderResultFilled(t *testing.T) {
	body := []byte(`{
		"orderId": 12345,
		"symbol": "BTCUSDT",
		"side": "BUY",
		"status": "FILLED",
		"executedQty": "0.02000000",
		"cummulativeQuoteQty": "800.00000000",
		"transactTime": 1714000000000,
		"fills": [
			{"price": "40000.00", "qty": "0.01", "commission": "0.40"},
			{"price": "40000.00", "qty": "0.01", "commission": "0.40"}
		]
	}`)
	result, err := parseOrderResult("BTC", body)
	if err != nil {
		t.Fatal(err)
	}
	if result.OrderID != "12345" || result.Status != "FILLED" {
		t.Fatalf("result = %+v", result)
	}
	if !result.ExecutedQty.Equal(dec("0.02")) {
		t.Fatalf("executed = %s", result.ExecutedQty)
	}
	if !result.AvgFillPrice.Equal(dec("40000")) {
		t.Fatalf("avg price = %s", result.AvgFillPrice)
	}
	if !result.Commission.Equal(dec("0.80")) {
		t.Fatalf("commission = %s", result.Commission)
	}
}

func TestParseOrderResultRestingLimit(t *testing.T) {
	body := []byte(`{
		"orderId": 7,
		"symbol": "BTCUSDT",
		"side": "BUY",
		"status": "NEW",
		"executedQty": "0.00000000",
		"cummulativeQuoteQty": "0.00000000",
		"transactTime": 1714000000000,
		"fills": []
	}`)
	result, err := parseOrderResult("BTC", body)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != "NEW" || !result.ExecutedQty.IsZero() {
		t.Fatalf("result = %+v", result)
	}
	if !result.AvgFillPrice.IsZero() {
		t.Fatalf("resting order must not carry a fill price, got %s", result.AvgFillPrice)
	}
}

package exchange

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func btcFilters() *SymbolFilters {
	return &SymbolFilters{
		Coin:        "BTC",
		StepSize:    dec("0.00001"),
		MinQty:      dec("0.00001"),
		MinNotional: dec("10"),
	}
}

func TestQuantizeFloorsToStep(t *testing.T) {
	got, err := QuantizeQuantity(btcFilters(), dec("0.023456789"), dec("40000"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(dec("0.02345")) {
		t.Fatalf("quantized = %s, want 0.02345", got)
	}
}

func TestQuantizeExactStepUnchanged(t *testing.T) {
	got, err := QuantizeQuantity(btcFilters(), dec("0.02"), dec("40000"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(dec("0.02")) {
		t.Fatalf("quantized = %s, want 0.02", got)
	}
}

func TestQuantizeBelowMinQty(t *testing.T) {
	filters := btcFilters()
	filters.MinQty = dec("0.001")
	_, err := QuantizeQuantity(filters, dec("0.0005"), dec("40000"))
	if !IsKind(err, KindSymbolFilter) {
		t.Fatalf("err = %v, want symbol_filter", err)
	}
}

func TestQuantizeBelowMinNotional(t *testing.T) {
	// 0.0002 * 40000 = 8, under the 10 minimum
	_, err := QuantizeQuantity(btcFilters(), dec("0.0002"), dec("40000"))
	if !IsKind(err, KindSymbolFilter) {
		t.Fatalf("err = %v, want symbol_filter", err)
	}
}

func TestQuantizeRejectsNonPositive(t *testing.T) {
	for _, q := range []string{"0", "-1"} {
		if _, err := QuantizeQuantity(btcFilters(), dec(q), dec("40000")); err == nil {
			t.Errorf("quantity %s should be rejected", q)
		}
	}
}

func TestQuantizeZeroStepSkipsRounding(t *testing.T) {
	filters := &SymbolFilters{Coin: "BTC"}
	got, err := QuantizeQuantity(filters, dec("0.123456"), dec("40000"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(dec("0.123456")) {
		t.Fatalf("quantized = %s, want untouched 0.123456", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status  int
		code    int
		message string
		want    string
	}{
		{400, -1022, "signature for this request is not valid", KindAuth},
		{401, -2014, "API-key format invalid", KindAuth},
		{401, -2015, "invalid API-key, IP, or permissions", KindAuth},
		{400, -1013, "filter failure: LOT_SIZE", KindSymbolFilter},
		{429, -1003, "too many requests", KindRateLimit},
		{400, -2010, "Account has insufficient balance", KindInsufficientFunds},
		{400, -2010, "Filter failure: MIN_NOTIONAL", KindSymbolFilter},
		{401, 0, "", KindAuth},
		{403, 0, "", KindAuth},
		{429, 0, "", KindRateLimit},
		{418, 0, "", KindRateLimit},
		{500, 0, "internal error", KindOther},
	}
	for _, c := range cases {
		if got := classify(c.status, c.code, c.message); got != c.want {
			t.Errorf("classify(%d, %d, %q) = %s, want %s", c.status, c.code, c.message, got, c.want)
		}
	}
}

func TestIsKind(t *testing.T) {
	err := &APIError{Kind: KindRateLimit, Code: -1003, Message: "too many requests"}
	wrapped := errors.Join(errors.New("place order"), err)
	if !IsKind(wrapped, KindRateLimit) {
		t.Fatal("IsKind should see through wrapping")
	}
	if IsKind(wrapped, KindAuth) {
		t.Fatal("kind mismatch must not match")
	}
	if IsKind(errors.New("plain"), KindAuth) {
		t.Fatal("plain errors are not API errors")
	}
}

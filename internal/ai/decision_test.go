package ai

import (
	"reflect"
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

var basketCoins = []string{"BTC", "ETH", "SOL"}

func TestParseDecisionsPlainJSON(t *testing.T) {
	raw := `{
		"BTC": {"signal": "buy_to_enter", "quantity": "0.02", "entry_price": "40000", "confidence": 0.8, "justification": "breakout"},
		"ETH": {"signal": "hold"}
	}`
	decisions, err := parseDecisions(raw, basketCoins)
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(decisions))
	}

	btc := decisions["BTC"]
	if btc.Coin != "BTC" || btc.Signal != SignalBuyToEnter {
		t.Fatalf("btc = %+v", btc)
	}
	if !btc.Quantity.Equal(dec("0.02")) || !btc.EntryPrice.Equal(dec("40000")) {
		t.Fatalf("btc sizing = %s @ %s", btc.Quantity, btc.EntryPrice)
	}
	if eth := decisions["ETH"]; eth.Signal != SignalHold {
		t.Fatalf("eth = %+v", eth)
	}
}

func TestParseDecisionsStripsCodeFence(t *testing.T) {
	raw := "Here is my analysis:\n```json\n{\"BTC\": {\"signal\": \"hold\"}}\n```\nGood luck."
	decisions, err := parseDecisions(raw, basketCoins)
	if err != nil {
		t.Fatal(err)
	}
	if decisions["BTC"].Signal != SignalHold {
		t.Fatalf("decisions = %+v", decisions)
	}
}

func TestParseDecisionsStripsBareFence(t *testing.T) {
	raw := "```\n{\"BTC\": {\"signal\": \"hold\"}}\n```"
	if _, err := parseDecisions(raw, basketCoins); err != nil {
		t.Fatal(err)
	}
}

func TestParseDecisionsUppercasesCoins(t *testing.T) {
	raw := `{"btc": {"signal": "hold"}}`
	decisions, err := parseDecisions(raw, basketCoins)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := decisions["BTC"]; !ok {
		t.Fatalf("lowercase coin not normalized: %+v", decisions)
	}
	if decisions["BTC"].Coin != "BTC" {
		t.Fatal("Coin field not backfilled")
	}
}

func TestParseDecisionsDropsUnknownCoins(t *testing.T) {
	raw := `{"DOGE": {"signal": "buy_to_enter", "quantity": "100", "entry_price": "0.1"}, "BTC": {"signal": "hold"}}`
	decisions, err := parseDecisions(raw, basketCoins)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := decisions["DOGE"]; ok {
		t.Fatal("out-of-basket coin should be dropped")
	}
	if len(decisions) != 1 {
		t.Fatalf("decisions = %+v", decisions)
	}
}

func TestParseDecisionsRejectsBadJSON(t *testing.T) {
	if _, err := parseDecisions("I refuse to answer in JSON", basketCoins); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestParseDecisionsRejectsInvalidDecision(t *testing.T) {
	raw := `{"BTC": {"signal": "buy_to_enter", "quantity": "0", "entry_price": "40000"}}`
	if _, err := parseDecisions(raw, basketCoins); err == nil {
		t.Fatal("zero quantity must fail validation")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		d       Decision
		wantErr bool
	}{
		{"hold needs nothing", Decision{Signal: SignalHold}, false},
		{"unknown signal", Decision{Signal: "yolo"}, true},
		{"opener ok", Decision{Signal: SignalBuyToEnter, Quantity: dec("1"), EntryPrice: dec("100"), Confidence: 0.5}, false},
		{"opener without price", Decision{Signal: SignalSellToEnter, Quantity: dec("1")}, true},
		{"close without price ok", Decision{Signal: SignalClose, Quantity: dec("1")}, false},
		{"negative quantity", Decision{Signal: SignalClose, Quantity: dec("-1")}, true},
		{"confidence out of range", Decision{Signal: SignalClose, Quantity: dec("1"), Confidence: 1.5}, true},
		{"negative leverage", Decision{Signal: SignalClose, Quantity: dec("1"), Leverage: -1}, true},
	}
	for _, c := range cases {
		err := c.d.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: err = %v, wantErr = %v", c.name, err, c.wantErr)
		}
	}
}

func TestIsOpener(t *testing.T) {
	if !(&Decision{Signal: SignalBuyToEnter}).IsOpener() || !(&Decision{Signal: SignalSellToEnter}).IsOpener() {
		t.Fatal("entries are openers")
	}
	if (&Decision{Signal: SignalClose}).IsOpener() || (&Decision{Signal: SignalHold}).IsOpener() {
		t.Fatal("closes and holds are not openers")
	}
}

func TestSortedCoins(t *testing.T) {
	decisions := map[string]Decision{
		"SOL": {}, "BTC": {}, "ETH": {},
	}
	got := SortedCoins(decisions)
	if !reflect.DeepEqual(got, []string{"BTC", "ETH", "SOL"}) {
		t.Fatalf("order = %v", got)
	}
}

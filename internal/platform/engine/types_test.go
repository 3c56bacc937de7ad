package engine

import (
	"testing"
	"time"

	"github.com/tradematcher/deskclient/internal/domain"
)

func TestParsePublicPayloadSnapshot(t *testing.T) {
	raw := []byte(`{"type":"SNAPSHOT","ticker":"AAPL","bids":[{"price":100.5,"quantity":10}],"asks":[{"price":101,"quantity":5}]}`)

	p := ParsePublicPayload(raw)
	if p.Kind != PayloadSnapshot {
		t.Fatalf("Kind = %v, want PayloadSnapshot", p.Kind)
	}
	if p.Ticker != "AAPL" {
		t.Errorf("Ticker = %q, want AAPL", p.Ticker)
	}
	if len(p.Bids) != 1 || p.Bids[0].Price != 100.5 || p.Bids[0].Quantity != 10 {
		t.Errorf("Bids = %+v", p.Bids)
	}
	if len(p.Asks) != 1 || p.Asks[0].Price != 101 {
		t.Errorf("Asks = %+v", p.Asks)
	}
}

func TestParsePublicPayloadUntypedSnapshot(t *testing.T) {
	raw := []byte(`{"bids":[],"asks":[{"price":99,"quantity":1}]}`)

	p := ParsePublicPayload(raw)
	if p.Kind != PayloadSnapshot {
		t.Fatalf("Kind = %v, want PayloadSnapshot", p.Kind)
	}
	if len(p.Bids) != 0 || len(p.Asks) != 1 {
		t.Errorf("Bids = %+v, Asks = %+v", p.Bids, p.Asks)
	}
}

func TestParsePublicPayloadSnapshotMissingSide(t *testing.T) {
	for _, raw := range []string{
		`{"type":"SNAPSHOT","bids":[{"price":1,"quantity":1}]}`,
		`{"type":"SNAPSHOT","asks":[]}`,
	} {
		p := ParsePublicPayload([]byte(raw))
		if p.Kind != PayloadIgnored {
			t.Errorf("ParsePublicPayload(%s).Kind = %v, want PayloadIgnored", raw, p.Kind)
		}
	}
}

func TestParsePublicPayloadDelta(t *testing.T) {
	raw := []byte(`{"type":"LOB_UPDATE","ticker":"AAPL","changes":[["BUY","100.500","25"],["SELL","101.000","0"],["BUY"]]}`)

	p := ParsePublicPayload(raw)
	if p.Kind != PayloadDelta {
		t.Fatalf("Kind = %v, want PayloadDelta", p.Kind)
	}
	// The two-element tuple is skipped.
	if len(p.Changes) != 2 {
		t.Fatalf("len(Changes) = %d, want 2", len(p.Changes))
	}
	first := p.Changes[0]
	if first.Side != domain.OrderSideBuy || first.PriceKey != "100.500" || first.Quantity != "25" {
		t.Errorf("Changes[0] = %+v", first)
	}
}

func TestParsePublicPayloadDeltaMissingChanges(t *testing.T) {
	p := ParsePublicPayload([]byte(`{"type":"LOB_UPDATE","ticker":"AAPL"}`))
	if p.Kind != PayloadIgnored {
		t.Errorf("Kind = %v, want PayloadIgnored", p.Kind)
	}
}

func TestParsePublicPayloadTradeShapes(t *testing.T) {
	tradeJSON := `{"bidTrade":{"orderId":7,"userId":"u1","price":100.5,"quantity":3},"askTrade":{"orderId":"S-9","userId":"u2"}}`

	tests := []struct {
		name string
		raw  string
	}{
		{"bare array", `[` + tradeJSON + `]`},
		{"typed object", `{"type":"TRADES","data":[` + tradeJSON + `]}`},
		{"wrapper object", `{"trades":[` + tradeJSON + `]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePublicPayload([]byte(tt.raw))
			if p.Kind != PayloadTrades {
				t.Fatalf("Kind = %v, want PayloadTrades", p.Kind)
			}
			if len(p.Trades) != 1 {
				t.Fatalf("len(Trades) = %d, want 1", len(p.Trades))
			}
			bid := p.Trades[0].BidTrade
			if bid == nil || string(bid.OrderID) != "7" || bid.UserID != "u1" {
				t.Errorf("BidTrade = %+v", bid)
			}
		})
	}
}

func TestParsePublicPayloadEmptyTradesIsReset(t *testing.T) {
	for _, raw := range []string{`[]`, `{"type":"TRADES","data":[]}`, `{"trades":[]}`} {
		p := ParsePublicPayload([]byte(raw))
		if p.Kind != PayloadReset {
			t.Errorf("ParsePublicPayload(%s).Kind = %v, want PayloadReset", raw, p.Kind)
		}
	}
}

func TestParsePublicPayloadGarbage(t *testing.T) {
	for _, raw := range []string{``, `not json`, `{"type":"NOISE"}`, `{"hello":1}`, `[{"bidTrade":`} {
		p := ParsePublicPayload([]byte(raw))
		if p.Kind != PayloadIgnored {
			t.Errorf("ParsePublicPayload(%q).Kind = %v, want PayloadIgnored", raw, p.Kind)
		}
	}
}

func TestToDomainTrades(t *testing.T) {
	arrived := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	price := 99.5
	qty := int64(4)
	askPrice := 98.0
	askQty := int64(2)

	raws := []RawTrade{
		{
			BidTrade: &TradeSide{OrderID: "B-1", UserID: "alice", Price: &price, Quantity: &qty},
			AskTrade: &TradeSide{OrderID: "S-2", UserID: "bob"},
		},
		// Buy side absent: price and quantity come from the sell side.
		{
			AskTrade: &TradeSide{OrderID: "S-3", UserID: "carol", Price: &askPrice, Quantity: &askQty},
		},
		// Neither side named: synthetic id, nil price and quantity.
		{},
	}

	trades := ToDomainTrades(raws, arrived)
	if len(trades) != 3 {
		t.Fatalf("len(trades) = %d, want 3", len(trades))
	}

	if trades[0].Price == nil || *trades[0].Price != 99.5 {
		t.Errorf("trades[0].Price = %v, want 99.5", trades[0].Price)
	}
	if trades[0].BidOrderID != "B-1" || trades[0].AskOrderID != "S-2" {
		t.Errorf("trades[0] ids = %q/%q", trades[0].BidOrderID, trades[0].AskOrderID)
	}

	if trades[1].Price == nil || *trades[1].Price != 98.0 {
		t.Errorf("trades[1].Price = %v, want 98.0", trades[1].Price)
	}
	if trades[1].Quantity == nil || *trades[1].Quantity != 2 {
		t.Errorf("trades[1].Quantity = %v, want 2", trades[1].Quantity)
	}

	if trades[2].Price != nil || trades[2].Quantity != nil {
		t.Errorf("trades[2] = %+v, want nil price and quantity", trades[2])
	}
	if trades[2].ID == "" {
		t.Error("trades[2].ID is empty, want synthetic id")
	}

	ids := map[string]struct{}{}
	for _, tr := range trades {
		if tr.ID == "" {
			t.Fatal("empty trade id")
		}
		if _, dup := ids[tr.ID]; dup {
			t.Fatalf("duplicate trade id %q", tr.ID)
		}
		ids[tr.ID] = struct{}{}
	}
}

func TestParsePrivateMessage(t *testing.T) {
	raw := []byte(`{"type":"FILL","orderId":42,"fillId":"F-1","userId":"alice","ticker":"AAPL","side":"BUY","price":100.5,"quantity":3,"timestamp":"2026-03-01T12:00:00Z"}`)

	msg, ok := ParsePrivateMessage(raw)
	if !ok {
		t.Fatal("ParsePrivateMessage returned ok=false")
	}
	if msg.Type != "FILL" || string(msg.OrderID) != "42" {
		t.Errorf("msg = %+v", msg)
	}

	fill := msg.ToDomainFill(time.Now())
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !fill.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", fill.Timestamp, want)
	}
	if fill.Side != domain.OrderSideBuy || fill.Price != 100.5 || fill.Quantity != 3 {
		t.Errorf("fill = %+v", fill)
	}
}

func TestToDomainFillBadTimestampFallsBack(t *testing.T) {
	arrived := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	msg := PrivateMessage{Type: "FILL", FillID: "F-2", Timestamp: "yesterday-ish"}

	fill := msg.ToDomainFill(arrived)
	if !fill.Timestamp.Equal(arrived) {
		t.Errorf("Timestamp = %v, want arrival time %v", fill.Timestamp, arrived)
	}
}

func TestParsePrivateMessageGarbage(t *testing.T) {
	if _, ok := ParsePrivateMessage([]byte(`[1,2,3]`)); ok {
		t.Error("array frame parsed as private message")
	}
	if _, ok := ParsePrivateMessage([]byte(`nope`)); ok {
		t.Error("garbage frame parsed as private message")
	}
}

func TestOrderBodyOmitsAbsentFields(t *testing.T) {
	price := 100.5
	req := domain.OrderRequest{
		Ticker:    "AAPL",
		Side:      domain.OrderSideBuy,
		OrderType: domain.OrderTypeLimit,
		Price:     &price,
		Quantity:  10,
	}

	body := orderBody(req, "TMP-abc-1")
	if body["orderId"] != "TMP-abc-1" {
		t.Errorf("orderId = %v", body["orderId"])
	}
	if body["price"] != 100.5 {
		t.Errorf("price = %v", body["price"])
	}
	for _, absent := range []string{"stopPrice", "displayQuantity", "postOnly"} {
		if _, ok := body[absent]; ok {
			t.Errorf("body unexpectedly contains %q", absent)
		}
	}
}

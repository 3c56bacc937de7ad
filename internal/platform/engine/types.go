// Package engine is the client for the tradeMatcher engine: REST endpoints
// for order, script, and account operations, and the public/private
// WebSocket feeds.
package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradematcher/deskclient/internal/book"
	"github.com/tradematcher/deskclient/internal/domain"
)

// flexString unmarshals from a JSON string or number. The engine serializes
// identifiers as Java longs in some payloads and strings in others.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// --------------------------------------------------------------------------
// Public feed payloads
// --------------------------------------------------------------------------

// PayloadKind discriminates the public feed's overlapping message shapes.
type PayloadKind int

const (
	// PayloadIgnored covers unparseable, unrecognized, or malformed
	// payloads; the caller treats it as a no-op and retains prior state.
	PayloadIgnored PayloadKind = iota
	PayloadSnapshot
	PayloadDelta
	PayloadTrades
	// PayloadReset is an empty trade list: the engine was reset and all
	// market-side client state must be discarded.
	PayloadReset
)

// LevelEntry is one {price, quantity} element of a snapshot side.
type LevelEntry struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// TradeSide is the nested buy- or sell-side sub-object of a raw trade.
type TradeSide struct {
	OrderID  flexString `json:"orderId"`
	UserID   string     `json:"userId"`
	Price    *float64   `json:"price"`
	Quantity *int64     `json:"quantity"`
}

// RawTrade is one trade as carried on the public feed.
type RawTrade struct {
	BidTrade *TradeSide `json:"bidTrade"`
	AskTrade *TradeSide `json:"askTrade"`
}

// PublicPayload is the canonical decoding of one public feed message.
// Exactly the fields implied by Kind are populated.
type PublicPayload struct {
	Kind    PayloadKind
	Ticker  string
	Bids    []book.Level
	Asks    []book.Level
	Changes []book.Change
	Trades  []RawTrade
}

// publicEnvelope sniffs the discriminant and optional sequences of an
// object-shaped public feed message. Pointer slices distinguish a missing
// sequence from an empty one.
type publicEnvelope struct {
	Type    string          `json:"type"`
	Ticker  string          `json:"ticker"`
	Bids    *[]LevelEntry   `json:"bids"`
	Asks    *[]LevelEntry   `json:"asks"`
	Changes *[][]string     `json:"changes"`
	Data    json.RawMessage `json:"data"`
	Trades  json.RawMessage `json:"trades"`
}

// ParsePublicPayload decodes one raw public feed frame into its canonical
// form. The feed carries four overlapping shapes (bare trade array, typed
// snapshot/delta/trades objects, and untyped wrapper objects); anything
// that matches none of them decodes to PayloadIgnored so that partial
// market data never disturbs existing state.
func ParsePublicPayload(raw []byte) PublicPayload {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return PublicPayload{}
	}

	// Bare array: trades, or the reset signal when empty.
	if trimmed[0] == '[' {
		var trades []RawTrade
		if err := json.Unmarshal(trimmed, &trades); err != nil {
			return PublicPayload{}
		}
		if len(trades) == 0 {
			return PublicPayload{Kind: PayloadReset}
		}
		return PublicPayload{Kind: PayloadTrades, Trades: trades}
	}

	var env publicEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return PublicPayload{}
	}

	switch env.Type {
	case "SNAPSHOT":
		return snapshotPayload(env)
	case "LOB_UPDATE":
		if env.Changes == nil {
			return PublicPayload{}
		}
		return PublicPayload{
			Kind:    PayloadDelta,
			Ticker:  env.Ticker,
			Changes: changeTuples(*env.Changes),
		}
	case "TRADES":
		return tradesPayload(env.Ticker, env.Data)
	}

	// Untyped wrappers: {"trades": [...]} or a bare snapshot object.
	if len(env.Trades) > 0 {
		return tradesPayload(env.Ticker, env.Trades)
	}
	if env.Bids != nil && env.Asks != nil {
		return snapshotPayload(env)
	}
	return PublicPayload{}
}

func snapshotPayload(env publicEnvelope) PublicPayload {
	if env.Bids == nil || env.Asks == nil {
		return PublicPayload{}
	}
	return PublicPayload{
		Kind:   PayloadSnapshot,
		Ticker: env.Ticker,
		Bids:   snapshotLevels(*env.Bids),
		Asks:   snapshotLevels(*env.Asks),
	}
}

func tradesPayload(ticker string, data json.RawMessage) PublicPayload {
	if len(data) == 0 {
		return PublicPayload{}
	}
	var trades []RawTrade
	if err := json.Unmarshal(data, &trades); err != nil {
		return PublicPayload{}
	}
	if len(trades) == 0 {
		return PublicPayload{Kind: PayloadReset, Ticker: ticker}
	}
	return PublicPayload{Kind: PayloadTrades, Ticker: ticker, Trades: trades}
}

func snapshotLevels(entries []LevelEntry) []book.Level {
	levels := make([]book.Level, 0, len(entries))
	for _, e := range entries {
		levels = append(levels, book.Level{Price: e.Price, Quantity: e.Quantity})
	}
	return levels
}

// changeTuples maps raw [side, priceKey, quantity] tuples to book changes,
// skipping tuples that are too short to address a level.
func changeTuples(tuples [][]string) []book.Change {
	changes := make([]book.Change, 0, len(tuples))
	for _, t := range tuples {
		if len(t) < 3 {
			continue
		}
		changes = append(changes, book.Change{
			Side:     domain.OrderSide(t[0]),
			PriceKey: t[1],
			Quantity: t[2],
		})
	}
	return changes
}

// ToDomainTrades normalizes raw feed trades, reading price and quantity
// preferentially from the buy side and falling back to the sell side. Each
// record gets a stable id composed from the arrival time, its index in the
// message, and an order id; a uuid fills in when the feed names neither
// order.
func ToDomainTrades(raws []RawTrade, arrivedAt time.Time) []domain.Trade {
	trades := make([]domain.Trade, 0, len(raws))
	for i, raw := range raws {
		bid, ask := raw.BidTrade, raw.AskTrade
		if bid == nil {
			bid = &TradeSide{}
		}
		if ask == nil {
			ask = &TradeSide{}
		}

		t := domain.Trade{
			Timestamp:  arrivedAt,
			BidOrderID: string(bid.OrderID),
			AskOrderID: string(ask.OrderID),
			BidUserID:  bid.UserID,
			AskUserID:  ask.UserID,
		}
		if bid.Price != nil {
			t.Price = bid.Price
		} else {
			t.Price = ask.Price
		}
		if bid.Quantity != nil {
			t.Quantity = bid.Quantity
		} else {
			t.Quantity = ask.Quantity
		}

		ref := t.BidOrderID
		if ref == "" {
			ref = t.AskOrderID
		}
		if ref == "" {
			ref = uuid.NewString()
		}
		t.ID = fmt.Sprintf("%d-%d-%s", arrivedAt.UnixMilli(), i, ref)
		trades = append(trades, t)
	}
	return trades
}

// --------------------------------------------------------------------------
// Private feed payloads
// --------------------------------------------------------------------------

// PrivateMessage is one event pushed on the authenticated feed. Unused
// fields stay zero for event types that do not carry them.
type PrivateMessage struct {
	Type          string     `json:"type"`
	OrderID       flexString `json:"orderId"`
	ClientOrderID flexString `json:"clientOrderId"`
	Reason        string     `json:"reason"`
	FillID        flexString `json:"fillId"`
	UserID        string     `json:"userId"`
	Ticker        string     `json:"ticker"`
	Side          string     `json:"side"`
	Price         float64    `json:"price"`
	Quantity      int64      `json:"quantity"`
	Timestamp     string     `json:"timestamp"`
}

// ParsePrivateMessage decodes one private feed frame. A frame that is not a
// JSON object returns ok=false and is dropped.
func ParsePrivateMessage(raw []byte) (PrivateMessage, bool) {
	var msg PrivateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return PrivateMessage{}, false
	}
	return msg, true
}

// ToDomainFill converts a FILL message into a canonical fill record,
// normalizing the RFC3339 timestamp and falling back to arrivedAt when the
// engine omits or mangles it.
func (m PrivateMessage) ToDomainFill(arrivedAt time.Time) domain.Fill {
	ts := arrivedAt
	if m.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
			ts = parsed
		}
	}
	return domain.Fill{
		FillID:    string(m.FillID),
		OrderID:   string(m.OrderID),
		UserID:    m.UserID,
		Ticker:    m.Ticker,
		Side:      domain.OrderSide(m.Side),
		Price:     m.Price,
		Quantity:  m.Quantity,
		Timestamp: ts,
	}
}

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

// OrderResponse is the body of POST /api/order, returned on both success
// and rejection; the engine names the assigned order id either way.
type OrderResponse struct {
	Status        string     `json:"status"`
	OrderID       flexString `json:"orderId"`
	ClientOrderID flexString `json:"clientOrderId"`
	Message       string     `json:"message"`
}

// APIOpenOrder is one resting order from GET /api/orders.
type APIOpenOrder struct {
	OrderID   flexString `json:"orderId"`
	Ticker    string     `json:"ticker"`
	Side      string     `json:"side"`
	OrderType string     `json:"orderType"`
	Price     float64    `json:"price"`
	Quantity  int64      `json:"quantity"`
}

// ToDomainOpenOrder converts an APIOpenOrder to the domain type.
func (o APIOpenOrder) ToDomainOpenOrder() domain.OpenOrder {
	return domain.OpenOrder{
		OrderID:   string(o.OrderID),
		Ticker:    o.Ticker,
		Side:      domain.OrderSide(o.Side),
		OrderType: domain.OrderType(o.OrderType),
		Price:     o.Price,
		Quantity:  o.Quantity,
	}
}

// APIFill is one fill from GET /api/fills.
type APIFill struct {
	FillID    flexString `json:"fillId"`
	OrderID   flexString `json:"orderId"`
	UserID    string     `json:"userId"`
	Ticker    string     `json:"ticker"`
	Side      string     `json:"side"`
	Price     float64    `json:"price"`
	Quantity  int64      `json:"quantity"`
	Timestamp string     `json:"timestamp"`
}

// ToDomainFill converts an APIFill to the domain type. The engine writes
// RFC3339 instants; unparseable values yield a zero time rather than an
// error, since a bad timestamp should not hide the fill.
func (f APIFill) ToDomainFill() domain.Fill {
	var ts time.Time
	if parsed, err := time.Parse(time.RFC3339Nano, f.Timestamp); err == nil {
		ts = parsed
	}
	return domain.Fill{
		FillID:    string(f.FillID),
		OrderID:   string(f.OrderID),
		UserID:    f.UserID,
		Ticker:    f.Ticker,
		Side:      domain.OrderSide(f.Side),
		Price:     f.Price,
		Quantity:  f.Quantity,
		Timestamp: ts,
	}
}

// orderBody builds the POST /api/order payload from a request and its
// locally assigned client order id.
func orderBody(req domain.OrderRequest, clientOrderID string) map[string]any {
	body := map[string]any{
		"ticker":    req.Ticker,
		"side":      string(req.Side),
		"orderType": string(req.OrderType),
		"quantity":  req.Quantity,
		"orderId":   clientOrderID,
	}
	if req.Price != nil {
		body["price"] = *req.Price
	}
	if req.StopPrice != nil {
		body["stopPrice"] = *req.StopPrice
	}
	if req.DisplayQuantity > 0 && req.DisplayQuantity != req.Quantity {
		body["displayQuantity"] = req.DisplayQuantity
	}
	if req.PostOnly {
		body["postOnly"] = true
	}
	return body
}

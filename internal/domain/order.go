package domain

import "time"

// OrderSide indicates whether an order buys or sells the instrument.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType is the execution policy of an order, independent of lifetime.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
)

// OrderRequest is a user-authored order before submission. Price is nil for
// market orders; StopPrice is set only for stop variants.
type OrderRequest struct {
	Ticker          string    `json:"ticker"`
	Side            OrderSide `json:"side"`
	OrderType       OrderType `json:"orderType"`
	Price           *float64  `json:"price"`
	StopPrice       *float64  `json:"stopPrice,omitempty"`
	Quantity        int64     `json:"quantity"`
	DisplayQuantity int64     `json:"displayQuantity,omitempty"`
	PostOnly        bool      `json:"postOnly,omitempty"`
}

// PendingOrder is an order submitted by this client whose terminal outcome
// has not yet been observed. ClientOrderID is assigned locally and is stable
// for the order's whole life; ServerOrderID is empty until an acknowledgment
// or submission response names one. OrderID always holds the
// currently-known identifier.
type PendingOrder struct {
	OrderID       string
	ClientOrderID string
	ServerOrderID string
	Ticker        string
	Side          OrderSide
	OrderType     OrderType
	Price         *float64
	Quantity      int64
	SubmittedAt   time.Time
}

// OpenOrder is a resting order as reported by GET /api/orders. Quantity is
// the remaining (unfilled) quantity.
type OpenOrder struct {
	OrderID   string    `json:"orderId"`
	Ticker    string    `json:"ticker"`
	Side      OrderSide `json:"side"`
	OrderType OrderType `json:"orderType"`
	Price     float64   `json:"price"`
	Quantity  int64     `json:"quantity"`
}

// Fill is one execution against an order owned by the viewer.
type Fill struct {
	FillID    string    `json:"fillId"`
	OrderID   string    `json:"orderId"`
	UserID    string    `json:"userId"`
	Ticker    string    `json:"ticker"`
	Side      OrderSide `json:"side"`
	Price     float64   `json:"price"`
	Quantity  int64     `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPhase labels a line in the order log.
type EventPhase string

const (
	PhaseSubmit       EventPhase = "SUBMIT"
	PhaseSubmitFailed EventPhase = "SUBMIT_FAILED"
	PhaseAck          EventPhase = "ACK"
	PhaseReject       EventPhase = "REJECT"
	PhaseCanceled     EventPhase = "CANCELED"
	PhaseFill         EventPhase = "FILL"
	PhaseScript       EventPhase = "SCRIPT"
	PhaseReset        EventPhase = "RESET"
	PhaseSession      EventPhase = "SESSION"
)

// EventSeverity grades an order-log entry for display.
type EventSeverity string

const (
	SeverityInfo    EventSeverity = "info"
	SeveritySuccess EventSeverity = "success"
	SeverityWarning EventSeverity = "warning"
	SeverityError   EventSeverity = "error"
)

// OrderEvent is one line of the order log: a submission, a lifecycle
// transition pushed on the private feed, or a session-level notice.
type OrderEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Phase     EventPhase    `json:"phase"`
	OrderID   string        `json:"orderId,omitempty"`
	Side      OrderSide     `json:"side,omitempty"`
	OrderType OrderType     `json:"orderType,omitempty"`
	Price     *float64      `json:"price,omitempty"`
	Quantity  int64         `json:"quantity,omitempty"`
	Message   string        `json:"message"`
	Severity  EventSeverity `json:"severity"`
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/tradematcher/deskclient/internal/domain"
	"github.com/tradematcher/deskclient/internal/session"
)

// Console defines the read-side methods that the state handler requires from
// the session controller.
type Console interface {
	SessionID() string
	BookView() domain.BookView
	PriceHistory() []domain.PricePoint
	Trades() []domain.Trade
	Events() []domain.OrderEvent
	Fills() []domain.Fill
	Account() *domain.Account
	OpenOrders() []domain.OpenOrder
	Statuses() session.FeedStatuses
}

// StateHandler serves read-only snapshots of the session state.
type StateHandler struct {
	console Console
	logger  *slog.Logger
}

// NewStateHandler creates a StateHandler over the given console.
func NewStateHandler(console Console, logger *slog.Logger) *StateHandler {
	return &StateHandler{
		console: console,
		logger:  logHandler(logger, "state"),
	}
}

// stateResponse is the full derived snapshot returned by GET /api/state.
type stateResponse struct {
	SessionID  string               `json:"sessionId"`
	Book       domain.BookView      `json:"book"`
	History    []domain.PricePoint  `json:"history"`
	Trades     []domain.Trade       `json:"trades"`
	Events     []domain.OrderEvent  `json:"events"`
	Fills      []domain.Fill        `json:"fills"`
	Account    *domain.Account      `json:"account"`
	OpenOrders []domain.OpenOrder   `json:"openOrders"`
	Feeds      session.FeedStatuses `json:"feeds"`
}

// GetState returns everything a dashboard needs to render in one round trip.
// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		SessionID:  h.console.SessionID(),
		Book:       h.console.BookView(),
		History:    orEmpty(h.console.PriceHistory()),
		Trades:     orEmpty(h.console.Trades()),
		Events:     orEmpty(h.console.Events()),
		Fills:      orEmpty(h.console.Fills()),
		Account:    h.console.Account(),
		OpenOrders: orEmpty(h.console.OpenOrders()),
		Feeds:      h.console.Statuses(),
	})
}

// orEmpty replaces a nil slice so JSON clients see [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Package session owns all client-side state for one console session: the
// reconstructed order book, the pending-order ledger, trade and event logs,
// and the authenticated account view. The Controller is the single writer;
// feed messages, REST responses, and user commands all funnel through it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradematcher/deskclient/internal/book"
	"github.com/tradematcher/deskclient/internal/domain"
	"github.com/tradematcher/deskclient/internal/ledger"
	"github.com/tradematcher/deskclient/internal/platform/engine"
	"github.com/tradematcher/deskclient/internal/ring"
	"github.com/tradematcher/deskclient/internal/script"
)

// EngineAPI is the REST surface the controller drives. *engine.RestClient
// satisfies it.
type EngineAPI interface {
	PostOrder(ctx context.Context, req domain.OrderRequest, clientOrderID string) (engine.OrderResponse, error)
	PostScript(ctx context.Context, lines []string) error
	Reset(ctx context.Context) error
	GetAccount(ctx context.Context) (domain.Account, error)
	GetOrders(ctx context.Context) ([]domain.OpenOrder, error)
	GetFills(ctx context.Context) ([]domain.Fill, error)
}

// Config bounds the controller's retained state. Zero fields take the
// defaults below.
type Config struct {
	Depth        int // book levels per side
	TradeLimit   int // tape entries
	EventLimit   int // order-log entries
	FillLimit    int // execution records
	HistoryLimit int // best-bid/ask price points
}

const (
	defaultDepth        = 50
	defaultTradeLimit   = 500
	defaultEventLimit   = 500
	defaultFillLimit    = 200
	defaultHistoryLimit = 2000
)

func (c Config) withDefaults() Config {
	if c.Depth <= 0 {
		c.Depth = defaultDepth
	}
	if c.TradeLimit <= 0 {
		c.TradeLimit = defaultTradeLimit
	}
	if c.EventLimit <= 0 {
		c.EventLimit = defaultEventLimit
	}
	if c.FillLimit <= 0 {
		c.FillLimit = defaultFillLimit
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	return c
}

// FeedStatuses is the connection state of both feeds.
type FeedStatuses struct {
	Public  domain.ConnStatus `json:"public"`
	Private domain.ConnStatus `json:"private"`
}

// Controller serializes every mutation of session state behind one mutex.
// All exported methods are safe for concurrent use.
type Controller struct {
	logger *slog.Logger
	api    EngineAPI
	cfg    Config

	mu         sync.RWMutex
	sessionID  string
	reconciler *book.Reconciler
	ledger     *ledger.Ledger
	trades     *ring.Buffer[domain.Trade]
	events     *ring.Buffer[domain.OrderEvent]
	fills      []domain.Fill // newest first, deduped by FillID
	account    *domain.Account
	openOrders []domain.OpenOrder
	viewerID   string
	token      string
	statuses   FeedStatuses

	bus      domain.SignalBus
	recorder domain.SessionRecorder
	onDeauth func()

	now func() time.Time
}

// New creates a Controller over the given engine API.
func New(logger *slog.Logger, api EngineAPI, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		logger:     logger.With(slog.String("component", "session")),
		api:        api,
		cfg:        cfg,
		sessionID:  uuid.NewString(),
		reconciler: book.NewReconciler(cfg.Depth, cfg.HistoryLimit),
		ledger:     ledger.New(),
		trades:     ring.New[domain.Trade](cfg.TradeLimit),
		events:     ring.New[domain.OrderEvent](cfg.EventLimit),
		statuses:   FeedStatuses{Public: domain.ConnIdle, Private: domain.ConnIdle},
		now:        time.Now,
	}
}

// AttachBus directs state updates to a signal bus for out-of-process
// consumers. Optional; safe to skip for headless use.
func (c *Controller) AttachBus(bus domain.SignalBus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = bus
}

// AttachRecorder persists trades, fills, and events as they arrive.
// Optional.
func (c *Controller) AttachRecorder(rec domain.SessionRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = rec
}

// SetDeauthHook registers a callback invoked whenever the session loses
// authentication, so the owner can tear down the private feed.
func (c *Controller) SetDeauthHook(hook func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDeauth = hook
}

// SessionID returns the unique id of this console session.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Token returns the current bearer token, or "" when unauthenticated.
// Usable directly as an engine.TokenSource.
func (c *Controller) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// --------------------------------------------------------------------------
// Public feed
// --------------------------------------------------------------------------

// HandlePublicMessage applies one raw public feed frame. Unrecognized or
// malformed frames leave all state untouched.
func (c *Controller) HandlePublicMessage(ctx context.Context, raw []byte) {
	payload := engine.ParsePublicPayload(raw)

	switch payload.Kind {
	case engine.PayloadSnapshot:
		c.mu.Lock()
		view := c.reconciler.ApplySnapshot(payload.Bids, payload.Asks)
		c.mu.Unlock()
		c.publish(ctx, domain.ChannelBook, view)

	case engine.PayloadDelta:
		c.mu.Lock()
		view := c.reconciler.ApplyChanges(payload.Changes)
		c.mu.Unlock()
		c.publish(ctx, domain.ChannelBook, view)

	case engine.PayloadTrades:
		trades := engine.ToDomainTrades(payload.Trades, c.now())
		c.mu.Lock()
		c.trades.AppendAll(trades)
		tape := c.tapeLocked()
		rec := c.recorder
		sid := c.sessionID
		c.mu.Unlock()
		c.publish(ctx, domain.ChannelTrades, tape)
		if rec != nil {
			if err := rec.RecordTrades(ctx, sid, trades); err != nil {
				c.logger.Warn("record trades failed", slog.String("error", err.Error()))
			}
		}

	case engine.PayloadReset:
		c.handleEngineReset(ctx)

	case engine.PayloadIgnored:
		// Partial market data never disturbs existing state.
	}
}

// handleEngineReset clears all market-side state. An empty trade broadcast
// is the engine's only reset signal; user-side state (account, orders,
// authentication) is untouched because the engine re-reports it on the
// next refresh.
func (c *Controller) handleEngineReset(ctx context.Context) {
	c.logger.Info("engine reset detected, clearing market state")

	c.mu.Lock()
	c.reconciler.Reset()
	c.trades.Reset()
	c.mu.Unlock()

	c.appendEvent(ctx, domain.OrderEvent{
		Timestamp: c.now(),
		Phase:     domain.PhaseReset,
		Message:   "engine reset: market state cleared",
		Severity:  domain.SeverityWarning,
	})
	c.publish(ctx, domain.ChannelBook, domain.BookView{})
	c.publish(ctx, domain.ChannelTrades, []domain.Trade{})
}

// --------------------------------------------------------------------------
// Private feed
// --------------------------------------------------------------------------

// HandlePrivateMessage applies one raw private feed frame: the order
// lifecycle state machine. Unknown event types are ignored.
func (c *Controller) HandlePrivateMessage(ctx context.Context, raw []byte) {
	msg, ok := engine.ParsePrivateMessage(raw)
	if !ok {
		return
	}

	switch msg.Type {
	case "ACK":
		c.handleAck(ctx, msg)
	case "REJECT":
		c.handleReject(ctx, msg)
	case "CANCELED":
		c.handleCanceled(ctx, msg)
	case "FILL":
		c.handleFill(ctx, msg)
	default:
		c.logger.Debug("ignoring private event", slog.String("type", msg.Type))
	}
}

// handleAck moves the pending entry to its server-assigned id. The entry is
// retained: fills and cancels referencing either id must still resolve
// until a terminal event arrives.
func (c *Controller) handleAck(ctx context.Context, msg engine.PrivateMessage) {
	serverID := string(msg.OrderID)
	clientID := string(msg.ClientOrderID)

	c.mu.Lock()
	fromKey := clientID
	if entry, found := c.ledger.Resolve(clientID, nil); found {
		fromKey = entry.OrderID
	}
	c.ledger.Rekey(fromKey, serverID)
	entry, _ := c.ledger.Resolve(serverID, nil)
	c.mu.Unlock()

	c.appendEvent(ctx, domain.OrderEvent{
		Timestamp: c.now(),
		Phase:     domain.PhaseAck,
		OrderID:   serverID,
		Side:      entry.Side,
		OrderType: entry.OrderType,
		Price:     entry.Price,
		Quantity:  entry.Quantity,
		Message:   fmt.Sprintf("order %s acknowledged", serverID),
		Severity:  domain.SeveritySuccess,
	})
	c.refreshOrders(ctx)
}

func (c *Controller) handleReject(ctx context.Context, msg engine.PrivateMessage) {
	orderID := string(msg.OrderID)
	clientID := string(msg.ClientOrderID)

	c.mu.Lock()
	entry, _ := c.ledger.Resolve(firstNonEmpty(clientID, orderID), c.openOrders)
	c.ledger.Remove(orderID, clientID, entry.OrderID, entry.ClientOrderID, entry.ServerOrderID)
	c.mu.Unlock()

	reason := msg.Reason
	if reason == "" {
		reason = "no reason given"
	}
	c.appendEvent(ctx, domain.OrderEvent{
		Timestamp: c.now(),
		Phase:     domain.PhaseReject,
		OrderID:   firstNonEmpty(orderID, clientID),
		Side:      entry.Side,
		OrderType: entry.OrderType,
		Price:     entry.Price,
		Quantity:  entry.Quantity,
		Message:   fmt.Sprintf("order rejected: %s", reason),
		Severity:  domain.SeverityError,
	})
}

func (c *Controller) handleCanceled(ctx context.Context, msg engine.PrivateMessage) {
	orderID := string(msg.OrderID)

	c.mu.Lock()
	entry, _ := c.ledger.Resolve(orderID, c.openOrders)
	c.ledger.Remove(orderID, entry.OrderID, entry.ClientOrderID, entry.ServerOrderID)
	c.mu.Unlock()

	c.appendEvent(ctx, domain.OrderEvent{
		Timestamp: c.now(),
		Phase:     domain.PhaseCanceled,
		OrderID:   orderID,
		Side:      entry.Side,
		OrderType: entry.OrderType,
		Price:     entry.Price,
		Quantity:  entry.Quantity,
		Message:   fmt.Sprintf("order %s canceled", orderID),
		Severity:  domain.SeverityWarning,
	})
	c.refreshOrders(ctx)
}

// handleFill records one execution. The pending entry is retained because
// a partial fill leaves the rest of the order live; the engine sends
// CANCELED or drops the order from the open list when it is done.
func (c *Controller) handleFill(ctx context.Context, msg engine.PrivateMessage) {
	fill := msg.ToDomainFill(c.now())

	c.mu.Lock()
	added := c.addFillLocked(fill)
	entry, _ := c.ledger.Resolve(fill.OrderID, c.openOrders)
	rec := c.recorder
	sid := c.sessionID
	c.mu.Unlock()

	if !added {
		return // duplicate delivery
	}

	price := fill.Price
	c.appendEvent(ctx, domain.OrderEvent{
		Timestamp: fill.Timestamp,
		Phase:     domain.PhaseFill,
		OrderID:   fill.OrderID,
		Side:      fill.Side,
		OrderType: entry.OrderType,
		Price:     &price,
		Quantity:  fill.Quantity,
		Message:   fmt.Sprintf("filled %d @ %.3f", fill.Quantity, fill.Price),
		Severity:  domain.SeveritySuccess,
	})

	if rec != nil {
		if err := rec.RecordFills(ctx, sid, []domain.Fill{fill}); err != nil {
			c.logger.Warn("record fill failed", slog.String("error", err.Error()))
		}
	}

	c.refreshAccount(ctx)
	c.refreshOrders(ctx)
}

// addFillLocked prepends a fill, newest first, dropping duplicates by
// FillID and truncating to the configured limit. Returns false on a
// duplicate. Caller must hold c.mu.
func (c *Controller) addFillLocked(fill domain.Fill) bool {
	if fill.FillID != "" {
		for _, existing := range c.fills {
			if existing.FillID == fill.FillID {
				return false
			}
		}
	}
	c.fills = append([]domain.Fill{fill}, c.fills...)
	if len(c.fills) > c.cfg.FillLimit {
		c.fills = c.fills[:c.cfg.FillLimit]
	}
	return true
}

// --------------------------------------------------------------------------
// User commands
// --------------------------------------------------------------------------

// SubmitOrder validates and submits an order. The pending entry is inserted
// before the HTTP call so that a fast acknowledgment on the private feed
// always finds it; on submission failure the entry is removed again. An
// unauthenticated session is refused locally without touching the network.
func (c *Controller) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.PendingOrder, error) {
	if err := validateOrder(req); err != nil {
		return domain.PendingOrder{}, err
	}

	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		c.appendEvent(ctx, domain.OrderEvent{
			Timestamp: c.now(),
			Phase:     domain.PhaseSubmitFailed,
			Side:      req.Side,
			OrderType: req.OrderType,
			Price:     req.Price,
			Quantity:  req.Quantity,
			Message:   "not authenticated",
			Severity:  domain.SeverityError,
		})
		return domain.PendingOrder{}, fmt.Errorf("session: submit order: %w", domain.ErrNoAuth)
	}
	entry := c.ledger.Submit(req)
	c.mu.Unlock()

	c.appendEvent(ctx, domain.OrderEvent{
		Timestamp: entry.SubmittedAt,
		Phase:     domain.PhaseSubmit,
		OrderID:   entry.ClientOrderID,
		Side:      req.Side,
		OrderType: req.OrderType,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Message:   fmt.Sprintf("submitting %s %s", req.Side, req.OrderType),
		Severity:  domain.SeverityInfo,
	})

	resp, err := c.api.PostOrder(ctx, req, entry.ClientOrderID)
	if err != nil {
		c.mu.Lock()
		c.ledger.Remove(entry.ClientOrderID, string(resp.OrderID))
		c.mu.Unlock()

		reason := resp.Message
		if reason == "" {
			reason = err.Error()
		}
		c.appendEvent(ctx, domain.OrderEvent{
			Timestamp: c.now(),
			Phase:     domain.PhaseSubmitFailed,
			OrderID:   firstNonEmpty(string(resp.OrderID), entry.ClientOrderID),
			Side:      req.Side,
			OrderType: req.OrderType,
			Price:     req.Price,
			Quantity:  req.Quantity,
			Message:   fmt.Sprintf("submission failed: %s", reason),
			Severity:  domain.SeverityError,
		})
		c.handleAuthError(ctx, err)
		return domain.PendingOrder{}, fmt.Errorf("session: submit order: %w", err)
	}

	// The response may already name the server id; rekey eagerly so a
	// private-feed event racing ahead of the ACK still resolves.
	if serverID := string(resp.OrderID); serverID != "" {
		c.mu.Lock()
		c.ledger.Rekey(entry.ClientOrderID, serverID)
		entry, _ = c.ledger.Resolve(serverID, nil)
		c.mu.Unlock()
	}
	return entry, nil
}

// SubmitScript records each parseable line in the order log and uploads
// the script verbatim for server-side replay.
func (c *Controller) SubmitScript(ctx context.Context, lines []string) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return fmt.Errorf("session: submit script: %w", domain.ErrNoAuth)
	}

	for _, ev := range script.Events(lines, c.now()) {
		c.appendEvent(ctx, ev)
	}

	if err := c.api.PostScript(ctx, lines); err != nil {
		c.appendEvent(ctx, domain.OrderEvent{
			Timestamp: c.now(),
			Phase:     domain.PhaseScript,
			Message:   fmt.Sprintf("script upload failed: %v", err),
			Severity:  domain.SeverityError,
		})
		c.handleAuthError(ctx, err)
		return fmt.Errorf("session: submit script: %w", err)
	}

	c.refreshOrders(ctx)
	c.refreshAccount(ctx)
	return nil
}

// ResetEngine asks the engine to clear all books and orders. Local market
// state is not cleared here; the empty trade broadcast on the public feed
// does it for every connected client, this one included.
func (c *Controller) ResetEngine(ctx context.Context) error {
	if err := c.api.Reset(ctx); err != nil {
		c.handleAuthError(ctx, err)
		return fmt.Errorf("session: reset engine: %w", err)
	}
	c.appendEvent(ctx, domain.OrderEvent{
		Timestamp: c.now(),
		Phase:     domain.PhaseReset,
		Message:   "engine reset requested",
		Severity:  domain.SeverityWarning,
	})
	if c.Token() != "" {
		c.refreshAccount(ctx)
		c.refreshOrders(ctx)
		c.refreshFills(ctx)
	}
	return nil
}

// --------------------------------------------------------------------------
// Authentication
// --------------------------------------------------------------------------

// Authenticate installs a bearer token and loads the user-scoped state. A
// failed initial load clears the token again and returns the error.
func (c *Controller) Authenticate(ctx context.Context, token string) error {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	account, err := c.api.GetAccount(ctx)
	if err != nil {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return fmt.Errorf("session: authenticate: %w", err)
	}

	c.mu.Lock()
	c.account = &account
	c.viewerID = account.UserID
	c.mu.Unlock()

	c.appendEvent(ctx, domain.OrderEvent{
		Timestamp: c.now(),
		Phase:     domain.PhaseSession,
		Message:   fmt.Sprintf("authenticated as %s", account.UserID),
		Severity:  domain.SeveritySuccess,
	})

	c.refreshOrders(ctx)
	c.refreshFills(ctx)
	return nil
}

// Deauthenticate drops the token and all user-scoped state: account,
// positions, open orders, fills, and the pending ledger. Market state
// (book, tape, price history) stays; it was never user-scoped.
func (c *Controller) Deauthenticate(ctx context.Context, reason string) {
	c.mu.Lock()
	alreadyOut := c.token == ""
	c.token = ""
	c.account = nil
	c.viewerID = ""
	c.openOrders = nil
	c.fills = nil
	c.ledger.Clear()
	c.statuses.Private = domain.ConnIdle
	hook := c.onDeauth
	c.mu.Unlock()

	if alreadyOut {
		return
	}

	c.logger.Info("session deauthenticated", slog.String("reason", reason))
	c.appendEvent(ctx, domain.OrderEvent{
		Timestamp: c.now(),
		Phase:     domain.PhaseSession,
		Message:   fmt.Sprintf("signed out: %s", reason),
		Severity:  domain.SeverityWarning,
	})
	c.publishStatus(ctx)

	if hook != nil {
		hook()
	}
}

// handleAuthError de-authenticates on any unauthorized response, wherever
// it surfaces. The engine invalidates tokens on restart; every 401 means
// the session is gone.
func (c *Controller) handleAuthError(ctx context.Context, err error) {
	if errors.Is(err, domain.ErrUnauthorized) {
		c.Deauthenticate(ctx, "session expired")
	}
}

// --------------------------------------------------------------------------
// Feed status
// --------------------------------------------------------------------------

// OnPublicStatus records a public feed transition. Usable directly as an
// engine.StatusHandler.
func (c *Controller) OnPublicStatus(st domain.ConnStatus) {
	c.mu.Lock()
	c.statuses.Public = st
	c.mu.Unlock()
	c.publishStatus(context.Background())
}

// OnPrivateStatus records a private feed transition.
func (c *Controller) OnPrivateStatus(st domain.ConnStatus) {
	c.mu.Lock()
	c.statuses.Private = st
	c.mu.Unlock()
	c.publishStatus(context.Background())
}

// --------------------------------------------------------------------------
// Refresh
// --------------------------------------------------------------------------

// refreshAccount reloads cash and positions, sorting positions by ticker
// for stable display.
func (c *Controller) refreshAccount(ctx context.Context) {
	account, err := c.api.GetAccount(ctx)
	if err != nil {
		c.logger.Warn("account refresh failed", slog.String("error", err.Error()))
		c.handleAuthError(ctx, err)
		return
	}
	sortPositions(account.Positions)

	c.mu.Lock()
	c.account = &account
	c.viewerID = account.UserID
	c.mu.Unlock()
}

func (c *Controller) refreshOrders(ctx context.Context) {
	orders, err := c.api.GetOrders(ctx)
	if err != nil {
		c.logger.Warn("orders refresh failed", slog.String("error", err.Error()))
		c.handleAuthError(ctx, err)
		return
	}

	c.mu.Lock()
	c.openOrders = orders
	c.mu.Unlock()
	c.publish(ctx, domain.ChannelOrders, orders)
}

func (c *Controller) refreshFills(ctx context.Context) {
	fills, err := c.api.GetFills(ctx)
	if err != nil {
		c.logger.Warn("fills refresh failed", slog.String("error", err.Error()))
		c.handleAuthError(ctx, err)
		return
	}

	c.mu.Lock()
	// Server history replaces local state wholesale, newest first. Fills
	// from the own-fills endpoint may omit the user id; they are ours.
	c.fills = nil
	for i := len(fills) - 1; i >= 0; i-- {
		f := fills[i]
		if f.UserID == "" {
			f.UserID = c.viewerID
		}
		c.addFillLocked(f)
	}
	c.mu.Unlock()
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// BookView returns the current depth-limited book projection.
func (c *Controller) BookView() domain.BookView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconciler.View()
}

// PriceHistory returns the best-bid/ask series, oldest first.
func (c *Controller) PriceHistory() []domain.PricePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconciler.History()
}

// Trades returns the tape, oldest first, with each trade's ViewerRole
// computed against the current viewer. Roles are derived at read time so a
// login or logout re-labels the whole tape.
func (c *Controller) Trades() []domain.Trade {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tapeLocked()
}

func (c *Controller) tapeLocked() []domain.Trade {
	tape := c.trades.Snapshot()
	for i := range tape {
		tape[i].ViewerRole = tape[i].RoleFor(c.viewerID)
	}
	return tape
}

// Events returns the order log, oldest first.
func (c *Controller) Events() []domain.OrderEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events.Snapshot()
}

// Fills returns execution records, newest first.
func (c *Controller) Fills() []domain.Fill {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Fill, len(c.fills))
	copy(out, c.fills)
	return out
}

// Account returns the authenticated account, or nil when signed out.
func (c *Controller) Account() *domain.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.account == nil {
		return nil
	}
	account := *c.account
	account.Positions = append([]domain.Position(nil), c.account.Positions...)
	return &account
}

// OpenOrders returns the resting orders last reported by the engine.
func (c *Controller) OpenOrders() []domain.OpenOrder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.OpenOrder(nil), c.openOrders...)
}

// PendingCount returns the number of in-flight ledger entries.
func (c *Controller) PendingCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.Len()
}

// ResolveOrder resolves any known identifier for one of this session's
// orders against the pending ledger and the open-orders list.
func (c *Controller) ResolveOrder(id string) (domain.PendingOrder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.Resolve(id, c.openOrders)
}

// Statuses returns the connection state of both feeds.
func (c *Controller) Statuses() FeedStatuses {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// appendEvent adds one order-log line, forwards it to the recorder, and
// republishes the log on the bus.
func (c *Controller) appendEvent(ctx context.Context, ev domain.OrderEvent) {
	c.mu.Lock()
	c.events.Append(ev)
	rec := c.recorder
	sid := c.sessionID
	log := c.events.Snapshot()
	c.mu.Unlock()

	if rec != nil {
		if err := rec.RecordEvents(ctx, sid, []domain.OrderEvent{ev}); err != nil {
			c.logger.Warn("record event failed", slog.String("error", err.Error()))
		}
	}
	c.publish(ctx, domain.ChannelOrders, log)
}

// publish serializes v onto the bus channel; a nil bus makes it a no-op.
func (c *Controller) publish(ctx context.Context, channel string, v any) {
	c.mu.RLock()
	bus := c.bus
	c.mu.RUnlock()
	if bus == nil {
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("marshal bus payload failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		c.logger.Warn("bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}

func (c *Controller) publishStatus(ctx context.Context) {
	c.mu.RLock()
	statuses := c.statuses
	c.mu.RUnlock()
	c.publish(ctx, domain.ChannelStatus, statuses)
}

// validateOrder refuses requests the engine would reject anyway, keeping
// obviously bad orders out of the ledger and the log.
func validateOrder(req domain.OrderRequest) error {
	if req.Ticker == "" {
		return fmt.Errorf("session: missing ticker: %w", domain.ErrInvalidOrder)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("session: quantity must be positive: %w", domain.ErrInvalidOrder)
	}
	switch req.Side {
	case domain.OrderSideBuy, domain.OrderSideSell:
	default:
		return fmt.Errorf("session: unknown side %q: %w", req.Side, domain.ErrInvalidOrder)
	}
	switch req.OrderType {
	case domain.OrderTypeLimit, domain.OrderTypeStopLimit:
		if req.Price == nil {
			return fmt.Errorf("session: %s requires a price: %w", req.OrderType, domain.ErrInvalidOrder)
		}
	case domain.OrderTypeMarket:
	case domain.OrderTypeStopMarket:
	default:
		return fmt.Errorf("session: unknown order type %q: %w", req.OrderType, domain.ErrInvalidOrder)
	}
	if (req.OrderType == domain.OrderTypeStopMarket || req.OrderType == domain.OrderTypeStopLimit) && req.StopPrice == nil {
		return fmt.Errorf("session: %s requires a stop price: %w", req.OrderType, domain.ErrInvalidOrder)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sortPositions orders positions by ticker for stable display.
func sortPositions(positions []domain.Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Ticker < positions[j].Ticker
	})
}

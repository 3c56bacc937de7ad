package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/tradematcher/deskclient/internal/domain"
	"github.com/tradematcher/deskclient/internal/platform/engine"
)

// fakeEngine scripts REST responses and records calls.
type fakeEngine struct {
	orderResp  engine.OrderResponse
	orderErr   error
	scriptErr  error
	resetErr   error
	account    domain.Account
	accountErr error
	orders     []domain.OpenOrder
	ordersErr  error
	fills      []domain.Fill
	fillsErr   error

	postedOrders  []string // client order ids
	postedScripts [][]string
	resets        int
}

func (f *fakeEngine) PostOrder(_ context.Context, _ domain.OrderRequest, clientOrderID string) (engine.OrderResponse, error) {
	f.postedOrders = append(f.postedOrders, clientOrderID)
	return f.orderResp, f.orderErr
}

func (f *fakeEngine) PostScript(_ context.Context, lines []string) error {
	f.postedScripts = append(f.postedScripts, lines)
	return f.scriptErr
}

func (f *fakeEngine) Reset(context.Context) error {
	f.resets++
	return f.resetErr
}

func (f *fakeEngine) GetAccount(context.Context) (domain.Account, error) {
	return f.account, f.accountErr
}

func (f *fakeEngine) GetOrders(context.Context) ([]domain.OpenOrder, error) {
	return f.orders, f.ordersErr
}

func (f *fakeEngine) GetFills(context.Context) ([]domain.Fill, error) {
	return f.fills, f.fillsErr
}

func newTestController(api EngineAPI) *Controller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, api, Config{})
}

func authenticate(t *testing.T, c *Controller, api *fakeEngine, userID string) {
	t.Helper()
	api.account = domain.Account{UserID: userID, Cash: 100000}
	if err := c.Authenticate(context.Background(), "tok-"+userID); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}

func limitBuy(price float64, qty int64) domain.OrderRequest {
	return domain.OrderRequest{
		Ticker:    "AAPL",
		Side:      domain.OrderSideBuy,
		OrderType: domain.OrderTypeLimit,
		Price:     &price,
		Quantity:  qty,
	}
}

func TestSubmitOrderRequiresAuth(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)

	_, err := c.SubmitOrder(context.Background(), limitBuy(100, 10))
	if !errors.Is(err, domain.ErrNoAuth) {
		t.Fatalf("err = %v, want ErrNoAuth", err)
	}
	if len(api.postedOrders) != 0 {
		t.Error("unauthenticated submit reached the network")
	}

	events := c.Events()
	if len(events) == 0 || events[len(events)-1].Phase != domain.PhaseSubmitFailed {
		t.Errorf("events = %+v, want trailing SUBMIT_FAILED", events)
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)
	authenticate(t, c, api, "alice")

	price := 100.0
	tests := []struct {
		name string
		req  domain.OrderRequest
	}{
		{"zero quantity", domain.OrderRequest{Ticker: "AAPL", Side: domain.OrderSideBuy, OrderType: domain.OrderTypeMarket}},
		{"missing ticker", domain.OrderRequest{Side: domain.OrderSideBuy, OrderType: domain.OrderTypeMarket, Quantity: 1}},
		{"limit without price", domain.OrderRequest{Ticker: "AAPL", Side: domain.OrderSideBuy, OrderType: domain.OrderTypeLimit, Quantity: 1}},
		{"bad side", domain.OrderRequest{Ticker: "AAPL", Side: "HOLD", OrderType: domain.OrderTypeMarket, Quantity: 1}},
		{"stop limit without stop", domain.OrderRequest{Ticker: "AAPL", Side: domain.OrderSideSell, OrderType: domain.OrderTypeStopLimit, Price: &price, Quantity: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.SubmitOrder(context.Background(), tt.req); !errors.Is(err, domain.ErrInvalidOrder) {
				t.Errorf("err = %v, want ErrInvalidOrder", err)
			}
		})
	}
	if len(api.postedOrders) != 0 {
		t.Error("invalid order reached the network")
	}
}

func TestSubmitOrderRekeysOnResponse(t *testing.T) {
	api := &fakeEngine{orderResp: engine.OrderResponse{Status: "ACCEPTED", OrderID: "SRV-1"}}
	c := newTestController(api)
	authenticate(t, c, api, "alice")

	entry, err := c.SubmitOrder(context.Background(), limitBuy(100.5, 10))
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if entry.OrderID != "SRV-1" {
		t.Errorf("OrderID = %q, want SRV-1", entry.OrderID)
	}
	if entry.ClientOrderID == "" {
		t.Error("ClientOrderID lost in rekey")
	}

	// Both identifiers resolve to the same entry.
	for _, id := range []string{"SRV-1", entry.ClientOrderID} {
		got, ok := c.ResolveOrder(id)
		if !ok || got.OrderID != "SRV-1" {
			t.Errorf("ResolveOrder(%q) = %+v, %v", id, got, ok)
		}
	}
	if c.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", c.PendingCount())
	}
}

func TestSubmitOrderFailureRemovesPending(t *testing.T) {
	api := &fakeEngine{
		orderResp: engine.OrderResponse{Status: "REJECTED", OrderID: "SRV-2", Message: "insufficient funds"},
		orderErr:  fmt.Errorf("engine: order rejected: insufficient funds"),
	}
	c := newTestController(api)
	authenticate(t, c, api, "alice")

	if _, err := c.SubmitOrder(context.Background(), limitBuy(100, 10)); err == nil {
		t.Fatal("SubmitOrder succeeded, want error")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", c.PendingCount())
	}

	events := c.Events()
	last := events[len(events)-1]
	if last.Phase != domain.PhaseSubmitFailed || last.Severity != domain.SeverityError {
		t.Errorf("last event = %+v", last)
	}
}

func TestAckRekeysAndRetains(t *testing.T) {
	api := &fakeEngine{orderResp: engine.OrderResponse{Status: "ACCEPTED"}}
	c := newTestController(api)
	authenticate(t, c, api, "alice")

	entry, err := c.SubmitOrder(context.Background(), limitBuy(100, 10))
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	ack := fmt.Sprintf(`{"type":"ACK","orderId":"SRV-9","clientOrderId":%q}`, entry.ClientOrderID)
	c.HandlePrivateMessage(context.Background(), []byte(ack))

	for _, id := range []string{"SRV-9", entry.ClientOrderID} {
		got, ok := c.ResolveOrder(id)
		if !ok {
			t.Fatalf("ResolveOrder(%q) not found after ACK", id)
		}
		if got.ClientOrderID != entry.ClientOrderID || got.ServerOrderID != "SRV-9" {
			t.Errorf("ResolveOrder(%q) = %+v", id, got)
		}
	}
	if c.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", c.PendingCount())
	}
}

func TestRejectRemovesPending(t *testing.T) {
	api := &fakeEngine{orderResp: engine.OrderResponse{Status: "ACCEPTED"}}
	c := newTestController(api)
	authenticate(t, c, api, "alice")

	entry, _ := c.SubmitOrder(context.Background(), limitBuy(100, 10))
	reject := fmt.Sprintf(`{"type":"REJECT","clientOrderId":%q,"reason":"price out of band"}`, entry.ClientOrderID)
	c.HandlePrivateMessage(context.Background(), []byte(reject))

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", c.PendingCount())
	}
	events := c.Events()
	last := events[len(events)-1]
	if last.Phase != domain.PhaseReject || last.Severity != domain.SeverityError {
		t.Errorf("last event = %+v", last)
	}
}

func TestCanceledRemovesPending(t *testing.T) {
	api := &fakeEngine{orderResp: engine.OrderResponse{Status: "ACCEPTED", OrderID: "SRV-3"}}
	c := newTestController(api)
	authenticate(t, c, api, "alice")

	if _, err := c.SubmitOrder(context.Background(), limitBuy(100, 10)); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	c.HandlePrivateMessage(context.Background(), []byte(`{"type":"CANCELED","orderId":"SRV-3"}`))

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", c.PendingCount())
	}
}

func TestFillRetainsPendingAndDedups(t *testing.T) {
	api := &fakeEngine{orderResp: engine.OrderResponse{Status: "ACCEPTED", OrderID: "SRV-4"}}
	c := newTestController(api)
	authenticate(t, c, api, "alice")

	if _, err := c.SubmitOrder(context.Background(), limitBuy(100, 10)); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	fill := `{"type":"FILL","orderId":"SRV-4","fillId":"F-1","side":"BUY","price":100.5,"quantity":4,"timestamp":"2026-03-01T12:00:00Z"}`
	c.HandlePrivateMessage(context.Background(), []byte(fill))
	c.HandlePrivateMessage(context.Background(), []byte(fill)) // duplicate delivery

	fills := c.Fills()
	if len(fills) != 1 {
		t.Fatalf("len(fills) = %d, want 1 after duplicate delivery", len(fills))
	}
	if fills[0].FillID != "F-1" || fills[0].Quantity != 4 {
		t.Errorf("fills[0] = %+v", fills[0])
	}
	// A partial fill leaves the order live.
	if c.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", c.PendingCount())
	}
}

func TestFillsNewestFirstAndBounded(t *testing.T) {
	api := &fakeEngine{}
	c := New(slog.New(slog.NewTextHandler(io.Discard, nil)), api, Config{FillLimit: 3})
	authenticate(t, c, api, "alice")

	for i := 1; i <= 5; i++ {
		msg := fmt.Sprintf(`{"type":"FILL","orderId":"SRV-5","fillId":"F-%d","side":"SELL","price":99,"quantity":1}`, i)
		c.HandlePrivateMessage(context.Background(), []byte(msg))
	}

	fills := c.Fills()
	if len(fills) != 3 {
		t.Fatalf("len(fills) = %d, want 3", len(fills))
	}
	for i, want := range []string{"F-5", "F-4", "F-3"} {
		if fills[i].FillID != want {
			t.Errorf("fills[%d].FillID = %q, want %q", i, fills[i].FillID, want)
		}
	}
}

func TestUnknownPrivateEventIgnored(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)

	c.HandlePrivateMessage(context.Background(), []byte(`{"type":"HEARTBEAT"}`))
	c.HandlePrivateMessage(context.Background(), []byte(`garbage`))

	if got := len(c.Events()); got != 0 {
		t.Errorf("len(events) = %d, want 0", got)
	}
}

func TestPublicSnapshotAndDelta(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)
	ctx := context.Background()

	c.HandlePublicMessage(ctx, []byte(`{"type":"SNAPSHOT","ticker":"AAPL","bids":[{"price":100.5,"quantity":10}],"asks":[{"price":101,"quantity":5}]}`))

	view := c.BookView()
	if len(view.Bids) != 1 || view.Bids[0].Quantity != 10 {
		t.Fatalf("Bids = %+v", view.Bids)
	}

	c.HandlePublicMessage(ctx, []byte(`{"type":"LOB_UPDATE","changes":[["BUY","100.500","25"],["SELL","101.000","0"]]}`))

	view = c.BookView()
	if len(view.Bids) != 1 || view.Bids[0].Quantity != 25 {
		t.Errorf("Bids after delta = %+v", view.Bids)
	}
	if len(view.Asks) != 0 {
		t.Errorf("Asks after delete = %+v", view.Asks)
	}
	if got := len(c.PriceHistory()); got != 2 {
		t.Errorf("len(PriceHistory) = %d, want 2 (one point per message)", got)
	}
}

func TestMalformedPublicMessageIgnored(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)
	ctx := context.Background()

	c.HandlePublicMessage(ctx, []byte(`{"type":"SNAPSHOT","bids":[{"price":100,"quantity":1}],"asks":[]}`))
	before := c.BookView()

	c.HandlePublicMessage(ctx, []byte(`{"type":"SNAPSHOT","bids":[{"price":1,"quantity":1}]}`))
	c.HandlePublicMessage(ctx, []byte(`not json at all`))

	after := c.BookView()
	if len(after.Bids) != len(before.Bids) || after.Bids[0] != before.Bids[0] {
		t.Errorf("book changed on malformed input: %+v -> %+v", before, after)
	}
}

func TestTradesCarryViewerRole(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)
	ctx := context.Background()

	c.HandlePublicMessage(ctx, []byte(`[{"bidTrade":{"orderId":"B-1","userId":"alice","price":100,"quantity":2},"askTrade":{"orderId":"S-1","userId":"bob"}}]`))

	trades := c.Trades()
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if trades[0].ViewerRole != domain.ViewerRoleNone {
		t.Errorf("ViewerRole before auth = %q, want none", trades[0].ViewerRole)
	}

	authenticate(t, c, api, "alice")
	trades = c.Trades()
	if trades[0].ViewerRole != domain.ViewerRoleBid {
		t.Errorf("ViewerRole after auth = %q, want bid", trades[0].ViewerRole)
	}
}

func TestEngineResetClearsMarketStateOnly(t *testing.T) {
	api := &fakeEngine{orderResp: engine.OrderResponse{Status: "ACCEPTED", OrderID: "SRV-6"}}
	c := newTestController(api)
	ctx := context.Background()
	authenticate(t, c, api, "alice")

	c.HandlePublicMessage(ctx, []byte(`{"type":"SNAPSHOT","bids":[{"price":100,"quantity":1}],"asks":[]}`))
	c.HandlePublicMessage(ctx, []byte(`[{"bidTrade":{"orderId":"B-1","userId":"alice","price":100,"quantity":1}}]`))
	if _, err := c.SubmitOrder(ctx, limitBuy(100, 1)); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	// Empty trade list on the public feed signals an engine reset.
	c.HandlePublicMessage(ctx, []byte(`[]`))

	if view := c.BookView(); len(view.Bids) != 0 || len(view.Asks) != 0 {
		t.Errorf("book not cleared: %+v", view)
	}
	if got := len(c.Trades()); got != 0 {
		t.Errorf("tape not cleared: %d trades", got)
	}
	if got := len(c.PriceHistory()); got != 0 {
		t.Errorf("price history not cleared: %d points", got)
	}
	// User-scoped state survives.
	if c.Account() == nil {
		t.Error("account cleared by engine reset")
	}
	if c.Token() == "" {
		t.Error("token cleared by engine reset")
	}
	if c.PendingCount() != 1 {
		t.Errorf("pending ledger cleared by engine reset: %d", c.PendingCount())
	}
}

func TestUnauthorizedResponseDeauthenticates(t *testing.T) {
	api := &fakeEngine{orderResp: engine.OrderResponse{Status: "ACCEPTED", OrderID: "SRV-7"}}
	c := newTestController(api)
	ctx := context.Background()
	authenticate(t, c, api, "alice")

	c.HandlePublicMessage(ctx, []byte(`{"type":"SNAPSHOT","bids":[{"price":100,"quantity":1}],"asks":[]}`))
	if _, err := c.SubmitOrder(ctx, limitBuy(100, 1)); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	hookCalled := false
	c.SetDeauthHook(func() { hookCalled = true })

	api.orderErr = fmt.Errorf("engine: post order: %w", domain.ErrUnauthorized)
	if _, err := c.SubmitOrder(ctx, limitBuy(100, 1)); err == nil {
		t.Fatal("SubmitOrder succeeded, want error")
	}

	if c.Token() != "" {
		t.Error("token retained after 401")
	}
	if c.Account() != nil {
		t.Error("account retained after 401")
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending ledger retained after 401: %d", c.PendingCount())
	}
	if !hookCalled {
		t.Error("deauth hook not invoked")
	}
	// Market state is not user-scoped and survives.
	if view := c.BookView(); len(view.Bids) != 1 {
		t.Errorf("book cleared by 401: %+v", view)
	}
	if got := c.Statuses().Private; got != domain.ConnIdle {
		t.Errorf("private status = %q, want idle", got)
	}
}

func TestSubmitScript(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)
	ctx := context.Background()
	authenticate(t, c, api, "alice")

	lines := []string{
		"A B LIMIT 100.5 10 ORD1",
		"this line does not parse",
		"C ORD1",
	}
	if err := c.SubmitScript(ctx, lines); err != nil {
		t.Fatalf("SubmitScript: %v", err)
	}

	if len(api.postedScripts) != 1 || len(api.postedScripts[0]) != 3 {
		t.Fatalf("postedScripts = %+v, want script uploaded verbatim", api.postedScripts)
	}

	var scriptEvents int
	for _, ev := range c.Events() {
		if ev.Phase == domain.PhaseScript {
			scriptEvents++
		}
	}
	if scriptEvents != 2 {
		t.Errorf("script events = %d, want 2 (unparseable line skipped)", scriptEvents)
	}
}

func TestSubmitScriptRequiresAuth(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)

	err := c.SubmitScript(context.Background(), []string{"A B LIMIT 1 1 X"})
	if !errors.Is(err, domain.ErrNoAuth) {
		t.Fatalf("err = %v, want ErrNoAuth", err)
	}
	if len(api.postedScripts) != 0 {
		t.Error("unauthenticated script reached the network")
	}
}

func TestResetEngine(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)

	if err := c.ResetEngine(context.Background()); err != nil {
		t.Fatalf("ResetEngine: %v", err)
	}
	if api.resets != 1 {
		t.Errorf("resets = %d, want 1", api.resets)
	}
}

func TestAuthenticateFailureClearsToken(t *testing.T) {
	api := &fakeEngine{accountErr: domain.ErrUnauthorized}
	c := newTestController(api)

	if err := c.Authenticate(context.Background(), "bad-token"); err == nil {
		t.Fatal("Authenticate succeeded, want error")
	}
	if c.Token() != "" {
		t.Error("token retained after failed authentication")
	}
}

func TestAccountPositionsSorted(t *testing.T) {
	api := &fakeEngine{orderResp: engine.OrderResponse{Status: "ACCEPTED", OrderID: "SRV-8"}}
	c := newTestController(api)
	ctx := context.Background()
	authenticate(t, c, api, "alice")

	api.account = domain.Account{
		UserID: "alice",
		Cash:   50,
		Positions: []domain.Position{
			{Ticker: "MSFT", Quantity: 1},
			{Ticker: "AAPL", Quantity: 2},
		},
	}

	// A fill triggers the account refresh that sorts positions.
	if _, err := c.SubmitOrder(ctx, limitBuy(100, 1)); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	c.HandlePrivateMessage(ctx, []byte(`{"type":"FILL","orderId":"SRV-8","fillId":"F-9","side":"BUY","price":100,"quantity":1}`))

	account := c.Account()
	if account == nil {
		t.Fatal("Account() = nil")
	}
	if len(account.Positions) != 2 || account.Positions[0].Ticker != "AAPL" {
		t.Errorf("Positions = %+v, want sorted by ticker", account.Positions)
	}
}

func TestFeedStatusTransitions(t *testing.T) {
	api := &fakeEngine{}
	c := newTestController(api)

	if got := c.Statuses(); got.Public != domain.ConnIdle || got.Private != domain.ConnIdle {
		t.Fatalf("initial statuses = %+v", got)
	}

	c.OnPublicStatus(domain.ConnConnecting)
	c.OnPublicStatus(domain.ConnConnected)
	c.OnPrivateStatus(domain.ConnConnected)

	got := c.Statuses()
	if got.Public != domain.ConnConnected || got.Private != domain.ConnConnected {
		t.Errorf("statuses = %+v", got)
	}
}

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tradematcher/deskclient/internal/domain"
)

// TokenSource returns the current bearer token, or "" when the session is
// not authenticated. Reading it per request keeps the client valid across
// re-authentication without rebuilding it.
type TokenSource func() string

// RestClient is the REST client for the engine's HTTP API. It handles
// order and script submission, engine reset, and account queries.
type RestClient struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

// NewRestClient creates a new engine REST client.
//
// baseURL is the API root, e.g. "http://localhost:8080". token supplies
// the bearer token applied to every request; it may return "" for
// public-only use.
func NewRestClient(baseURL string, token TokenSource) *RestClient {
	if token == nil {
		token = func() string { return "" }
	}
	return &RestClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		token: token,
	}
}

// PostOrder submits an order under the given client order id. The returned
// OrderResponse is populated even when err is non-nil: the engine names the
// assigned server order id and a reason in rejection bodies too, and the
// caller needs both to reconcile its pending entry.
func (c *RestClient) PostOrder(ctx context.Context, req domain.OrderRequest, clientOrderID string) (OrderResponse, error) {
	status, respBody, err := c.do(ctx, http.MethodPost, "/api/order", orderBody(req, clientOrderID))
	if err != nil {
		return OrderResponse{}, fmt.Errorf("engine: post order: %w", err)
	}

	var result OrderResponse
	// Rejection bodies are best-effort JSON; a decode failure still yields
	// the status error below.
	_ = json.Unmarshal(respBody, &result)

	if err := checkHTTPStatus(status, respBody); err != nil {
		return result, fmt.Errorf("engine: post order: %w", err)
	}
	if result.Status != "" && result.Status != "ACCEPTED" && result.Status != "OK" {
		return result, fmt.Errorf("engine: order rejected: %s", result.Message)
	}
	return result, nil
}

// PostScript submits a batch of order-script lines for server-side replay.
func (c *RestClient) PostScript(ctx context.Context, lines []string) error {
	status, respBody, err := c.do(ctx, http.MethodPost, "/api/script", lines)
	if err != nil {
		return fmt.Errorf("engine: post script: %w", err)
	}
	if err := checkHTTPStatus(status, respBody); err != nil {
		return fmt.Errorf("engine: post script: %w", err)
	}
	return nil
}

// Reset asks the engine to drop all books, orders, and fills. Connected
// clients learn of it through the empty trade broadcast on the public feed.
func (c *RestClient) Reset(ctx context.Context) error {
	status, respBody, err := c.do(ctx, http.MethodPost, "/api/reset", nil)
	if err != nil {
		return fmt.Errorf("engine: reset: %w", err)
	}
	if err := checkHTTPStatus(status, respBody); err != nil {
		return fmt.Errorf("engine: reset: %w", err)
	}
	return nil
}

// GetAccount returns the authenticated user's cash and positions.
func (c *RestClient) GetAccount(ctx context.Context) (domain.Account, error) {
	status, respBody, err := c.do(ctx, http.MethodGet, "/api/account", nil)
	if err != nil {
		return domain.Account{}, fmt.Errorf("engine: get account: %w", err)
	}
	if err := checkHTTPStatus(status, respBody); err != nil {
		return domain.Account{}, fmt.Errorf("engine: get account: %w", err)
	}

	var account domain.Account
	if err := json.Unmarshal(respBody, &account); err != nil {
		return domain.Account{}, fmt.Errorf("engine: decode account: %w", err)
	}
	return account, nil
}

// GetOrders returns the authenticated user's open orders.
func (c *RestClient) GetOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	status, respBody, err := c.do(ctx, http.MethodGet, "/api/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("engine: get orders: %w", err)
	}
	if err := checkHTTPStatus(status, respBody); err != nil {
		return nil, fmt.Errorf("engine: get orders: %w", err)
	}

	var apiOrders []APIOpenOrder
	if err := json.Unmarshal(respBody, &apiOrders); err != nil {
		return nil, fmt.Errorf("engine: decode orders: %w", err)
	}
	orders := make([]domain.OpenOrder, 0, len(apiOrders))
	for i := range apiOrders {
		orders = append(orders, apiOrders[i].ToDomainOpenOrder())
	}
	return orders, nil
}

// GetFills returns the authenticated user's execution history.
func (c *RestClient) GetFills(ctx context.Context) ([]domain.Fill, error) {
	status, respBody, err := c.do(ctx, http.MethodGet, "/api/fills", nil)
	if err != nil {
		return nil, fmt.Errorf("engine: get fills: %w", err)
	}
	if err := checkHTTPStatus(status, respBody); err != nil {
		return nil, fmt.Errorf("engine: get fills: %w", err)
	}

	var apiFills []APIFill
	if err := json.Unmarshal(respBody, &apiFills); err != nil {
		return nil, fmt.Errorf("engine: decode fills: %w", err)
	}
	fills := make([]domain.Fill, 0, len(apiFills))
	for i := range apiFills {
		fills = append(fills, apiFills[i].ToDomainFill())
	}
	return fills, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do builds, authorizes, sends, and reads an HTTP request. It returns the
// status code and raw body; the error covers transport failures only, so
// callers can decode rejection bodies before classifying the status.
func (c *RestClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

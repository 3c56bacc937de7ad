package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tradematcher/deskclient/internal/domain"
)

// ConsoleControl defines the command-side methods that the control handler
// requires from the session controller.
type ConsoleControl interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.PendingOrder, error)
	SubmitScript(ctx context.Context, lines []string) error
	ResetEngine(ctx context.Context) error
	Authenticate(ctx context.Context, token string) error
	Deauthenticate(ctx context.Context, reason string)
}

// ControlHandler serves the command endpoints that forward to the engine.
type ControlHandler struct {
	console ConsoleControl
	logger  *slog.Logger
}

// NewControlHandler creates a ControlHandler over the given console.
func NewControlHandler(console ConsoleControl, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		console: console,
		logger:  logHandler(logger, "control"),
	}
}

// SubmitOrder forwards a new order to the engine.
// POST /api/order
func (h *ControlHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pending, err := h.console.SubmitOrder(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoAuth), errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, domain.ErrInvalidOrder):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		default:
			h.logger.ErrorContext(r.Context(), "submit order failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, pending)
}

// scriptRequest is the body for POST /api/script.
type scriptRequest struct {
	Lines []string `json:"lines"`
}

// SubmitScript forwards a batch of order commands to the engine.
// POST /api/script
func (h *ControlHandler) SubmitScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "lines is required")
		return
	}

	if err := h.console.SubmitScript(r.Context(), req.Lines); err != nil {
		if errors.Is(err, domain.ErrNoAuth) || errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		h.logger.ErrorContext(r.Context(), "submit script failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "submitted"})
}

// ResetEngine asks the engine to wipe its state. Local state is cleared when
// the public feed confirms the reset, not here.
// POST /api/reset
func (h *ControlHandler) ResetEngine(w http.ResponseWriter, r *http.Request) {
	if err := h.console.ResetEngine(r.Context()); err != nil {
		if errors.Is(err, domain.ErrNoAuth) || errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		h.logger.ErrorContext(r.Context(), "engine reset failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset requested"})
}

// loginRequest is the body for POST /api/login.
type loginRequest struct {
	Token string `json:"token"`
}

// Login validates a bearer token against the engine and starts an
// authenticated session.
// POST /api/login
func (h *ControlHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.console.Authenticate(r.Context(), strings.TrimSpace(req.Token)); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "token rejected")
			return
		}
		h.logger.ErrorContext(r.Context(), "login failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "authenticated"})
}

// Logout drops the authenticated session and clears user state.
// POST /api/logout
func (h *ControlHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.console.Deauthenticate(r.Context(), "logout")
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

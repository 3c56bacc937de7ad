package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradematcher/deskclient/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// MessageHandler receives each raw frame read off the feed.
type MessageHandler func(raw []byte)

// StatusHandler receives connection lifecycle transitions.
type StatusHandler func(domain.ConnStatus)

// FeedClient is a WebSocket client for one engine feed (public market data
// or the authenticated private stream). It manages the connection
// lifecycle, keeps the socket alive with pings, reconnects with
// exponential backoff, and hands every raw frame to the message handler.
// Payload interpretation lives with the caller; both feeds multiplex
// several message shapes on one socket.
type FeedClient struct {
	name  string
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	onMessage MessageHandler
	onStatus  StatusHandler

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewFeedClient creates a feed client for the given WebSocket URL.
//
// name labels the feed in errors ("public", "private"). onMessage is
// required; onStatus may be nil.
func NewFeedClient(name, wsURL string, onMessage MessageHandler, onStatus StatusHandler) *FeedClient {
	if onStatus == nil {
		onStatus = func(domain.ConnStatus) {}
	}
	return &FeedClient{
		name:      name,
		wsURL:     wsURL,
		onMessage: onMessage,
		onStatus:  onStatus,
		done:      make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and
// ping loops.
func (w *FeedClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("engine/ws: %s: %w", w.name, domain.ErrWSDisconnect)
	}

	w.onStatus(domain.ConnConnecting)

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		w.onStatus(domain.ConnError)
		return fmt.Errorf("engine/ws: %s: connect: %w", w.name, err)
	}

	w.conn = conn

	// Set up pong handler for keep-alive.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	w.onStatus(domain.ConnConnected)

	go w.readLoop()
	go w.pingLoop()

	return nil
}

// Close shuts down the WebSocket connection and stops the read loop. A
// closed client never reconnects.
func (w *FeedClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)
	w.onStatus(domain.ConnDisconnected)

	if w.conn != nil {
		// Send a close message to the server.
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// readLoop continuously reads frames from the WebSocket and hands them to
// the message handler. It runs in its own goroutine. On disconnect, it
// attempts to reconnect with exponential backoff.
func (w *FeedClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			// Check if we've been shut down.
			select {
			case <-w.done:
				return
			default:
			}

			w.onStatus(domain.ConnDisconnected)
			w.reconnect()
			return // readLoop will be restarted by reconnect -> Connect
		}

		w.onMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *FeedClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. It blocks until successful or the client is closed.
func (w *FeedClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		// Exponential backoff.
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

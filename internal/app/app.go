// Package app provides the top-level application lifecycle management for the
// desk client. It wires together all dependencies (engine clients, session
// controller, cache, recorder, archiver, dashboard server) and runs their
// goroutines until shutdown.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tradematcher/deskclient/internal/config"
	"github.com/tradematcher/deskclient/internal/crypto"
	"github.com/tradematcher/deskclient/internal/domain"
	"github.com/tradematcher/deskclient/internal/platform/engine"
	"github.com/tradematcher/deskclient/internal/server"
	"github.com/tradematcher/deskclient/internal/server/handler"
	"github.com/tradematcher/deskclient/internal/server/ws"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the feed,
// mirror, archive, and server goroutines, and blocks until the context is
// cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting desk client",
		slog.String("ticker", a.cfg.Engine.Ticker),
		slog.String("engine", a.cfg.Engine.BaseURL),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// A configured token starts the session authenticated. Failure here is
	// not fatal; the console works unauthenticated and a login can follow.
	token, err := crypto.LoadToken(crypto.TokenConfig{
		RawToken:           a.cfg.Token.RawToken,
		EncryptedTokenPath: a.cfg.Token.EncryptedTokenPath,
		TokenPassword:      a.cfg.Token.TokenPassword,
	})
	if err != nil {
		return fmt.Errorf("app: load token: %w", err)
	}
	if token != "" {
		if err := deps.Controller.Authenticate(ctx, token); err != nil {
			a.logger.Warn("initial authentication failed, continuing unauthenticated",
				slog.String("error", err.Error()),
			)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.runPublicFeed(ctx, deps) })
	g.Go(func() error { return a.runPrivateFeed(ctx, deps) })

	if deps.Bus != nil && deps.BookCache != nil {
		g.Go(func() error { return a.runBookMirror(ctx, deps) })
	}
	if deps.Archiver != nil {
		g.Go(func() error { return a.runArchiver(ctx, deps) })
	}
	if a.cfg.Server.Enabled {
		g.Go(func() error { return a.runServer(ctx, deps) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down desk client")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// runPublicFeed connects the public market feed and keeps it alive until the
// context is cancelled. Reconnects are handled inside the feed client.
func (a *App) runPublicFeed(ctx context.Context, deps *Dependencies) error {
	feed := engine.NewFeedClient(
		"public",
		a.cfg.Engine.WSURL+"/ws/public",
		func(raw []byte) { deps.Controller.HandlePublicMessage(ctx, raw) },
		deps.Controller.OnPublicStatus,
	)
	if err := feed.Connect(ctx); err != nil {
		return fmt.Errorf("app: public feed: %w", err)
	}

	<-ctx.Done()
	_ = feed.Close()
	return ctx.Err()
}

// runPrivateFeed supervises the private feed. The feed exists exactly while
// the session holds a token: a login brings it up, a logout or forced
// de-auth tears it down. The supervisor polls the controller for token
// changes and reacts to the de-auth hook immediately.
func (a *App) runPrivateFeed(ctx context.Context, deps *Dependencies) error {
	kick := make(chan struct{}, 1)
	deps.Controller.SetDeauthHook(func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	})

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var feed *engine.FeedClient
	var feedToken string

	stop := func() {
		if feed != nil {
			_ = feed.Close()
			feed = nil
			deps.Controller.OnPrivateStatus(domain.ConnIdle)
		}
		feedToken = ""
	}

	reconcile := func() {
		tok := deps.Controller.Token()
		if tok == feedToken {
			return
		}
		stop()
		if tok == "" {
			return
		}

		wsURL := a.cfg.Engine.WSURL + "/ws/private?token=" + url.QueryEscape(tok)
		f := engine.NewFeedClient(
			"private",
			wsURL,
			func(raw []byte) { deps.Controller.HandlePrivateMessage(ctx, raw) },
			deps.Controller.OnPrivateStatus,
		)
		if err := f.Connect(ctx); err != nil {
			a.logger.Warn("private feed connect failed",
				slog.String("error", err.Error()),
			)
			return
		}
		feed = f
		feedToken = tok
	}

	reconcile()
	for {
		select {
		case <-ctx.Done():
			if feed != nil {
				_ = feed.Close()
			}
			return ctx.Err()
		case <-kick:
			reconcile()
		case <-ticker.C:
			reconcile()
		}
	}
}

// runBookMirror keeps the latest book view in Redis by replaying the signal
// bus book channel into the cache.
func (a *App) runBookMirror(ctx context.Context, deps *Dependencies) error {
	views, err := deps.Bus.Subscribe(ctx, domain.ChannelBook)
	if err != nil {
		return fmt.Errorf("app: book mirror subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-views:
			if !ok {
				return nil
			}
			var view domain.BookView
			if err := json.Unmarshal(raw, &view); err != nil {
				a.logger.Warn("book mirror: bad payload", slog.String("error", err.Error()))
				continue
			}
			if err := deps.BookCache.SetView(ctx, view); err != nil {
				a.logger.Warn("book mirror: cache write failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runArchiver periodically moves aged session history to object storage.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			if err := deps.Archiver.ArchiveAll(ctx, cutoff); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runServer starts the dashboard HTTP server and shuts it down gracefully
// when the context is cancelled.
func (a *App) runServer(ctx context.Context, deps *Dependencies) error {
	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger.With(slog.String("component", "hub")), ws.Config{
			SessionID: deps.Controller.SessionID(),
			Ticker:    a.cfg.Engine.Ticker,
		})
		go func() { _ = hub.Run(ctx) }()
	}

	srvLogger := a.logger.With(slog.String("component", "server"))
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(srvLogger),
			State:   handler.NewStateHandler(deps.Controller, srvLogger),
			Control: handler.NewControlHandler(deps.Controller, srvLogger),
		},
		hub,
		srvLogger,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

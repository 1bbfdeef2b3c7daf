package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/repo-explorer/internal/config"
	"github.com/openkcm/repo-explorer/internal/middleware/bearer"
	"github.com/openkcm/repo-explorer/internal/middleware/responsewriter"
	"github.com/openkcm/repo-explorer/internal/proxy"
)

// Sessions is the login side of the session manager.
type Sessions interface {
	BeginLogin(ctx context.Context) (string, error)
	CompleteLogin(ctx context.Context, code, state string) (string, error)
	Logout(ctx context.Context, sessionID string) error
}

// Proxy forwards authenticated calls to GitHub.
type Proxy interface {
	Contents(ctx context.Context, sessionID, owner, repo, path, ref string) (proxy.Result, error)
	User(ctx context.Context, sessionID string) (proxy.Result, error)
}

// Services are the dependencies of the HTTP API.
type Services struct {
	Sessions Sessions
	Proxy    Proxy

	// AppURI is the browser application. The callback redirects there and
	// CORS allows its origin.
	AppURI string
}

// createHTTPServer creates the API http server using the given config.
func createHTTPServer(ctx context.Context, cfg *config.Config, svc Services) (*http.Server, error) {
	if err := initMeters(ctx, cfg); err != nil {
		return nil, err
	}

	appURL, err := url.Parse(svc.AppURI)
	if err != nil {
		return nil, fmt.Errorf("parsing app uri: %w", err)
	}

	api := &apiServer{
		sessions: svc.Sessions,
		proxy:    svc.Proxy,
		appURL:   appURL,
	}

	trace := newTraceMiddleware(cfg)

	mux := http.NewServeMux()
	mux.Handle("GET /auth/login", trace("Login", api.login))
	mux.Handle("GET /auth/callback", trace("Callback", api.callback))
	mux.Handle("GET /auth/user", trace("User", api.user))
	mux.Handle("POST /auth/logout", trace("Logout", api.logout))
	mux.Handle("GET /api/github/{owner}/{repo}", trace("Contents", api.contents))
	mux.Handle("GET /api/github/{owner}/{repo}/{path...}", trace("Contents", api.contents))
	mux.Handle("GET /ping", trace("Ping", pingHandlerFunc))

	var handler http.Handler = mux
	handler = bearer.SessionIDMiddleware(handler)
	handler = corsMiddleware(origin(appURL), handler)
	handler = responsewriter.ResponseWriterMiddleware(handler)

	return &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}, nil
}

// StartHTTPServer starts the HTTP API server using the given config and
// blocks until ctx is done.
func StartHTTPServer(ctx context.Context, cfg *config.Config, svc Services) error {
	server, err := createHTTPServer(ctx, cfg, svc)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create the HTTP server")
	}

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Parse network if the address if provided in the format of network://address.
	// Otherwise use tcp network by default.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}

func origin(u *url.URL) string {
	if u.Scheme == "" || u.Host == "" {
		return ""
	}

	return u.Scheme + "://" + u.Host
}

package business

import (
	"context"
	"fmt"
	"net/http"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/repo-explorer/internal/business/server"
	"github.com/openkcm/repo-explorer/internal/config"
	"github.com/openkcm/repo-explorer/internal/github"
	"github.com/openkcm/repo-explorer/internal/oauth"
	"github.com/openkcm/repo-explorer/internal/proxy"
	"github.com/openkcm/repo-explorer/pkg/session"
	sessionmemory "github.com/openkcm/repo-explorer/pkg/session/memory"
	sessionsql "github.com/openkcm/repo-explorer/pkg/session/sql"
	sessionvalkey "github.com/openkcm/repo-explorer/pkg/session/valkey"
)

// Main starts the public HTTP API server and blocks until ctx is done.
func Main(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	oauthCfg, err := config.LoadOAuth(cfg)
	if err != nil {
		return fmt.Errorf("loading oauth settings: %w", err)
	}

	store, closeFn, err := initStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session store: %w", err)
	}
	defer closeFn()

	httpClient := loadHTTPClient(cfg)

	exchanger := oauth.NewClient(oauth.Config{
		ClientID:     oauthCfg.ClientID,
		ClientSecret: oauthCfg.ClientSecret,
		RedirectURI:  oauthCfg.RedirectURI,
		Scopes:       cfg.GitHub.Scopes,
		AuthorizeURL: cfg.GitHub.AuthorizeURL,
		TokenURL:     cfg.GitHub.TokenURL,
	}, httpClient)

	ghClient, err := github.NewClient(httpClient, cfg.GitHub.APIBaseURL, cfg.GitHub.UserAgent)
	if err != nil {
		return fmt.Errorf("creating github client: %w", err)
	}

	auditLogger, err := loadAuditLogger(cfg)
	if err != nil {
		return err
	}

	sessionManager := session.NewManager(session.Config{
		SessionDuration: cfg.SessionManager.SessionDuration,
		StateSecret:     oauthCfg.StateSecret,
		StateMaxAge:     cfg.SessionManager.StateMaxAge,
		AuditObjectID:   cfg.Application.Name,
	}, store, exchanger, auditLogger)

	return server.StartHTTPServer(ctx, cfg, server.Services{
		Sessions: sessionManager,
		Proxy:    proxy.NewHandler(sessionManager, ghClient),
		AppURI:   oauthCfg.AppURI,
	})
}

// initStore opens the configured session store. closeFn releases it.
func initStore(ctx context.Context, cfg *config.Config) (_ session.Store, closeFn func(), _ error) {
	switch cfg.Store.Type {
	case config.StoreValKey:
		opts, err := config.MakeValKeyOptions(cfg.ValKey)
		if err != nil {
			return nil, nil, fmt.Errorf("making valkey options from config: %w", err)
		}

		valkeyClient, err := valkey.NewClient(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
		}

		return sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix), valkeyClient.Close, nil
	case config.StoreDatabase:
		db, err := newPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}

		return sessionsql.NewRepository(db), db.Close, nil
	case config.StoreMemory:
		slogctx.Warn(ctx, "Using the in-memory session store, sessions are lost on restart")

		repo := sessionmemory.NewRepository()

		return repo, repo.Flush, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func newPool(ctx context.Context, dbCfg config.Database) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}

	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}

// loadHTTPClient returns the client used for the token endpoint and the
// REST API.
func loadHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{
		Timeout:   cfg.GitHub.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// loadAuditLogger returns nil when no audit endpoint is configured.
func loadAuditLogger(cfg *config.Config) (*otlpaudit.AuditLogger, error) {
	if cfg.Audit.Endpoint == "" {
		return nil, nil
	}

	auditLogger, err := otlpaudit.NewLogger(&cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	return auditLogger, nil
}

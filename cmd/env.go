package main

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wbcard-cli/internal/reconcile"
	"github.com/sells-group/wbcard-cli/internal/resilience"
	"github.com/sells-group/wbcard-cli/internal/session"
	"github.com/sells-group/wbcard-cli/internal/store"
	"github.com/sells-group/wbcard-cli/pkg/wbapi"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "wbcard.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func clientOptions() []wbapi.Option {
	retry := resilience.NewPolicy(
		cfg.API.Retry.MaxAttempts,
		cfg.API.Retry.InitialBackoffMS,
		cfg.API.Retry.MaxBackoffMS,
		cfg.API.Retry.Multiplier,
		cfg.API.Retry.JitterFraction,
	)
	return []wbapi.Option{
		wbapi.WithTimeout(time.Duration(cfg.API.TimeoutSecs) * time.Second),
		wbapi.WithRateLimit(cfg.API.RatePerSec, cfg.API.Burst),
		wbapi.WithRetryPolicy(retry),
	}
}

// initAnonClient builds a client without credentials, for login and register.
func initAnonClient() wbapi.Client {
	return wbapi.NewClient(cfg.API.BaseURL, clientOptions()...)
}

// initClient builds a client with the stored token. Expired tokens are
// refused locally so the operator is told to log in again.
func initClient(ctx context.Context, creds store.CredentialStore) (wbapi.Client, error) {
	c, err := creds.LoadCredentials(ctx)
	if err != nil {
		return nil, err
	}
	token := ""
	if c != nil {
		token = c.Token
	}
	if err := wbapi.CheckToken(token, time.Now()); err != nil {
		return nil, eris.Wrap(err, "run `wbcard login` first")
	}
	zap.L().Debug("using stored credentials", zap.String("username", c.Username))
	return wbapi.NewClient(cfg.API.BaseURL, append(clientOptions(), wbapi.WithToken(token))...), nil
}

// initManager wires the session manager to the backend process stream.
func initManager(st store.SessionStore, client wbapi.Client) *session.Manager {
	return session.NewManager(st,
		func(ctx context.Context, article string) (io.ReadCloser, error) {
			return client.ProcessStream(ctx, article)
		},
		session.WithReconcileOptions(
			reconcile.WithIdleTimeout(cfg.Stream.IdleTimeout()),
			reconcile.WithChunkSize(cfg.Stream.ReadChunkBytes),
		),
	)
}

// apiEnv bundles what most backend commands need.
type apiEnv struct {
	Store  store.Store
	Client wbapi.Client
}

func (e *apiEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initAPI validates config for mode and opens the store and an authenticated
// client.
func initAPI(ctx context.Context, mode string) (*apiEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	client, err := initClient(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &apiEnv{Store: st, Client: client}, nil
}

// initLocal opens the store for commands that never call the backend.
func initLocal(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	return initStore(ctx)
}

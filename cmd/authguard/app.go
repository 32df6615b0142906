package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/bluescreen10/authguard"
	"github.com/bluescreen10/authguard/internal/config"
)

// guardedApp is the fully wired serve handler.
type guardedApp struct {
	handler  http.Handler
	registry *prometheus.Registry
	close    func()
}

// newGuardedApp wires the session store, the guard and the upstream behind
// a mux that keeps /metrics and /healthz outside the guard.
func newGuardedApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*guardedApp, error) {
	upstream, err := newUpstream(cfg.Upstream)
	if err != nil {
		return nil, err
	}

	policy, err := authguard.ParseTransportPolicy(cfg.Guard.TransportPolicy)
	if err != nil {
		return nil, oops.Code("config_invalid").Wrap(err)
	}

	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	sessions := authguard.NewSessionManager(store)
	sessions.SetLifetime(cfg.Session.Lifetime)
	sessions.SetIdleTimeout(cfg.Session.IdleTimeout)
	sessions.SetCodec(cfg.Codec())
	sessions.SetLogger(logger)
	sessions.SetCookieConfig(authguard.CookieConfig{
		Name:      cfg.Session.CookieName,
		Path:      "/",
		Secure:    cfg.Session.Secure,
		HttpOnly:  true,
		SameSite:  http.SameSiteLaxMode,
		Persisted: true,
	})

	refresher := authguard.NewHTTPRefresher(cfg.Identity.BaseURL,
		authguard.WithRefreshTimeout(cfg.Identity.Timeout),
		authguard.WithRefreshRetries(cfg.Identity.Retries, cfg.Identity.RetryBackoff),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	guard := authguard.NewGuard(refresher,
		authguard.WithEntryPath(cfg.Guard.EntryPath),
		authguard.WithHomePath(cfg.Guard.HomePath),
		authguard.WithPublicPrefixes(cfg.Guard.PublicPrefixes...),
		authguard.WithTransportPolicy(policy),
		authguard.WithLogger(logger),
		authguard.WithMetrics(authguard.NewMetrics(registry)),
	)

	mux := authguard.NewServeMux()
	mux.Use(authguard.Logger(logger))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	app := mux.Group("/", sessions.Handler, guard.Handler)
	app.Handle("/", upstream)

	logger.Info("guard configured",
		"identity", refresher.Endpoint(),
		"transport_policy", policy.String(),
		"entry_path", cfg.Guard.EntryPath,
		"home_path", cfg.Guard.HomePath,
	)

	return &guardedApp{handler: mux, registry: registry, close: closeStore}, nil
}

// newUpstream returns what guarded requests are served from: a reverse
// proxy to the front-end when a URL is configured, a file server otherwise.
func newUpstream(cfg config.UpstreamConfig) (http.Handler, error) {
	if cfg.URL != "" {
		target, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, oops.Code("config_invalid").With("upstream", cfg.URL).Wrap(err)
		}
		return httputil.NewSingleHostReverseProxy(target), nil
	}

	if cfg.StaticDir != "" {
		return http.FileServer(http.Dir(cfg.StaticDir)), nil
	}

	return nil, oops.Code("config_invalid").Errorf("one of upstream.url or upstream.static_dir is required")
}

package authguard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluescreen10/authguard/internal/errutil"
	"golang.org/x/sync/singleflight"
)

// DecisionKind tells the routing layer what to do with a navigation.
type DecisionKind int

const (
	// Proceed lets the navigation through unchanged.
	Proceed DecisionKind = iota
	// Redirect sends the navigation to Decision.Path.
	Redirect
	// ProceedWithUpdatedSession lets the navigation through after the
	// session was replaced by Decision.Session.
	ProceedWithUpdatedSession
)

func (k DecisionKind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case Redirect:
		return "redirect"
	case ProceedWithUpdatedSession:
		return "proceed_with_updated_session"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating a navigation.
type Decision struct {
	Kind DecisionKind
	// Path is the redirect target.
	Path string
	// Session is the refreshed session.
	Session *Session
	// ClearSession is set on redirects caused by a failed refresh.
	ClearSession bool
}

// Navigation is an in-flight transition from Origin to Target.
type Navigation struct {
	Target string
	Origin string
}

// NavigationFromRequest builds a Navigation from the request path and the
// path of its Referer, if any.
func NavigationFromRequest(r *http.Request) Navigation {
	nav := Navigation{Target: r.URL.Path}
	if ref := r.Referer(); ref != "" {
		if u, err := url.Parse(ref); err == nil {
			nav.Origin = u.Path
		}
	}
	return nav
}

// TransportPolicy decides what a navigation does when the refresh call
// fails without an answer from the identity service.
type TransportPolicy int

const (
	// FailClosed clears the session and redirects to the entry path.
	FailClosed TransportPolicy = iota
	// FailOpen lets the navigation through with the stale session.
	FailOpen
)

func (p TransportPolicy) String() string {
	if p == FailOpen {
		return "fail_open"
	}
	return "fail_closed"
}

// ParseTransportPolicy parses "fail_closed" or "fail_open".
func ParseTransportPolicy(s string) (TransportPolicy, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "", "fail_closed", "closed":
		return FailClosed, nil
	case "fail_open", "open":
		return FailOpen, nil
	}
	return FailClosed, errors.New("authguard: unknown transport policy " + s)
}

// Guard gates navigations on session validity and keeps the session fresh
// through a Refresher. At most one refresh per token is in flight.
type Guard struct {
	refresher      Refresher
	entryPath      string
	homePath       string
	publicPrefixes []string
	policy         TransportPolicy
	logger         *slog.Logger
	metrics        *Metrics
	flight         singleflight.Group
}

type guardConfig func(*Guard)

// WithEntryPath sets the public entry path. (default "/")
func WithEntryPath(path string) guardConfig {
	return guardConfig(func(g *Guard) {
		g.entryPath = path
	})
}

// WithHomePath sets where authenticated users landing on the entry path are
// sent. (default "/inicio")
func WithHomePath(path string) guardConfig {
	return guardConfig(func(g *Guard) {
		g.homePath = path
	})
}

// WithPublicPrefixes lists path prefixes the middleware lets through
// without evaluation, such as static assets.
func WithPublicPrefixes(prefixes ...string) guardConfig {
	return guardConfig(func(g *Guard) {
		g.publicPrefixes = append(g.publicPrefixes, prefixes...)
	})
}

// WithTransportPolicy sets the behaviour on refresh transport failures.
// (default FailClosed)
func WithTransportPolicy(policy TransportPolicy) guardConfig {
	return guardConfig(func(g *Guard) {
		g.policy = policy
	})
}

func WithLogger(logger *slog.Logger) guardConfig {
	return guardConfig(func(g *Guard) {
		g.logger = logger
	})
}

func WithMetrics(metrics *Metrics) guardConfig {
	return guardConfig(func(g *Guard) {
		g.metrics = metrics
	})
}

// NewGuard creates a Guard refreshing sessions through refresher.
func NewGuard(refresher Refresher, cfgs ...guardConfig) *Guard {
	g := &Guard{
		refresher: refresher,
		entryPath: "/",
		homePath:  "/inicio",
		policy:    FailClosed,
		logger:    slog.Default(),
	}

	for _, cfg := range cfgs {
		cfg(g)
	}

	return g
}

// Evaluate decides the fate of nav given the current session. It performs a
// refresh for valid sessions heading to any path other than the entry path,
// and never touches session storage. The only error it returns is the
// context error of an abandoned navigation.
func (g *Guard) Evaluate(ctx context.Context, nav Navigation, current *Session) (Decision, error) {
	d, err := g.evaluate(ctx, nav, current)
	if err != nil {
		return d, err
	}
	g.metrics.observeDecision(d)
	g.logger.DebugContext(ctx, "navigation evaluated",
		"target", nav.Target,
		"origin", nav.Origin,
		"decision", d.Kind.String(),
		"path", d.Path,
	)
	return d, nil
}

func (g *Guard) evaluate(ctx context.Context, nav Navigation, current *Session) (Decision, error) {
	if nav.Target == g.entryPath {
		if current.Valid() {
			return Decision{Kind: Redirect, Path: g.homePath}, nil
		}
		return Decision{Kind: Proceed}, nil
	}

	if !current.Valid() {
		return Decision{Kind: Redirect, Path: g.entryPath}, nil
	}

	start := time.Now()
	next, err := g.refresh(ctx, current.Token())
	switch {
	case err == nil:
		g.metrics.observeRefresh(outcomeSuccess, time.Since(start))
		return Decision{Kind: ProceedWithUpdatedSession, Session: next}, nil

	case errors.Is(err, ErrRefreshRejected):
		g.metrics.observeRefresh(outcomeRejected, time.Since(start))
		g.logger.InfoContext(ctx, "session refresh rejected", "target", nav.Target)
		return Decision{Kind: Redirect, Path: g.entryPath, ClearSession: true}, nil

	case ctx.Err() != nil:
		g.metrics.observeRefresh(outcomeCanceled, time.Since(start))
		return Decision{}, ctx.Err()
	}

	g.metrics.observeRefresh(outcomeTransport, time.Since(start))
	errutil.LogError(ctx, g.logger, "session refresh failed", err)
	if g.policy == FailOpen {
		return Decision{Kind: Proceed}, nil
	}
	return Decision{Kind: Redirect, Path: g.entryPath, ClearSession: true}, nil
}

// refresh shares one in-flight refresh between every navigation carrying
// the same token. The shared call is detached from the caller's
// cancellation; each caller stops waiting when its own context ends.
func (g *Guard) refresh(ctx context.Context, token string) (*Session, error) {
	ch := g.flight.DoChan(token, func() (any, error) {
		return g.refresher.Refresh(context.WithoutCancel(ctx), token)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		sess, _ := res.Val.(*Session)
		return sess, nil
	}
}

// Navigate evaluates nav against the session held by store and commits the
// outcome: the refreshed session is stored, a failed refresh clears it.
// Nothing is written when ctx ended while the refresh was in flight.
func (g *Guard) Navigate(ctx context.Context, nav Navigation, store SessionStore) (Decision, error) {
	current, err := store.Get(ctx)
	if err != nil {
		return Decision{}, err
	}

	d, err := g.Evaluate(ctx, nav, current)
	if err != nil {
		return d, err
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	switch {
	case d.Kind == ProceedWithUpdatedSession:
		err = store.Set(ctx, d.Session)
	case d.ClearSession:
		err = store.Clear(ctx)
	}
	return d, err
}

// Handler is a middleware gating every request through Navigate. It needs
// the request session installed by SessionManager.Handler.
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		store, ok := SessionFromContext(r.Context())
		if !ok {
			g.logger.ErrorContext(r.Context(), "guard installed without a session manager")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		d, err := g.Navigate(r.Context(), NavigationFromRequest(r), store)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			errutil.LogError(r.Context(), g.logger, "navigation failed", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if d.Kind == Redirect {
			http.Redirect(w, r, d.Path, redirectStatus(r.Method))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) isPublic(path string) bool {
	for _, prefix := range g.publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func redirectStatus(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

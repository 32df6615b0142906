// SessionManager persists the guard's Session behind a cookie. The cookie
// only carries an opaque id; the encoded session lives in a Store backend.
// The load-and-save cycle runs automatically via the Handler middleware,
// which makes the per-request SessionStore available to the Guard.
//
// Usage:
//
//	store := memstore.New()
//	mgr := authguard.NewSessionManager(store)
//	mgr.SetIdleTimeout(30 * time.Minute)
//
//	guard := authguard.NewGuard(authguard.NewHTTPRefresher("http://localhost:3020"))
//
//	mux := authguard.NewServeMux()
//	mux.Use(mgr.Handler)
//	mux.Use(guard.Handler)
//	mux.Handle("/", frontend)
//
//	http.ListenAndServe(":8080", mux)
package authguard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

type sessionContextKey struct{}

// RequestSession is the SessionStore of a single request. Changes are kept
// in memory and written to the backend by SessionManager.Save.
type RequestSession struct {
	id        string
	createdAt time.Time
	sess      *Session
	isCleared bool
	// isModified is set by Set and Clear.
	isModified bool
}

var _ SessionStore = &RequestSession{}

// Get returns the current session, nil when absent.
func (rs *RequestSession) Get(context.Context) (*Session, error) {
	return rs.sess, nil
}

// Set replaces the session. A request without a backing record gets a fresh
// id when the session is saved.
func (rs *RequestSession) Set(_ context.Context, sess *Session) error {
	if sess == nil {
		return rs.Clear(context.Background())
	}
	rs.sess = sess
	rs.isCleared = false
	rs.isModified = true
	return nil
}

// Clear turns the session into the absent session. The backend record is
// deleted and the cookie expired on save.
func (rs *RequestSession) Clear(context.Context) error {
	rs.sess = nil
	rs.isCleared = true
	rs.isModified = true
	return nil
}

// ID returns the id of the backing record, "" when there is none.
func (rs *RequestSession) ID() string {
	return rs.id
}

// SessionFromContext returns the request session installed by
// SessionManager.Handler.
func SessionFromContext(ctx context.Context) (*RequestSession, bool) {
	rs, ok := ctx.Value(sessionContextKey{}).(*RequestSession)
	return rs, ok
}

type sessionResponseWriter struct {
	http.ResponseWriter
	req       *http.Request
	mngr      *SessionManager
	sess      *RequestSession
	isWritten bool
}

func (w *sessionResponseWriter) save() {
	if w.isWritten {
		return
	}
	w.isWritten = true
	if err := w.mngr.Save(w.req.Context(), w.ResponseWriter, w.sess); err != nil {
		w.mngr.logger.ErrorContext(w.req.Context(), "saving session failed", "error", err)
	}
}

func (w *sessionResponseWriter) Write(b []byte) (int, error) {
	w.save()
	return w.ResponseWriter.Write(b)
}

func (w *sessionResponseWriter) WriteHeader(statusCode int) {
	w.save()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *sessionResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// SessionManager manages guarded sessions using a Store backend and cookie
// options.
type SessionManager struct {
	store       Store
	lifetime    time.Duration
	idleTimeout time.Duration
	codec       Codec
	cookie      CookieConfig
	logger      *slog.Logger
}

// CookieConfig holds the attributes of the session cookie.
type CookieConfig struct {
	Name        string
	Path        string
	Domain      string
	Secure      bool
	HttpOnly    bool
	Partitioned bool
	SameSite    http.SameSite
	Persisted   bool
}

// SetIdleTimeout sets the idle timeout for the cookie. (default no timeout.)
func (m *SessionManager) SetIdleTimeout(timeout time.Duration) {
	m.idleTimeout = timeout
}

// SetLifetime sets the absolute lifetime of a stored session. (default 24hr.)
func (m *SessionManager) SetLifetime(lifetime time.Duration) {
	m.lifetime = lifetime
}

func (m *SessionManager) SetCookieConfig(cfg CookieConfig) {
	m.cookie = cfg
}

func (m *SessionManager) SetCodec(codec Codec) {
	m.codec = codec
}

func (m *SessionManager) SetLogger(logger *slog.Logger) {
	m.logger = logger
}

// Handler is a middleware that provides load-and-save session functionality.
// The session is loaded before next runs and saved before the first byte of
// the response is written, or after next returns.
func (m *SessionManager) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Cookie")

		var id string
		if cookie, err := r.Cookie(m.cookie.Name); err == nil {
			id = cookie.Value
		}

		rs, err := m.Load(r.Context(), id)
		if err != nil {
			m.logger.ErrorContext(r.Context(), "loading session failed", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		sr := r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, rs))
		sw := &sessionResponseWriter{ResponseWriter: w, req: sr, mngr: m, sess: rs}
		next.ServeHTTP(sw, sr)
		sw.save()
	})
}

// Load retrieves the session stored under id. An empty id, or an id the
// store doesn't know, yields an absent session.
func (m *SessionManager) Load(ctx context.Context, id string) (*RequestSession, error) {
	if id == "" {
		return &RequestSession{}, nil
	}

	data, found, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, oops.Code("session_load").With("session_id", id).Wrap(err)
	}
	if !found {
		return &RequestSession{}, nil
	}

	createdAt, payload, err := m.codec.Decode(data)
	if err != nil {
		return nil, oops.Code("session_decode").With("session_id", id).Wrap(err)
	}

	sess, err := ParseSession(payload)
	if err != nil {
		return nil, oops.Code("session_decode").With("session_id", id).Wrap(err)
	}

	return &RequestSession{id: id, createdAt: createdAt, sess: sess}, nil
}

// Save persists the request session and updates the cookie. Cleared
// sessions are deleted from the store and their cookie expired. Requests
// that never had a session get no cookie.
func (m *SessionManager) Save(ctx context.Context, w http.ResponseWriter, rs *RequestSession) error {
	if rs.isCleared {
		if rs.id != "" {
			if err := m.store.Delete(ctx, rs.id); err != nil {
				return oops.Code("session_delete").With("session_id", rs.id).Wrap(err)
			}
		}
		rs.isModified = false
		m.writeCookie(w, "", time.Time{})
		return nil
	}

	if rs.sess == nil {
		return nil
	}

	if rs.id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return oops.Code("session_id").Wrap(err)
		}
		rs.id = id.String()
		rs.createdAt = time.Now()
	}

	expiresAt := rs.createdAt.Add(m.lifetime)

	if rs.isModified {
		data, err := m.codec.Encode(rs.createdAt, rs.sess.Payload())
		if err != nil {
			return oops.Code("session_encode").With("session_id", rs.id).Wrap(err)
		}
		if err := m.store.Set(ctx, rs.id, data, expiresAt); err != nil {
			return oops.Code("session_store").With("session_id", rs.id).Wrap(err)
		}
		rs.isModified = false
	}

	if m.idleTimeout > 0 {
		idleExpires := time.Now().Add(m.idleTimeout)
		if idleExpires.Before(expiresAt) {
			expiresAt = idleExpires
		}
	}
	m.writeCookie(w, rs.id, expiresAt)
	return nil
}

func (m *SessionManager) writeCookie(w http.ResponseWriter, id string, expiresAt time.Time) {
	cookie := &http.Cookie{
		Value:       id,
		Name:        m.cookie.Name,
		Domain:      m.cookie.Domain,
		HttpOnly:    m.cookie.HttpOnly,
		Path:        m.cookie.Path,
		SameSite:    m.cookie.SameSite,
		Secure:      m.cookie.Secure,
		Partitioned: m.cookie.Partitioned,
	}

	if expiresAt.IsZero() {
		cookie.Expires = time.Unix(1, 0)
		cookie.MaxAge = -1
	} else if m.cookie.Persisted {
		cookie.Expires = time.Unix(expiresAt.Unix()+1, 0)
		cookie.MaxAge = int(time.Until(expiresAt).Seconds() + 1)
	}

	http.SetCookie(w, cookie)
}

// NewSessionManager returns a SessionManager storing sessions in store under
// the "user" cookie.
func NewSessionManager(store Store) *SessionManager {
	return &SessionManager{
		lifetime: 24 * time.Hour,
		codec:    GobCodec{},
		store:    store,
		logger:   slog.Default(),
		cookie: CookieConfig{
			Name:      "user",
			Path:      "/",
			HttpOnly:  true,
			SameSite:  http.SameSiteLaxMode,
			Persisted: true,
		},
	}
}

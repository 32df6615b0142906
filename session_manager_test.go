package authguard_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bluescreen10/authguard"
	"github.com/google/uuid"
)

type mockstore struct {
	get    func(string) ([]byte, bool, error)
	set    func(string, []byte, time.Time) error
	delete func(string) error
}

func (s *mockstore) Get(_ context.Context, id string) ([]byte, bool, error) {
	return s.get(id)
}

func (s *mockstore) Set(_ context.Context, id string, data []byte, expiresAt time.Time) error {
	return s.set(id, data, expiresAt)
}

func (s *mockstore) Delete(_ context.Context, id string) error {
	return s.delete(id)
}

var _ authguard.Store = &mockstore{}

func newMockstore(t *testing.T) *mockstore {
	return &mockstore{
		get: func(string) ([]byte, bool, error) {
			return nil, false, nil
		},
		set: func(string, []byte, time.Time) error {
			t.Fatal("unexpected call to store set")
			return nil
		},
		delete: func(string) error {
			t.Fatal("unexpected call to store delete")
			return nil
		},
	}
}

func encoded(t *testing.T, payload string) []byte {
	data, err := authguard.GobCodec{}.Encode(time.Now(), []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNoCookieForAbsentSession(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs, ok := authguard.SessionFromContext(r.Context())
		if !ok {
			t.Fatal("expected request session")
		}
		if sess, _ := rs.Get(r.Context()); sess != nil {
			t.Fatalf("expected absent session got '%s'", sess.Payload())
		}
		w.Write([]byte("hello world"))
	})

	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if cookie := w.Result().Header.Get("Set-Cookie"); cookie != "" {
		t.Fatalf("expected no cookie got '%s'", cookie)
	}

	if vary := w.Result().Header.Get("Vary"); vary != "Cookie" {
		t.Fatalf("expected 'Vary: Cookie' got '%s'", vary)
	}
}

func TestCreateSession(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)

	var storedID string
	var storedData []byte
	store.set = func(id string, data []byte, _ time.Time) error {
		storedID, storedData = id, data
		return nil
	}

	h1 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs, _ := authguard.SessionFromContext(r.Context())
		rs.Set(r.Context(), authguard.NewSession("abc"))
	})

	r1 := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	w1 := httptest.NewRecorder()
	sm.Handler(h1).ServeHTTP(w1, r1)

	if _, err := uuid.Parse(storedID); err != nil {
		t.Fatalf("expected a uuid session id got '%s'", storedID)
	}

	cookies := w1.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "user" || cookies[0].Value != storedID {
		t.Fatalf("expected cookie 'user=%s' got '%v'", storedID, cookies)
	}

	store.get = func(id string) ([]byte, bool, error) {
		if id != storedID {
			t.Fatalf("expected lookup of '%s' got '%s'", storedID, id)
		}
		return storedData, true, nil
	}

	h2 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs, _ := authguard.SessionFromContext(r.Context())
		sess, _ := rs.Get(r.Context())
		if tok := sess.Token(); tok != "abc" {
			t.Fatalf("expected 'abc' got '%s'", tok)
		}
		if rs.ID() != storedID {
			t.Fatalf("expected id '%s' got '%s'", storedID, rs.ID())
		}
	})

	r2 := httptest.NewRequest("GET", "/inicio", &bytes.Buffer{})
	r2.AddCookie(cookies[0])
	w2 := httptest.NewRecorder()
	sm.Handler(h2).ServeHTTP(w2, r2)
}

func TestUnknownCookieIsAbsentSession(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)

	var storedID string
	store.set = func(id string, _ []byte, _ time.Time) error {
		storedID = id
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs, _ := authguard.SessionFromContext(r.Context())
		if sess, _ := rs.Get(r.Context()); sess != nil {
			t.Fatal("expected absent session")
		}
		rs.Set(r.Context(), authguard.NewSession("abc"))
	})

	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	r.Header.Set("Cookie", "user=forged;")
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if storedID == "" || storedID == "forged" {
		t.Fatalf("expected a fresh session id got '%s'", storedID)
	}
}

func TestErrorLoadingSession(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)
	sm.SetLogger(quiet)

	store.get = func(string) ([]byte, bool, error) {
		return nil, false, errors.New("test")
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	r := httptest.NewRequest("GET", "/inicio", &bytes.Buffer{})
	r.Header.Set("Cookie", "user=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if status := w.Result().StatusCode; status != http.StatusInternalServerError {
		t.Fatalf("expected status '500' got '%d'", status)
	}
}

func TestCorruptSessionRecord(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)
	sm.SetLogger(quiet)

	store.get = func(string) ([]byte, bool, error) {
		return []byte("garbage"), true, nil
	}

	r := httptest.NewRequest("GET", "/inicio", &bytes.Buffer{})
	r.Header.Set("Cookie", "user=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(http.NotFoundHandler()).ServeHTTP(w, r)

	if status := w.Result().StatusCode; status != http.StatusInternalServerError {
		t.Fatalf("expected status '500' got '%d'", status)
	}
}

func TestErrorSaveSession(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)
	sm.SetLogger(quiet)

	store.set = func(string, []byte, time.Time) error {
		return errors.New("test")
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs, _ := authguard.SessionFromContext(r.Context())
		rs.Set(r.Context(), authguard.NewSession("abc"))
		w.Write([]byte("hello world"))
	})

	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if cookie := w.Result().Header.Get("Set-Cookie"); cookie != "" {
		t.Fatal("expected no cookie but got one")
	}
}

func TestClearSession(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return encoded(t, `{"token":"abc"}`), true, nil
	}

	var deleted string
	store.delete = func(id string) error {
		deleted = id
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs, _ := authguard.SessionFromContext(r.Context())
		rs.Clear(r.Context())
		w.Write([]byte("hello world"))
	})

	r := httptest.NewRequest("GET", "/inicio", &bytes.Buffer{})
	r.Header.Set("Cookie", "user=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if deleted != "abc123" {
		t.Fatalf("expected 'abc123' to be deleted got '%s'", deleted)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected an expired cookie got '%v'", cookies)
	}
}

func TestErrorDeleteSession(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)
	sm.SetLogger(quiet)

	store.get = func(string) ([]byte, bool, error) {
		return encoded(t, `{"token":"abc"}`), true, nil
	}

	store.delete = func(string) error {
		return errors.New("test")
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs, _ := authguard.SessionFromContext(r.Context())
		rs.Clear(r.Context())
		w.Write([]byte("hello world"))
	})

	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	r.Header.Set("Cookie", "user=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if cookie := w.Result().Header.Get("Set-Cookie"); cookie != "" {
		t.Fatal("expected no cookie but got one")
	}
}

func TestUnmodifiedSessionIsNotRewritten(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return encoded(t, `{"token":"abc"}`), true, nil
	}

	r := httptest.NewRequest("GET", "/inicio", &bytes.Buffer{})
	r.Header.Set("Cookie", "user=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, r)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "abc123" {
		t.Fatalf("expected cookie to be touched got '%v'", cookies)
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	store := newMockstore(t)
	sm := authguard.NewSessionManager(store)
	sm.SetIdleTimeout(10 * time.Minute)

	store.get = func(string) ([]byte, bool, error) {
		return encoded(t, `{"token":"abc"}`), true, nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello world"))
	})

	r := httptest.NewRequest("GET", "/inicio", &bytes.Buffer{})
	r.Header.Set("Cookie", "user=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	cookie := w.Result().Cookies()[0]

	expected := time.Now().Add(11 * time.Minute)
	if cookie.Expires.IsZero() || cookie.Expires.After(expected) {
		t.Fatalf("expected cookie expiration '%s' to be before '%s'", cookie.Expires.UTC(), expected.UTC())
	}
}

func TestCookieConfig(t *testing.T) {
	store := newMockstore(t)
	store.set = func(string, []byte, time.Time) error { return nil }

	sm := authguard.NewSessionManager(store)
	sm.SetCookieConfig(authguard.CookieConfig{
		Name:     "sid",
		Path:     "/app",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs, _ := authguard.SessionFromContext(r.Context())
		rs.Set(r.Context(), authguard.NewSession("abc"))
	})

	r := httptest.NewRequest("POST", "/app", &bytes.Buffer{})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	header := w.Result().Header.Get("Set-Cookie")
	for _, part := range []string{"sid=", "Path=/app", "Secure", "HttpOnly", "SameSite=Strict"} {
		if !strings.Contains(header, part) {
			t.Fatalf("expected '%s' in '%s'", part, header)
		}
	}
	if strings.Contains(header, "Max-Age") {
		t.Fatalf("expected a session cookie got '%s'", header)
	}
}

package authguard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// RefreshPath is appended to the identity service base URL.
const RefreshPath = "/auth/refresh-token"

// maxRefreshBody caps how much of a refresh response is read.
const maxRefreshBody = 1 << 20

const defaultRefreshBackoff = 100 * time.Millisecond

// Refresher exchanges a session token for a renewed session.
//
// Refresh returns the new session, an error wrapping ErrRefreshRejected when
// the identity service refuses the token, or an error wrapping
// ErrTransportFailure when no answer could be obtained.
type Refresher interface {
	Refresh(ctx context.Context, token string) (*Session, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, token string) (*Session, error)

func (f RefresherFunc) Refresh(ctx context.Context, token string) (*Session, error) {
	return f(ctx, token)
}

type refreshRequest struct {
	Token string `json:"token"`
}

// HTTPRefresher refreshes sessions by posting the token to
// {baseURL}/auth/refresh-token.
type HTTPRefresher struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	retries  uint64
	backoff  time.Duration
}

var _ Refresher = &HTTPRefresher{}

type refresherConfig func(*HTTPRefresher)

// WithHTTPClient sets the client used for refresh calls.
// (default http.DefaultClient)
func WithHTTPClient(client *http.Client) refresherConfig {
	return refresherConfig(func(r *HTTPRefresher) {
		r.client = client
	})
}

// WithRefreshTimeout bounds every refresh attempt. (default no timeout.)
func WithRefreshTimeout(timeout time.Duration) refresherConfig {
	return refresherConfig(func(r *HTTPRefresher) {
		r.timeout = timeout
	})
}

// WithRefreshRetries retries transport failures up to retries times with an
// exponential backoff starting at base. Rejections are never retried. A
// non-positive base falls back to 100ms. (default no retries.)
func WithRefreshRetries(retries uint64, base time.Duration) refresherConfig {
	return refresherConfig(func(r *HTTPRefresher) {
		r.retries = retries
		r.backoff = base
	})
}

// NewHTTPRefresher returns a Refresher talking to the identity service at
// baseURL.
func NewHTTPRefresher(baseURL string, cfgs ...refresherConfig) *HTTPRefresher {
	r := &HTTPRefresher{
		endpoint: strings.TrimRight(baseURL, "/") + RefreshPath,
		client:   http.DefaultClient,
		backoff:  defaultRefreshBackoff,
	}

	for _, cfg := range cfgs {
		cfg(r)
	}

	if r.backoff <= 0 {
		r.backoff = defaultRefreshBackoff
	}

	return r
}

// Endpoint returns the URL refresh requests are posted to.
func (r *HTTPRefresher) Endpoint() string {
	return r.endpoint
}

// Refresh posts the token to the identity service. An empty token is never
// sent and yields ErrSessionAbsent.
func (r *HTTPRefresher) Refresh(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionAbsent
	}
	if r.retries == 0 {
		return r.attempt(ctx, token)
	}

	var sess *Session
	b := retry.WithMaxRetries(r.retries, retry.NewExponential(r.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		s, err := r.attempt(ctx, token)
		if errors.Is(err, ErrTransportFailure) {
			return retry.RetryableError(err)
		}
		sess = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *HTTPRefresher) attempt(ctx context.Context, token string) (*Session, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	body, err := json.Marshal(refreshRequest{Token: token})
	if err != nil {
		return nil, r.transportError(0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, r.transportError(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, r.transportError(0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRefreshBody))
	if err != nil {
		return nil, r.transportError(resp.StatusCode, err)
	}

	sess, err := classifyRefreshResponse(resp.StatusCode, data)
	if err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			return nil, oops.
				Code(codeRefreshRejected).
				With("endpoint", r.endpoint, "status_code", resp.StatusCode).
				Wrap(err)
		}
		return nil, r.transportError(resp.StatusCode, err)
	}
	return sess, nil
}

func (r *HTTPRefresher) transportError(statusCode int, err error) error {
	b := oops.Code(codeRefreshTransport).With("endpoint", r.endpoint)
	if statusCode != 0 {
		b = b.With("status_code", statusCode)
	}
	return b.Wrap(fmt.Errorf("%w: %w", ErrTransportFailure, err))
}

// classifyRefreshResponse maps a refresh answer to a session or an error.
// A payload with "status": false is a rejection whatever the HTTP status.
// Any other JSON object on a 2xx becomes the new session verbatim.
func classifyRefreshResponse(statusCode int, data []byte) (*Session, error) {
	var marker struct {
		Status *bool `json:"status"`
	}
	if err := json.Unmarshal(data, &marker); err == nil && marker.Status != nil && !*marker.Status {
		return nil, ErrRefreshRejected
	}

	if statusCode < 200 || statusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", statusCode)
	}

	return ParseSession(data)
}

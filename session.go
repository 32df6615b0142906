package authguard

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
)

// ErrInvalidSession is returned by ParseSession when the payload is not a
// JSON object.
var ErrInvalidSession = errors.New("authguard: session payload is not a JSON object")

// Session represents an authenticated identity as handed out by the identity
// service. The payload is kept verbatim; only the "token" field is read by the
// guard. A nil *Session is the absent session.
type Session struct {
	token   string
	payload json.RawMessage
	claims  map[string]any
}

// ParseSession builds a Session from a JSON object. The payload is stored as
// is, including fields the guard knows nothing about.
func ParseSession(data []byte) (*Session, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrInvalidSession
	}

	var claims map[string]any
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, err
	}

	token, _ := claims["token"].(string)
	return &Session{
		token:   token,
		payload: bytes.Clone(data),
		claims:  claims,
	}, nil
}

// NewSession returns a session whose payload only carries the given token.
func NewSession(token string) *Session {
	data, _ := json.Marshal(map[string]string{"token": token})
	return &Session{
		token:   token,
		payload: data,
		claims:  map[string]any{"token": token},
	}
}

// Token returns the session token, or "" for an absent session.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.token
}

// Valid reports whether the session carries a non-empty token. Absent
// sessions and sessions with an empty token are not valid.
func (s *Session) Valid() bool {
	return s.Token() != ""
}

// Payload returns a copy of the raw JSON payload.
func (s *Session) Payload() []byte {
	if s == nil {
		return nil
	}
	return bytes.Clone(s.payload)
}

// Claim returns a single top-level field of the payload. Returns nil if the
// field doesn't exist.
func (s *Session) Claim(name string) any {
	if s == nil {
		return nil
	}
	return s.claims[name]
}

// GetString returns a string claim. Returns "" if not found or type mismatch.
func (s *Session) GetString(name string) string {
	v, _ := s.Claim(name).(string)
	return v
}

// GetBool returns a bool claim. Returns false if not found or type mismatch.
func (s *Session) GetBool(name string) bool {
	v, _ := s.Claim(name).(bool)
	return v
}

// Claims returns a copy of every top-level field of the payload.
func (s *Session) Claims() map[string]any {
	if s == nil {
		return nil
	}
	return maps.Clone(s.claims)
}

// Equal reports whether both sessions hold the same payload.
func (s *Session) Equal(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	return bytes.Equal(s.payload, other.payload)
}

// MarshalJSON returns the verbatim payload.
func (s *Session) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return s.Payload(), nil
}

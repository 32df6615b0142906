// Package identitystub is a development identity service. It issues HS256
// tokens on login and renews them on POST /auth/refresh-token, answering
// with the same payload shapes the guard expects from the real backend.
package identitystub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bluescreen10/authguard"
	"github.com/bluescreen10/authguard/internal/errutil"
)

const (
	LoginPath   = "/auth/login"
	maxBodySize = 1 << 16
)

type Config struct {
	Secret         []byte
	TokenTTL       time.Duration
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server holds the signing material of the stub.
type Server struct {
	secret         []byte
	tokenTTL       time.Duration
	allowedOrigins []string
	logger         *slog.Logger
}

func New(cfg Config) *Server {
	s := &Server{
		secret:         cfg.Secret,
		tokenTTL:       cfg.TokenTTL,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         cfg.Logger,
	}
	if s.tokenTTL == 0 {
		s.tokenTTL = 15 * time.Minute
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

type loginRequest struct {
	Username string `json:"username"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Status   bool   `json:"status"`
	Token    string `json:"token"`
	Username string `json:"username"`
}

type errorResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// Router returns the HTTP handler of the stub.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(authguard.Logger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post(LoginPath, s.login)
	r.Post(authguard.RefreshPath, s.refresh)
	return r
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	token, err := s.issueToken(req.Username)
	if err != nil {
		errutil.LogError(r.Context(), s.logger, "issuing token failed", err)
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Status: true, Token: token, Username: req.Username})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusUnauthorized, "token is required")
		return
	}

	c, err := s.verifyToken(req.Token)
	if err != nil {
		s.logger.InfoContext(r.Context(), "refresh rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	token, err := s.issueToken(c.Username)
	if err != nil {
		errutil.LogError(r.Context(), s.logger, "issuing token failed", err)
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Status: true, Token: token, Username: c.Username})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError answers with the rejection payload the guard recognises.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: false, Message: msg})
}

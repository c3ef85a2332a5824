// Package stubserver is an in-memory stand-in for the board backend. It
// speaks the same routes, cookies and error shapes so the client and CLI
// can be exercised without the real service.
package stubserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nghyane/board-client/internal/logging"
)

const (
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

type serverOptionConfig struct {
	csrfCookie  bool
	requireCSRF bool
	latency     time.Duration
	users       []User
}

// ServerOption customises stub construction.
type ServerOption func(*serverOptionConfig)

// WithCSRFCookie makes the token endpoint also set the csrf_token cookie.
func WithCSRFCookie(enabled bool) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.csrfCookie = enabled
	}
}

// WithCSRFEnforcement toggles the 403 on mutating requests without a valid
// X-CSRF-Token header. It is on by default.
func WithCSRFEnforcement(enabled bool) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.requireCSRF = enabled
	}
}

// WithLatency delays every response, for timeout tests.
func WithLatency(d time.Duration) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.latency = d
	}
}

// WithUser seeds an account that can log in.
func WithUser(u User) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.users = append(cfg.users, u)
	}
}

// Server is the stub backend.
type Server struct {
	engine *gin.Engine
	server *http.Server
	store  *store
	opts   serverOptionConfig

	csrfToken   string
	csrfFetches atomic.Int64

	mu       sync.Mutex
	listener net.Listener
}

// New builds the stub with its routes registered.
func New(opts ...ServerOption) *Server {
	state := serverOptionConfig{requireCSRF: true}
	for _, opt := range opts {
		opt(&state)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.GinLogger())
	engine.Use(logging.GinRecovery())

	s := &Server{
		engine:    engine,
		store:     newStore(),
		opts:      state,
		csrfToken: uuid.NewString(),
	}
	for _, u := range state.users {
		s.store.addUser(u)
	}
	if state.latency > 0 {
		engine.Use(func(c *gin.Context) {
			select {
			case <-time.After(state.latency):
			case <-c.Request.Context().Done():
				c.Abort()
				return
			}
			c.Next()
		})
	}
	s.setupRoutes()
	return s
}

// Handler returns the stub as an http.Handler for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// CSRFToken returns the token the stub issues and accepts.
func (s *Server) CSRFToken() string { return s.csrfToken }

// CSRFFetches counts calls to the token endpoint.
func (s *Server) CSRFFetches() int64 { return s.csrfFetches.Load() }

// AuthCode returns the pending verification code for email. The stub has no
// mailer, so tests and the CLI read it here.
func (s *Server) AuthCode(email string) string { return s.store.code(email) }

// Marked lists the delete candidates recorded for a mark id. kind is
// "images" or "videos".
func (s *Server) Marked(kind string, id int64) []string {
	return s.store.marked(fmt.Sprintf("delete_%s_candidates:%d", strings.TrimSuffix(kind, "s"), id))
}

// Start listens on addr and serves until Stop. It blocks.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start stub server: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	logging.Infof("stub backend listening on http://%s", ln.Addr())
	if errServe := srv.Serve(ln); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve stub: %w", errServe)
	}
	return nil
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown stub: %w", err)
	}
	return nil
}

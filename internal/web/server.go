// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

// Package web serves the posadmin JSON API over gin.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/sistemapos/posadmin/internal/auth"
)

// Authenticator is the subset of auth.Service the API needs.
type Authenticator interface {
	Login(ctx context.Context, identifier, password string, rc auth.RequestContext) (*auth.LoginResult, error)
	Probe(ctx context.Context, sessionID string) (*auth.Principal, error)
	Logout(ctx context.Context, sessionID string, rc auth.RequestContext) auth.CookieDirective
	PurgeExpired(ctx context.Context) (int64, error)
}

// RequestRecorder counts served requests by matched route and status.
type RequestRecorder interface {
	HTTPRequest(route string, status int)
}

// Options configures the API.
type Options struct {
	Auth Authenticator
	// Ping checks the database for /api/system/health. Nil reports "unknown".
	Ping func(ctx context.Context) error
	// AllowedOrigins are glob patterns; empty echoes any Origin.
	AllowedOrigins []string
	TrustProxy     bool
	Recorder       RequestRecorder
	Logger         *slog.Logger
}

// Server is the API listener.
type Server struct {
	addr       string
	handler    http.Handler
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewHandler builds the gin engine with every route and middleware.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Auth == nil {
		return nil, oops.Code("WEB_INVALID").Errorf("authenticator is required")
	}
	origins, err := NewOriginMatcher(opts.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handlers{
		auth:       opts.Auth,
		ping:       opts.Ping,
		trustProxy: opts.TrustProxy,
		logger:     logger,
	}

	engine := gin.New()
	engine.Use(
		requestID(),
		recovery(logger),
		accessLog(logger, opts.Recorder),
		cors(origins),
	)

	api := engine.Group("/api")
	authGroup := api.Group("/auth", noStore())
	{
		authGroup.POST("/login", h.login)
		authGroup.GET("/me", h.requireSession(CookieSession), h.me)
		authGroup.POST("/logout", h.logout)
	}

	admin := api.Group("/admin", noStore(), h.requireSession(BearerSession), requireFullAccess())
	{
		admin.POST("/sessions/purge", h.purgeSessions)
	}

	api.GET("/system/health", noStore(), h.health)

	engine.NoRoute(func(c *gin.Context) {
		writeErrorMessage(c, http.StatusNotFound, "not found")
	})
	return engine, nil
}

// NewServer creates an API server listening on addr.
func NewServer(addr string, opts Options) (*Server, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, handler: handler, logger: logger}, nil
}

// Start listens and serves in the background. The returned channel receives
// a serve error, if any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.httpServer = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown api server").Wrap(err)
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

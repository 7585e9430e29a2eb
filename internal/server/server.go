// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/logger"
	"github.com/jeranaias/promptlab/internal/session"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// DefaultRunWait bounds how long POST /api/run waits for a run to settle
// before answering 202.
const DefaultRunWait = 2 * time.Minute

// ============================================================================
// SERVER
// ============================================================================

// Server serves one session over HTTP.
type Server struct {
	sess   *session.Session
	engine *gin.Engine

	mu     sync.Mutex
	server *http.Server
	closed bool

	log     *logger.Logger
	addr    string
	runWait time.Duration
	cors    *CORSConfig
	limiter *RateLimiter
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithRunWait sets how long POST /api/run waits for settle.
func WithRunWait(d time.Duration) Option {
	return func(s *Server) { s.runWait = d }
}

// WithCORS replaces the CORS configuration.
func WithCORS(cfg *CORSConfig) Option {
	return func(s *Server) { s.cors = cfg }
}

// WithRateLimiter replaces the per-IP rate limiter. nil disables limiting.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// New creates a server for sess.
func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		sess:    sess,
		addr:    "127.0.0.1:8484",
		runWait: DefaultRunWait,
		cors:    DefaultCORSConfig(),
		limiter: DefaultRateLimiter(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.With("component", "server")
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(RecoveryMiddleware(s.log), SecurityHeadersMiddleware(), CORSMiddleware(s.cors), LoggingMiddleware(s.log))
	if s.limiter != nil {
		r.Use(RateLimitMiddleware(s.limiter))
	}

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/state", s.handleState)

	api.GET("/template", s.handleGetTemplate)
	api.PUT("/template", s.handleReplaceTemplate)
	api.POST("/template/messages", s.handleAddTemplateMessage)
	api.PATCH("/template/messages/:id", s.handleEditTemplateMessage)
	api.DELETE("/template/messages/:id", s.handleDeleteTemplateMessage)

	api.GET("/variables", s.handleGetVariables)
	api.PATCH("/variables/:key", s.handleEditVariable)
	api.POST("/variables/:key/rename", s.handleRenameVariable)
	api.DELETE("/variables/:key", s.handleDeleteVariable)

	api.GET("/sources", s.handleGetSources)
	api.POST("/sources", s.handleCreateSource)
	api.PATCH("/sources/:id", s.handleUpdateSource)
	api.DELETE("/sources/:id", s.handleDeleteSource)

	api.GET("/conversation", s.handleGetConversation)
	api.DELETE("/conversation", s.handleClearConversation)
	api.POST("/conversation/followup", s.handleFollowUp)
	api.PATCH("/conversation/messages/:id", s.handleEditConversationMessage)
	api.DELETE("/conversation/messages/:id", s.handleDeleteConversationMessage)

	api.PATCH("/model-config", s.handleSetModelConfig)
	api.POST("/tools", s.handleAddTool)
	api.DELETE("/tools/:name", s.handleDeleteTool)

	api.POST("/run", s.handleRun)

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "not_found", errors.New("no such endpoint"))
	})
	s.engine = r
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address. It returns http.ErrServerClosed
// after Shutdown, including when Shutdown won the race with Start.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.runWait + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("server starting", "addr", s.addr, "version", Version)
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.log.Info("server shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// apiError is the error body.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	body := apiError{Message: err.Error(), Code: code}
	var e *errs.Error
	if errors.As(err, &e) {
		body.Field = e.Field
	}
	c.JSON(status, errorEnvelope{Error: body})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) (int, string) {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest, "validation"
	case errs.KindNotFound:
		return http.StatusNotFound, "not_found"
	case errs.KindConflict:
		return http.StatusConflict, "conflict"
	case errs.KindExecution:
		return http.StatusBadGateway, "execution"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= 500 {
		s.log.Warn("request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	respondError(c, status, code, err)
}

// dispatch runs one command and writes its result.
func (s *Server) dispatch(c *gin.Context, status int, cmd session.Command) {
	res, err := s.sess.Dispatch(c.Request.Context(), cmd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, res)
}

// bind decodes the JSON body into v, answering 400 on failure.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, http.StatusBadRequest, "validation", errs.Validation("decode body", "", err.Error()))
		return false
	}
	return true
}

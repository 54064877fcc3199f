// Package server provides the HTTP API over the aggregated publications,
// accounts, bookmarks, summaries and sync status.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/patchnotes/internal/config"
	"github.com/jonathan/patchnotes/internal/pipeline"
	"github.com/jonathan/patchnotes/internal/query"
	"github.com/jonathan/patchnotes/internal/server/middleware"
	"github.com/jonathan/patchnotes/internal/server/ratelimit"
	"github.com/jonathan/patchnotes/internal/types"
)

// SyncService triggers and reports sync cycles.
type SyncService interface {
	ForceSync(ctx context.Context) (*pipeline.CycleResult, error)
	Status(ctx context.Context) (*types.SyncStatus, error)
}

// Summarizer produces plain-language summaries.
type Summarizer interface {
	Record(ctx context.Context, kind types.Kind, id uuid.UUID) (string, error)
	Prompt(ctx context.Context, text string) (string, error)
}

// Config holds server configuration
type Config struct {
	Port      int
	Password  *config.PasswordConfig
	JWT       *config.JWTConfig
	RateLimit *ratelimit.Config
}

// Deps are the services the handlers call. Summarizer may be nil.
type Deps struct {
	Users      UserStore
	Query      *query.Service
	Sync       SyncService
	Summarizer Summarizer
	Now        func() time.Time
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	rateLimiter *ratelimit.Limiter
	authHandler *AuthHandler
	userService *UserService
	query       *query.Service
	sync        SyncService
	summarizer  Summarizer
	now         func() time.Time
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Users == nil || deps.Query == nil || deps.Sync == nil {
		return nil, fmt.Errorf("users, query and sync services are required")
	}
	if cfg.Password == nil || cfg.JWT == nil {
		return nil, fmt.Errorf("password and JWT configuration are required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		userService: NewUserService(deps.Users, cfg.Password),
		query:       deps.Query,
		sync:        deps.Sync,
		summarizer:  deps.Summarizer,
		now:         now,
	}
	jwtService := NewJWTService(cfg.JWT)
	s.authHandler = NewAuthHandler(s.userService, jwtService)

	requireAuth := middleware.AuthMiddleware(jwtService.AsTokenValidator())
	optionalAuth := middleware.OptionalAuth(jwtService.AsTokenValidator())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Data endpoints
	mux.HandleFunc("GET /data/latest", s.handleLatest)
	mux.HandleFunc("GET /data/latest/{days}", s.handleLatest)
	mux.HandleFunc("GET /data/{range}", s.handleDateRange)

	// Accounts
	mux.HandleFunc("POST /users/register", s.authHandler.Register)
	mux.HandleFunc("POST /users/login", s.authHandler.Login)
	mux.Handle("GET /users/me", requireAuth(http.HandlerFunc(s.authHandler.Me)))
	mux.Handle("GET /users/authenticated", optionalAuth(http.HandlerFunc(s.authHandler.Authenticated)))

	// Bookmarks
	mux.Handle("POST /bookmarks", requireAuth(http.HandlerFunc(s.handleToggleBookmark)))
	mux.Handle("GET /bookmarks", requireAuth(http.HandlerFunc(s.handleListBookmarks)))

	mux.HandleFunc("POST /summarize", s.handleSummarize)

	// Sync
	mux.HandleFunc("GET /sync/status", s.handleSyncStatus)
	mux.Handle("POST /sync", requireAuth(http.HandlerFunc(s.handleForceSync)))

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // reads may wait on a sync cycle
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer s.rateLimiter.Stop()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their limit with 429.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientID is the remote IP without its port.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

func rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":   "rate_limit_exceeded",
		"message": "Rate limit exceeded. Please try again later.",
		"limit":   info.Limit,
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Round(time.Second).Seconds())
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	log.Printf("[rate-limit] limit exceeded: limit=%d reset=%s", info.Limit, info.ResetTime.Format(time.RFC3339))
	jsonResponse(w, http.StatusTooManyRequests, response)
}

// jsonResponse writes a JSON response
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps err to a status. Internal errors are logged and hidden.
func writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Printf("[server] %v", err)
		errorResponse(w, status, http.StatusText(status))
		return
	}
	errorResponse(w, status, err.Error())
}

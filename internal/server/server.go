// Package server provides the HTTP API over stored tenders, run logs and exemplars.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/orchestrator"
	"github.com/jonathan/tender-radar/internal/server/middleware"
	"github.com/jonathan/tender-radar/internal/server/ratelimit"
	"github.com/jonathan/tender-radar/internal/store"
	"github.com/jonathan/tender-radar/internal/types"
)

// RunTrigger starts one ingestion and classification run.
type RunTrigger func(ctx context.Context) (orchestrator.RunResult, error)

// ExemplarManager is the similarity classifier's exemplar surface.
type ExemplarManager interface {
	AddExemplar(ctx context.Context, title, description string, confidence float64, source types.ExemplarSource) (types.PositiveExemplar, error)
	Exemplars(ctx context.Context) ([]types.PositiveExemplar, error)
	Rebuild(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Port  int
	Store store.Store
	// Exemplars and Trigger are optional; their endpoints answer 501 without them.
	Exemplars ExemplarManager
	Trigger   RunTrigger
	// Metrics serves GET /metrics when set.
	Metrics   http.Handler
	JWT       *JWTService
	RateLimit *ratelimit.Config
	Logger    logger.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	store       store.Store
	exemplars   ExemplarManager
	trigger     RunTrigger
	rateLimiter *ratelimit.Limiter
	log         logger.Logger

	// runCtx outlives the request that triggered the run.
	runCtx    context.Context
	runCancel context.CancelFunc
	running   atomic.Bool
	runs      sync.WaitGroup
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("server requires a store")
	}
	if cfg.JWT == nil {
		return nil, fmt.Errorf("server requires a JWT service")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:       cfg.Store,
		exemplars:   cfg.Exemplars,
		trigger:     cfg.Trigger,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		log:         logger.OrNop(cfg.Logger),
		runCtx:      runCtx,
		runCancel:   cancel,
	}

	auth := middleware.AuthMiddleware(cfg.JWT.AsTokenValidator())
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	mux.Handle("GET /tenders", protected(s.handleListTenders))
	mux.Handle("GET /tenders/{id}", protected(s.handleGetTender))
	mux.Handle("GET /runs", protected(s.handleListRuns))
	mux.Handle("POST /runs", protected(s.handleTriggerRun))
	mux.Handle("GET /exemplars", protected(s.handleListExemplars))
	mux.Handle("POST /exemplars", protected(s.handleAddExemplar))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully and waits
// for a triggered run to finish.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server starting", logger.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.close()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("Server stopped")
	return nil
}

// close cancels a triggered run, waits for it and stops the rate limiter.
func (s *Server) close() {
	s.runCancel()
	s.runs.Wait()
	s.rateLimiter.Stop()
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

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Error encoding JSON response", logger.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps err to a status code. Internal errors are logged and not echoed.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", logger.Error(err))
		s.errorResponse(w, status, "internal error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID uses the IP from RemoteAddr. X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":   "rate_limit_exceeded",
		"message": "Rate limit exceeded. Please try again later.",
		"limit":   info.Limit,
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}
	s.log.Warn("Rate limit exceeded", logger.Int("limit", info.Limit))
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

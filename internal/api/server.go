package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/config"
	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/remote"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
)

// CacheHeader reports whether a tree was served from the cache.
const CacheHeader = "X-Forage-Cache"

// Backend provides repository data to the handlers.
type Backend interface {
	FetchTree(ctx context.Context, owner, name string, refresh bool) ([]*repo.RepoNode, bool, error)
	CheckRepo(ctx context.Context, owner, name string) error
}

// Server is the HTTP surface.
type Server struct {
	backend Backend
	router  chi.Router
	server  *http.Server
}

// NewServer creates a server for backend listening on addr.
func NewServer(backend Backend, addr string) *Server {
	s := &Server{backend: backend}
	s.router = s.buildRouter()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Tree fetches of large repositories are slow.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting http server", "addr", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ratelimit", s.handleRateLimit)

	r.Route("/repo/{owner}/{repo}", func(r chi.Router) {
		r.Use(validateRef)
		r.Get("/", s.handleTree)
		r.Get("/check", s.handleCheck)
	})

	return r
}

// requestLogger logs each request and records it under its route pattern.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		dur := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, route, status, dur)
		logging.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", dur,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func validateRef(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, name := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
		if owner == "" || name == "" {
			respondError(w, http.StatusBadRequest, "Owner and repo parameters are required")
			return
		}
		if err := config.ValidateRepoRef(owner, name); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	owner, name := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	tree, cached, err := s.backend.FetchTree(r.Context(), owner, name, refresh)
	if err != nil {
		logging.Warn("tree fetch failed", "repo", owner+"/"+name, "error", err)
		code, msg := classify(err, "Failed to fetch repository data")
		respondError(w, code, msg)
		return
	}
	if tree == nil {
		tree = []*repo.RepoNode{}
	}

	if cached {
		w.Header().Set(CacheHeader, "hit")
	} else {
		w.Header().Set(CacheHeader, "miss")
	}
	respondJSON(w, http.StatusOK, tree)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	owner, name := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")

	if err := s.backend.CheckRepo(r.Context(), owner, name); err != nil {
		logging.Debug("repository check failed", "repo", owner+"/"+name, "error", err)
		code, msg := classify(err, "Failed to check repository")
		respondError(w, code, msg)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"exists": true})
}

type rateLimitResponse struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	rl, ok := s.backend.(remote.RateLimiter)
	if !ok {
		respondError(w, http.StatusNotImplemented, "Rate limits are not available")
		return
	}
	limit, err := rl.RateLimit(r.Context())
	if errors.Is(err, remote.ErrNoRateLimit) {
		respondError(w, http.StatusNotImplemented, "Rate limits are not available")
		return
	}
	if err != nil {
		code, msg := classify(err, "Failed to read rate limit")
		respondError(w, code, msg)
		return
	}
	respondJSON(w, http.StatusOK, rateLimitResponse{
		Limit:     limit.Limit,
		Remaining: limit.Remaining,
		Reset:     limit.Reset.UTC(),
	})
}

// classify maps an error to a status code and a client-facing message.
func classify(err error, fallback string) (int, string) {
	switch {
	case ferrors.Is(err, ferrors.ErrNotFound):
		return http.StatusNotFound, "Repository not found"
	case ferrors.Is(err, ferrors.ErrAccessDenied):
		return http.StatusForbidden, "Access denied to repository"
	case ferrors.Is(err, ferrors.ErrRateLimited):
		return http.StatusTooManyRequests, "Repository host rate limit exceeded"
	}
	return http.StatusInternalServerError, fallback
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}

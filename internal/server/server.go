// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bryan-buckman/dropwatch/internal/extractor"
	"github.com/bryan-buckman/dropwatch/internal/model"
	"github.com/bryan-buckman/dropwatch/internal/reconciler"
)

// Releases serves listings and items.
type Releases interface {
	GetListing(ctx context.Context) ([]model.ReleaseSummary, error)
	ScrapeListing(ctx context.Context) ([]model.ReleaseSummary, error)
	GetItem(ctx context.Context, id string) (model.Item, error)
}

// Maintainer runs background upkeep of the store.
type Maintainer interface {
	Start() error
	Stop()
	Trim(ctx context.Context) (trimmed, orphans int64, err error)
}

// Options configures a Server. Releases is required.
type Options struct {
	Releases Releases
	// Resale backs the /api/resale routes; optional.
	Resale extractor.Resale
	// Maintainer is started and stopped with the server; optional.
	Maintainer Maintainer
	// DatabaseType is reported by /healthz.
	DatabaseType string
	// StaticDir holds the front-end files; empty disables them.
	StaticDir string
	// Production hides internal error details from clients.
	Production bool
	Logger     *slog.Logger
}

// Server is the main HTTP server.
type Server struct {
	opts   Options
	logger *slog.Logger
	router chi.Router
	http   *http.Server
}

// New creates a new server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{opts: opts, logger: opts.Logger}
	s.setupRoutes()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealth)

	// API.
	r.Route("/api", func(r chi.Router) {
		r.Get("/listing", s.handleListing)
		r.Get("/nike-releases", s.handleListing)
		r.Get("/item/", s.handleItem)
		r.Get("/item/{id}", s.handleItem)
		r.Get("/shoe/", s.handleItem)
		r.Get("/shoe/{id}", s.handleItem)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/cleanup", s.handleCleanup)

		r.Route("/resale", func(r chi.Router) {
			r.Use(s.requireResale)
			r.Get("/search", s.handleResaleSearch)
			r.Get("/popular", s.handleResalePopular)
			r.Get("/prices", s.handleResalePrices)
		})
	})

	// Front end.
	if dir := s.opts.StaticDir; dir != "" && staticExists(dir) {
		r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/assets/img/misc/airforceshoes.png", http.StatusMovedPermanently)
		})
		r.Get("/shoe/{id}", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(dir, "shoe.html"))
		})
		r.Handle("/*", http.FileServer(http.Dir(dir)))
	}

	s.router = r
}

// Start starts the maintainer and serves HTTP on addr until Stop.
func (s *Server) Start(addr string) error {
	if m := s.opts.Maintainer; m != nil {
		if err := m.Start(); err != nil {
			return err
		}
	}
	s.http.Addr = addr
	s.logger.Info("server starting", "addr", addr, "database", s.opts.DatabaseType)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains HTTP connections and stops the maintainer.
func (s *Server) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if m := s.opts.Maintainer; m != nil {
		m.Stop()
	}
	return err
}

// --- API Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": s.opts.DatabaseType,
	})
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	listing, err := s.opts.Releases.GetListing(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Failed to fetch Nike releases", err)
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

// validID accepts every id model.ShoeID can produce, including "-<n>" for
// names without ASCII letters or digits.
var validID = regexp.MustCompile(`^[a-z0-9-]{1,200}$`)

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	id := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "id")))
	if id == "" {
		s.writeError(w, r, http.StatusBadRequest, "Missing shoe id", nil)
		return
	}
	if !validID.MatchString(id) {
		s.writeError(w, r, http.StatusBadRequest, "Invalid shoe id", nil)
		return
	}
	item, err := s.opts.Releases.GetItem(r.Context(), id)
	switch {
	case errors.Is(err, reconciler.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "Shoe not found", nil)
	case err != nil:
		s.writeError(w, r, http.StatusInternalServerError, "Failed to fetch shoe details", err)
	default:
		s.writeJSON(w, http.StatusOK, item)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	listing, err := s.opts.Releases.ScrapeListing(ctx)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Refresh failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"items":  len(listing),
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.opts.Maintainer == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "Cleanup not available", nil)
		return
	}
	trimmed, orphans, err := s.opts.Maintainer.Trim(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Cleanup failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"deleted": trimmed,
		"orphans": orphans,
	})
}

func (s *Server) requireResale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Resale == nil {
			s.writeError(w, r, http.StatusServiceUnavailable, "Resale data not configured", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleResaleSearch(w http.ResponseWriter, r *http.Request) {
	sneaker := strings.TrimSpace(r.URL.Query().Get("sneaker"))
	if sneaker == "" {
		s.writeError(w, r, http.StatusBadRequest, "sneaker is required", nil)
		return
	}
	limit, ok := queryLimit(r, 5, 12)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 12", nil)
		return
	}
	products, err := s.opts.Resale.Search(r.Context(), sneaker, limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Failed to search resale products", err)
		return
	}
	s.writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleResalePopular(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 10, 20)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 20", nil)
		return
	}
	products, err := s.opts.Resale.Popular(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Failed to fetch popular products", err)
		return
	}
	s.writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleResalePrices(w http.ResponseWriter, r *http.Request) {
	sneaker := strings.TrimSpace(r.URL.Query().Get("sneaker"))
	if sneaker == "" {
		s.writeError(w, r, http.StatusBadRequest, "sneaker is required", nil)
		return
	}
	product, err := s.opts.Resale.Prices(r.Context(), sneaker)
	switch {
	case errors.Is(err, extractor.ErrNoMatch):
		s.writeError(w, r, http.StatusNotFound, "No resale product matched", nil)
	case err != nil:
		s.writeError(w, r, http.StatusInternalServerError, "Failed to fetch resale prices", err)
	default:
		s.writeJSON(w, http.StatusOK, product)
	}
}

// --- Helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

// writeError sends {"error": msg}. Outside production the cause is echoed
// in "detail". Server-side failures are logged; client errors are not.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	body := map[string]string{"error": msg}
	if err != nil {
		if status >= http.StatusInternalServerError {
			s.logger.Error(msg,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"err", err)
		}
		if !s.opts.Production {
			body["detail"] = err.Error()
		}
	}
	s.writeJSON(w, status, body)
}

// queryLimit parses ?limit= within [1, max], defaulting to def.
func queryLimit(r *http.Request, def, max int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

// staticExists reports whether the static directory is usable.
func staticExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

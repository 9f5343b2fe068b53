// Package api exposes the trigger entrypoint and read endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/discovery"
	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/pipeline"
	"github.com/sells-group/menu-cli/internal/store"
)

// Triggerer starts extraction for a batch of candidates.
type Triggerer interface {
	Trigger(ctx context.Context, candidates []model.Candidate) (*pipeline.TriggerResult, error)
}

// Scanner discovers restaurants around a point and triggers them.
type Scanner interface {
	Scan(ctx context.Context, req discovery.ScanRequest) (*discovery.ScanResult, error)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store    store.Store
	trigger  Triggerer
	scanner  Scanner
	validate *validator.Validate
	origins  []string
}

// Option configures a Server.
type Option func(*Server)

// WithScanner enables POST /scan.
func WithScanner(s Scanner) Option {
	return func(srv *Server) { srv.scanner = s }
}

// WithCORSOrigins sets the allowed CORS origins. Defaults to "*".
func WithCORSOrigins(origins []string) Option {
	return func(srv *Server) {
		if len(origins) > 0 {
			srv.origins = origins
		}
	}
}

// NewServer creates a Server.
func NewServer(st store.Store, trigger Triggerer, opts ...Option) *Server {
	s := &Server{
		store:    st,
		trigger:  trigger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		origins:  []string{"*"},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/trigger", s.handleTrigger)
	r.Post("/scan", s.handleScan)
	r.Get("/costs", s.handleCosts)
	r.Get("/restaurants", s.handleListRestaurants)
	r.Route("/restaurants/{placeID}", func(r chi.Router) {
		r.Get("/", s.handleGetRestaurant)
		r.Get("/menu", s.handleGetMenu)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

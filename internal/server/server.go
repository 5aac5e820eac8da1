package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Harshalzarikar/Beaver-agent/internal/leads"
	beaverotel "github.com/Harshalzarikar/Beaver-agent/internal/otel"
	"github.com/Harshalzarikar/Beaver-agent/internal/pipeline"
)

const requestTimeout = 3 * time.Minute

// Server holds the HTTP API dependencies.
type Server struct {
	orchestrator *pipeline.Orchestrator
	store        *leads.Store
	apiKeys      map[string]string
	ratePerMin   int
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithRateLimit sets the per-client requests-per-minute bound.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.ratePerMin = perMinute }
}

// NewServer builds the API server. store may be nil; /leads then returns 404.
func NewServer(orchestrator *pipeline.Orchestrator, store *leads.Store, apiKeys map[string]string, opts ...Option) *Server {
	s := &Server{
		orchestrator: orchestrator,
		store:        store,
		apiKeys:      apiKeys,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(beaverotel.Middleware())

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.ratePerMin))
		// The pipeline carries its own deadline; this is the outer bound.
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/process-email", s.handleProcessEmail)
		r.Get("/leads", s.handleLeadsList)
	})
	return r
}

// Package api exposes the intelligence pipeline over HTTP: the trigger, the
// poll endpoint, the CRM editor and run history.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/store"
)

// Runner starts intelligence runs. *pipeline.Pipeline satisfies it.
type Runner interface {
	Start(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunAck, error)
}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	// TriggerRate is the sustained number of trigger requests per second
	// across all callers; TriggerBurst is the bucket size.
	TriggerRate  float64
	TriggerBurst int
}

// Server holds handler dependencies.
type Server struct {
	store    store.Store
	runner   Runner
	opts     Options
	validate *validator.Validate
	limiter  *rate.Limiter
}

// NewServer creates a Server. A non-positive TriggerRate disables the
// trigger rate limit.
func NewServer(st store.Store, runner Runner, opts Options) *Server {
	s := &Server{
		store:    st,
		runner:   runner,
		opts:     opts,
		validate: validator.New(),
	}
	if opts.TriggerRate > 0 {
		burst := opts.TriggerBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.TriggerRate), burst)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/prospects", func(r chi.Router) {
		r.With(s.rateLimit).Post("/intelligence", s.handleTrigger)
		r.Get("/", s.handleList)
		r.Get("/{website}", s.handleGet)
		r.Patch("/{website}", s.handlePatch)
		r.Get("/{website}/runs", s.handleRuns)
	})

	return r
}

// rateLimit rejects trigger requests beyond the configured budget.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			respondError(w, http.StatusTooManyRequests, "too many intelligence requests, retry shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

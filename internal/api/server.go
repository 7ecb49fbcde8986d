// Package api serves the approval gate, lead intake and run control over
// HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ahermangesh/Leads/internal/memory"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/orchestrator"
	"github.com/ahermangesh/Leads/internal/store"
)

// Pipeline is the orchestrator surface the API drives.
type Pipeline interface {
	Lead(ctx context.Context, id string) (*model.Lead, error)
	Stats() map[model.State]int
	Approve(ctx context.Context, id, by, note string) error
	Reject(ctx context.Context, id, by, note string) error
	Regenerate(ctx context.Context, id, feedback string) (*model.Lead, error)
	BulkApprove(ctx context.Context, pred orchestrator.Predicate, by string) (int, error)
	RecordOutcome(ctx context.Context, id string, kind model.OutcomeKind) (model.OutcomeEvent, error)
	RunLeads(ctx context.Context, leads []*model.Lead) (*model.RunReport, error)
}

// Recommender answers strategy recommendations and outcome breakdowns.
type Recommender interface {
	Recommend(industry string) memory.Recommendation
	Breakdown() memory.Breakdown
}

// Deps are the collaborators behind the routes. Metrics may be nil.
type Deps struct {
	Pipeline    Pipeline
	Store       store.Store
	Recommender Recommender
	Metrics     http.Handler
}

// Config configures the server.
type Config struct {
	CORSOrigins []string
	// BulkMinScore is the default min_score for bulk approval.
	BulkMinScore int
	// RunLimit caps how many pending leads one POST /runs picks up.
	RunLimit int
}

// Server holds the routes. Runs started over HTTP execute under the base
// context passed to New and are tracked until Wait returns.
type Server struct {
	deps Deps
	cfg  Config
	base context.Context
	now  func() time.Time

	running atomic.Bool
	runs    sync.WaitGroup
}

// New creates a Server.
func New(base context.Context, deps Deps, cfg Config) *Server {
	if cfg.BulkMinScore <= 0 {
		cfg.BulkMinScore = 70
	}
	if cfg.RunLimit <= 0 {
		cfg.RunLimit = 500
	}
	return &Server{deps: deps, cfg: cfg, base: base, now: time.Now}
}

// Wait blocks until runs started over HTTP have finished.
func (s *Server) Wait() { s.runs.Wait() }

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}
	r.Get("/stats", s.stats)
	r.Get("/recommendations", s.recommend)

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", s.listLeads)
		r.Post("/", s.intake)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getLead)
			r.Post("/approve", s.approve)
			r.Post("/reject", s.reject)
			r.Post("/regenerate", s.regenerate)
			r.Post("/outcomes", s.outcome)
		})
	})
	r.Post("/approvals/bulk", s.bulkApprove)
	r.Post("/runs", s.startRun)
	r.Get("/runs/{id}", s.getRun)

	return r
}

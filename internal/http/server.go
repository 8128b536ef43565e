package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/rate-the-washroom/internal/auth"
	"github.com/Clark-Hu/rate-the-washroom/internal/config"
	"github.com/Clark-Hu/rate-the-washroom/internal/geo"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
	"github.com/Clark-Hu/rate-the-washroom/internal/reviews"
	"github.com/Clark-Hu/rate-the-washroom/internal/store"
	"github.com/Clark-Hu/rate-the-washroom/internal/users"
)

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Store    *store.Store
	Repo     *repository.Repository
	Reviews  *reviews.Service
	Geo      *geo.Service
	Users    *users.Service
	Verifier *auth.Verifier
	Logger   zerolog.Logger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	store    *store.Store
	repo     *repository.Repository
	reviews  *reviews.Service
	geo      *geo.Service
	users    *users.Service
	verifier *auth.Verifier
	limiter  *RateLimiter
	logger   zerolog.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(corsHandler(cfg))
	r.Use(requestLogger(deps.Logger))
	r.Use(instrument)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:      cfg,
		store:    deps.Store,
		repo:     deps.Repo,
		reviews:  deps.Reviews,
		geo:      deps.Geo,
		users:    deps.Users,
		verifier: deps.Verifier,
		limiter:  NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, keyByIdentityOrIP),
		logger:   deps.Logger,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/health", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealthz)

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/washroom/{washroomID}", s.handleListFacilityReviews)

			r.Group(func(r chi.Router) {
				r.Use(s.requireIdentity)
				r.Get("/user/{userID}", s.handleListAuthorReviews)

				r.Group(func(r chi.Router) {
					r.Use(s.limiter.Handler)
					r.Post("/", s.handleSubmitReview)
					r.Patch("/{reviewID}", s.handleEditReview)
					r.Delete("/{reviewID}", s.handleDeleteReview)
				})
			})
		})

		r.Route("/washrooms", func(r chi.Router) {
			r.Get("/", s.handleFindWashrooms)
			r.Post("/", s.handleCreateWashroom)
			r.Get("/{washroomID}", s.handleGetWashroom)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(s.requireIdentity)
			r.Get("/", s.handleListUsers)
			r.Get("/me", s.handleGetMe)

			r.Group(func(r chi.Router) {
				r.Use(s.limiter.Handler)
				r.Post("/sync", s.handleSyncUser)
				r.Patch("/{userID}", s.handlePatchUser)
				r.Delete("/{userID}", s.handleDeleteUser)
			})
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

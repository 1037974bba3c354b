// Package httpapi is the HTTP and WebSocket producer: it authenticates
// users, turns uploads and questions into queue jobs and reports results.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/logging"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// JobQueue is the part of the queue the transport uses.
type JobQueue interface {
	Submit(job queue.Job) (*queue.Handle, error)
	Cancel(id string) bool
	Stats() queue.Stats
}

// Sessions is the part of the session manager the transport uses.
type Sessions interface {
	Preferences(ctx context.Context, user string) (session.Preferences, error)
	SetPreferences(ctx context.Context, user string, p session.Preferences) (session.Preferences, error)
	AcceptTerms(ctx context.Context, user string) (session.Consent, error)
	HasAcceptedTerms(ctx context.Context, user string) (bool, error)
	Forget(ctx context.Context, user string) error
}

type Options struct {
	Address   string
	JWTSecret []byte
	// MaxUploadBytes bounds a single media upload.
	MaxUploadBytes int64
	// MaxWait caps the ?wait= long-poll of a job status request.
	MaxWait time.Duration
	// JobTTL is how long finished jobs stay pollable.
	JobTTL time.Duration
}

type Server struct {
	address   string
	jwtSecret []byte
	maxUpload int64
	maxWait   time.Duration

	queue    JobQueue
	sessions Sessions
	jobs     *registry
	log      logging.Logger
	upgrader websocket.Upgrader
}

func NewServer(opts Options, q JobQueue, sessions Sessions, l logging.Logger) *Server {
	if l == nil {
		l = logging.Nop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 60 * time.Second
	}
	return &Server{
		address:   opts.Address,
		jwtSecret: opts.JWTSecret,
		maxUpload: opts.MaxUploadBytes,
		maxWait:   opts.MaxWait,
		queue:     q,
		sessions:  sessions,
		jobs:      newRegistry(opts.JobTTL),
		log:       l.With("module", "http_server"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		api.With(s.authenticate(true)).Get("/ws", s.handleWebSocket)

		api.Group(func(g chi.Router) {
			g.Use(s.authenticate(false))

			g.Post("/jobs", s.handleSubmit)
			g.Get("/jobs/{id}", s.handleJobStatus)
			g.Delete("/jobs/{id}", s.handleCancel)

			g.Post("/consent", s.handleConsent)
			g.Get("/preferences", s.handleGetPreferences)
			g.Put("/preferences", s.handlePutPreferences)
			g.Post("/session/reset", s.handleReset)
			g.Delete("/me", s.handleForget)
		})
	})

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "Starting HTTP server", "address", s.address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"queue":  s.queue.Stats(),
	})
}

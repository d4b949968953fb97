package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/netsight/reportd/internal/analytics"
	"github.com/netsight/reportd/internal/auth"
	"github.com/netsight/reportd/internal/report"
	"github.com/netsight/reportd/internal/store"
	"github.com/netsight/reportd/internal/syncer"
)

// Engine is the aggregation surface the API serves.
type Engine interface {
	Sites(ctx context.Context) ([]string, error)
	Devices(ctx context.Context, site string) ([]string, error)
	Filter(ctx context.Context, q store.RecordQuery) ([]report.Record, error)
	Summary(ctx context.Context, allowedSites []string) (analytics.Summary, error)
}

// UserStore is the account collection the API manages.
type UserStore interface {
	FindUser(ctx context.Context, username string) (*store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	DeleteUser(ctx context.Context, username string) error
	SaveDashboard(ctx context.Context, username string, config []map[string]any) error
}

// Ledger exposes the administrative cache reset.
type Ledger interface {
	ResetLedger(ctx context.Context) (int64, error)
}

// Syncer triggers background syncs and exposes their status.
type Syncer interface {
	Trigger()
	Status() *syncer.Status
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

type Server struct {
	logger *zap.Logger

	engine Engine
	users  UserStore
	ledger Ledger
	syncer Syncer
	tokens *auth.TokenIssuer
}

func New(engine Engine, users UserStore, ledger Ledger, sync Syncer, tokens *auth.TokenIssuer, opts ...Option) *Server {
	s := &Server{
		logger: zap.NewNop(),
		engine: engine,
		users:  users,
		ledger: ledger,
		syncer: sync,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.health)
	r.Post("/api/auth/login", s.login)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/api/load", s.load)
		r.Post("/api/analyze", s.analyze)
		r.Get("/api/summary", s.summary)
		r.Get("/api/sync/status", s.syncStatus)
		r.Post("/api/user/dashboard", s.saveDashboard)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)

			r.Get("/api/admin/users", s.listUsers)
			r.Post("/api/admin/users", s.createUser)
			r.Delete("/api/admin/users/{username}", s.deleteUser)
			r.Post("/api/admin/cache/reset", s.resetCache)
		})
	})

	return r
}

func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	s.logger.Info("starting http server", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				zap.String("from", r.RemoteAddr),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"detail": message})
}

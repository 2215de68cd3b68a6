// Package httpapi exposes the gatepass services over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/service"
)

// maxRequestBody caps request bodies. The largest payloads are pass
// applications and QR scans, both well under 1 KiB.
const maxRequestBody = 64 << 10

const shutdownTimeout = 10 * time.Second

type Dependencies struct {
	Logger   *slog.Logger
	Addr     string
	Env      string
	Services *service.Services
	Tokens   *auth.Issuer

	RateLimitRPS     int32
	RateLimitBurst   int32
	OperationTimeout time.Duration
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	router     *chi.Mux
	svcs       *service.Services
	tokens     *auth.Issuer
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		logger: d.Logger,
		router: chi.NewRouter(),
		svcs:   d.Services,
		tokens: d.Tokens,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogging(d.Logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(SecurityHeaders(d.Env))
	s.router.Use(RateLimit(d.RateLimitRPS, d.RateLimitBurst))
	s.router.Use(RequestSizeLimit(maxRequestBody))
	s.router.Use(OperationTimeout(d.OperationTimeout))

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleUserLogin)
		r.Post("/gate-login", s.handleGateLogin)
		r.Get("/sites", s.handleSites)
		r.Get("/purposes", s.handlePurposes)

		r.With(Authenticate(s.tokens, auth.RoleUser, auth.RoleGate, auth.RoleAdmin)).
			Get("/me", s.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(s.tokens, auth.RoleUser))
			r.Post("/passes", s.handleCreatePass)
			r.Get("/passes", s.handleListMyPasses)
			r.Get("/passes/{passID}/qr", s.handleRequestQR)
		})

		r.With(Authenticate(s.tokens, auth.RoleGate)).
			Post("/scan", s.handleScan)
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(Authenticate(s.tokens, auth.RoleAdmin))

		r.Get("/passes/pending", s.handleListPending)
		r.Get("/passes", s.handleListPasses)
		r.Get("/passes/{passID}", s.handleGetPass)
		r.Post("/passes/{passID}/approve", s.handleApprove)
		r.Post("/passes/{passID}/reject", s.handleReject)
		r.Post("/passes/{passID}/revoke", s.handleRevoke)

		r.Post("/pause", s.handleGlobalPause)
		r.Post("/sites/{siteID}/pause", s.handleSitePause)
		r.Get("/status", s.handleStatus)

		r.Post("/gates", s.handleRegisterGate)
		r.Get("/gates", s.handleListGates)
		r.Post("/users", s.handleRegisterUser)
		r.Get("/users", s.handleListUsers)
		r.Get("/principals/{kind}/{id}/key", s.handlePublicKey)

		r.Get("/audit", s.handleAuditLog)
		r.Get("/statistics", s.handleStatistics)
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("http listening", slog.String("address", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server shutdown complete")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

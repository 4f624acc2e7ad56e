package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rocketscienceinc/tictactoe-sync/internal/config"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
)

const shutdownTimeout = 5 * time.Second

type gameUseCase interface {
	GetState(ctx context.Context, sessionID string) (entity.GameState, error)
	MakeTurn(ctx context.Context, sessionID string, cell int) (entity.GameState, error)
	Reset(ctx context.Context, sessionID string) (entity.GameState, error)
}

type Server struct {
	logger  *slog.Logger
	router  chi.Router
	session config.Session
	game    gameUseCase
}

func New(logger *slog.Logger, session config.Session, game gameUseCase) *Server {
	server := &Server{
		logger:  logger.With("component", "rest"),
		router:  chi.NewRouter(),
		session: session,
		game:    game,
	}

	server.router.Use(middleware.RequestID)
	server.router.Use(middleware.Recoverer)
	server.router.Use(middleware.Timeout(10 * time.Second))
	server.router.Use(server.logRequests)

	server.router.Get("/ping", server.handlePing)

	server.router.Route("/api", func(r chi.Router) {
		r.Use(server.withSession)

		r.Get("/state", server.handleState)
		r.Post("/move", server.handleMove)
		r.Post("/reset", server.handleReset)
	})

	return server
}

// Handler - exposes the router, mostly for tests.
func (that *Server) Handler() http.Handler {
	return that.router
}

// Start - serves HTTP on port until ctx is canceled, then shuts down gracefully.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped with error: %w", err)
	}

	return nil
}

func (that *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		that.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

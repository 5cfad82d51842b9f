package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 5 * time.Second

// NewRouter wires the page, the JSON API and the websocket endpoint.
func NewRouter(logger *slog.Logger, sessions sessionReader, searcher moveSearcher, ws http.Handler) http.Handler {
	r := chi.NewRouter()
	h := newHandlers(logger, sessions, searcher)

	r.Get("/", h.index)
	r.Get("/ping", NewPingHandler().PingHandler)
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", h.search)
		r.Get("/sessions/{id}", h.session)
	})

	if ws != nil {
		r.Handle("/ws", ws)
	}

	return r
}

// Start serves handler on port until ctx is canceled, then shuts the server down gracefully.
func Start(ctx context.Context, port string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

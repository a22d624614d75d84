// ABOUTME: HTTP server lifecycle for the API
// ABOUTME: Serves until the context is cancelled, then shuts down gracefully

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("http api stopped")
	return nil
}

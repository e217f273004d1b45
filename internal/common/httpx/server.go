package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"
)

type Server struct{ *http.Server }

func New(addr string, h http.Handler) *Server {
	return &Server{Server: &http.Server{
		Addr:        addr,
		Handler:     h,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}}
}

// Run serves until the context is cancelled, then shuts down gracefully.
// Websocket connections are closed by their owning handlers, so the
// shutdown window only needs to cover plain request handlers.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()
	select {
	case <-ctx.Done():
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx2)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// README: API gateway; owns the HTTP server lifecycle and delegates to module services.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"carpool/internal/infra"
	"carpool/internal/logger"
	"carpool/internal/modules/location"
	"carpool/internal/modules/route"
)

type ServerDeps struct {
	Routes *route.Service
	// Location is nil when Redis is not configured.
	Location *location.Service
	Verifier infra.TokenVerifier
	Hub      *Hub
	Metrics  http.Handler
	Log      logger.Logger
}

type Server struct {
	srv *http.Server
	log logger.Logger
}

func NewServer(addr string, deps ServerDeps) *Server {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: deps.Log,
	}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a collector under /metrics. Stop blocks until the server
// has shut down, so it can be tracked as a background loop.
type Server struct {
	addr      string
	collector *Collector
	logger    logger.Logger

	srv      *http.Server
	done     chan struct{}
	err      error
	stopOnce sync.Once
}

func NewServer(addr string, c *Collector, log logger.Logger) *Server {
	return &Server{addr: addr, collector: c, logger: log, done: make(chan struct{})}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.New().Wrap(ErrServe, err)
	}
	s.serve(ln)
	return nil
}

func (s *Server) serve(ln net.Listener) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.collector.Handler())

	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.err = errors.New().Wrap(ErrServe, err)
		}
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")
}

// Stop shuts the server down and waits for it to exit. It is a no-op when
// the server never started.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}

	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Metrics endpoint shutdown incomplete")
		}
	})
	<-s.done

	if s.err != nil {
		s.logger.Error().Err(s.err).Msg("Metrics endpoint stopped")
	}
}

// Done is closed once the server goroutine has exited.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err reports a serve failure. Valid after Done is closed.
func (s *Server) Err() error {
	return s.err
}

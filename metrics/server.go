package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const readHeaderTimeout = 5 * time.Second

// Server exposes /metrics on its own listener
type Server struct {
	logger *zap.Logger
	server *http.Server
	addr   string
}

// NewServer creates a metrics server on port. Port 0 disables it.
func NewServer(logger *zap.Logger, m *Metrics, port int) *Server {
	if port == 0 {
		return &Server{logger: logger}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start binds the listener and serves in the background
func (s *Server) Start(_ context.Context) error {
	if s.server == nil {
		s.logger.Info("metrics server disabled")
		return nil
	}

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}
	s.addr = listener.Addr().String()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	s.logger.Info("metrics server started", zap.String("addr", s.addr))
	return nil
}

// Stop shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	return s.addr
}

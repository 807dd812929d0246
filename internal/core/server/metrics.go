package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// MetricsServer serves /metrics and /healthz over plain HTTP.
type MetricsServer struct {
	server *http.Server
	logger zerolog.Logger
}

// NewMetricsServer creates the HTTP server on addr with handler mounted at /metrics.
func NewMetricsServer(addr string, handler http.Handler, logger zerolog.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start listens on the configured address and serves until Shutdown.
func (m *MetricsServer) Start() error {
	listener, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", m.server.Addr, err)
	}
	return m.Serve(listener)
}

// Serve accepts connections on listener. Returns nil after Shutdown.
func (m *MetricsServer) Serve(listener net.Listener) error {
	m.logger.Info().Str("addr", listener.Addr().String()).Msg("metrics server listening")
	if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting scrapes and waits for in-flight ones.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

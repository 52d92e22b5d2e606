// Package metrics serves the process's default Prometheus registry over
// HTTP, adapted from shared/prometheus.Service: dropped the multi-service
// registry healthz/goroutinez handlers this agent has no use for (it is
// one CLI process driving one loop, not a node with subsystems to poll),
// kept the bare /metrics mux. The sync store registers its own boltdb
// collector against this same default registry when it opens, so
// starting this service is enough to expose it.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "metrics")

// Service serves /metrics on addr.
type Service struct {
	server *http.Server
}

// NewService builds a metrics service bound to addr (e.g. "127.0.0.1:9090").
func NewService(addr string) *Service {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Service{server: &http.Server{Addr: addr, Handler: mux}}
}

// Start begins serving in the background. A bind failure is logged, not
// fatal: metrics are diagnostic, never load bearing for the mining, exit,
// or claim loops.
func (s *Service) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
}

// Stop gracefully shuts the metrics server down.
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Package opsserver runs a small loopback-bound HTTP server exposing
// /healthz and /metrics, the ambient observability surface every
// worker process carries regardless of the judging protocol it speaks.
package opsserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imxieyi/carp-judge-worker/internal/logging"
)

// Metrics are the counters/gauges the scheduler and control plane
// update as they process work.
type Metrics struct {
	CasesCompleted  *prometheus.CounterVec
	CasesInFlight   prometheus.Gauge
	ReconnectsTotal prometheus.Counter
}

// NewMetrics registers a fresh Metrics set against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		CasesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carp_judge_cases_completed_total",
			Help: "Completed judging cases by verdict.",
		}, []string{"verdict"}),
		CasesInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "carp_judge_cases_in_flight",
			Help: "Cases currently executing in a judge slot.",
		}),
		ReconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carp_judge_reconnects_total",
			Help: "Control-plane reconnect attempts since process start.",
		}),
	}
}

// CaseStarted records a Case entering a judge slot.
func (m *Metrics) CaseStarted() {
	m.CasesInFlight.Inc()
}

// CaseFinished records a Case leaving a judge slot with the given
// verdict label ("accepted" or "rejected").
func (m *Metrics) CaseFinished(verdict string) {
	m.CasesInFlight.Dec()
	m.CasesCompleted.WithLabelValues(verdict).Inc()
}

// Reconnected records one control-plane reconnect attempt.
func (m *Metrics) Reconnected() {
	m.ReconnectsTotal.Inc()
}

// Server is the ops HTTP server.
type Server struct {
	httpSrv *http.Server
}

// New builds a gin-based ops server bound to addr, matching the
// teacher platform's health-endpoint + Prometheus-middleware wiring.
func New(addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{httpSrv: &http.Server{Addr: addr, Handler: router}}
}

// Run starts serving and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			logging.S().Warnw("opsserver: shutdown error", "error", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

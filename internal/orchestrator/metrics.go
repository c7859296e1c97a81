package orchestrator

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the Orchestrator's fleet health on a private registry,
// grounded on chidi150c-coinbase/metrics.go's labeled counter/gauge style.
// A private Registry (rather than the default global one via
// prometheus.MustRegister) lets each Supervisor own its own metrics
// instance without colliding with another in the same test binary.
type Metrics struct {
	Registry *prometheus.Registry

	serviceUp     *prometheus.GaugeVec
	restartsTotal *prometheus.CounterVec
	uptimeSeconds *prometheus.GaugeVec
	budgetCalls   prometheus.Gauge
}

// NewMetrics builds and registers the Orchestrator's metric family.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		serviceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "momentum_service_up",
			Help: "1 if the named service is currently running, 0 otherwise.",
		}, []string{"service"}),
		restartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "momentum_service_restarts_total",
			Help: "Count of times the Orchestrator restarted a crashed service.",
		}, []string{"service"}),
		uptimeSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "momentum_service_uptime_seconds",
			Help: "Seconds since the named service's current process was started.",
		}, []string{"service"}),
		budgetCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "momentum_rate_budget_tokens_available",
			Help: "Tokens currently available in the shared cross-process broker rate budget.",
		}),
	}
	m.Registry.MustRegister(m.serviceUp, m.restartsTotal, m.uptimeSeconds, m.budgetCalls)
	return m
}

// SetBudgetTokens records the shared rate budget's currently available
// tokens, so the fleet's headroom against the broker rate limit is visible
// next to its restart/uptime metrics.
func (m *Metrics) SetBudgetTokens(tokens float64) {
	m.budgetCalls.Set(tokens)
}

// Handler returns the http.Handler serving this Metrics' registry in
// Prometheus text exposition format, for a caller to mount under /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server on addr exposing Handler at /metrics, and
// shuts it down when ctx is canceled. It runs until ctx is done or
// ListenAndServe fails for a reason other than the server being closed.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (m *Metrics) markRunning(service string) {
	m.serviceUp.WithLabelValues(service).Set(1)
}

func (m *Metrics) markDown(service string) {
	m.serviceUp.WithLabelValues(service).Set(0)
}

func (m *Metrics) incRestart(service string) {
	m.restartsTotal.WithLabelValues(service).Inc()
}

func (m *Metrics) setUptime(service string, seconds float64) {
	m.uptimeSeconds.WithLabelValues(service).Set(seconds)
}

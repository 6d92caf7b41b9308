package metrics

import (
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Prometheus exports runtime metrics:
//
//	<ns>_calls_total{op,status}       counter
//	<ns>_call_duration_seconds{op}    histogram
//	<ns>_live_models                  gauge
type Prometheus struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	live     prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prometheus{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Runtime operations by outcome",
		}, []string{"op", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Latency of runtime operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_models",
			Help:      "Models currently allocated",
		}),
	}

	for _, c := range []prometheus.Collector{p.calls, p.duration, p.live} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// RecordCall implements Collector.
func (p *Prometheus) RecordCall(op string, d time.Duration, err error) {
	p.calls.WithLabelValues(op, Status(err)).Inc()
	p.duration.WithLabelValues(op).Observe(d.Seconds())
}

// SetLiveModels implements Collector.
func (p *Prometheus) SetLiveModels(n int) {
	p.live.Set(float64(n))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve binds addr and serves /metrics on it in the background. Bind
// failures are returned; later serve failures are logged to log. The
// returned server's Addr holds the bound address. The caller shuts it down
// with Close or Shutdown.
func Serve(addr string, g prometheus.Gatherer, log *zap.Logger) (*http.Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("metrics endpoint stopped", zap.String("listen", srv.Addr), zap.Error(err))
		}
	}()
	return srv, nil
}

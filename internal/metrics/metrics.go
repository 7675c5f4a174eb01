// Package metrics mirrors the aggregator's own statistics as Prometheus
// counters and a latency histogram, for live observability during a run.
//
// It is the domain-stack descendant of the teacher's
// github.com/prometheus/client_golang dependency: the teacher wired
// Prometheus into its gRPC control-plane middleware
// (api/grpc/middleware); this program has no control plane, so the same
// library is repointed at the one process that actually runs — the load
// generator itself — to expose the counts the aggregator computes anyway
// while the run is still in flight.
//
// A nil *Recorder is always safe to call: every method is a no-op on a
// nil receiver, so call sites never need to branch on whether metrics
// were enabled.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the counters and histogram for one run.
type Recorder struct {
	registry *prometheus.Registry

	sent     prometheus.Counter
	answered prometheus.Counter
	timedOut prometheus.Counter
	rcodes   *prometheus.CounterVec
	latency  prometheus.Histogram
}

// New creates a Recorder with its own registry, so one run's metrics never
// collide with another process's default registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.sent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dns64perf_queries_sent_total",
		Help: "Total AAAA queries sent.",
	})
	r.answered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dns64perf_queries_answered_total",
		Help: "Total queries that received a correlated reply.",
	})
	r.timedOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dns64perf_queries_timedout_total",
		Help: "Total queries that never received a reply within the timeout.",
	})
	r.rcodes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dns64perf_rcode_total",
		Help: "Replies received, by RCODE.",
	}, []string{"rcode"})
	r.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dns64perf_latency_seconds",
		Help:    "Round-trip latency of answered queries.",
		Buckets: prometheus.DefBuckets,
	})

	r.registry.MustRegister(r.sent, r.answered, r.timedOut, r.rcodes, r.latency)
	return r
}

// ObserveSent records one query transmission.
func (r *Recorder) ObserveSent() {
	if r == nil {
		return
	}
	r.sent.Inc()
}

// ObserveAnswered records one correlated reply, with its RCODE and
// round-trip latency.
func (r *Recorder) ObserveAnswered(rcode uint8, latency time.Duration) {
	if r == nil {
		return
	}
	r.answered.Inc()
	r.rcodes.WithLabelValues(strconv.Itoa(int(rcode))).Inc()
	r.latency.Observe(latency.Seconds())
}

// ObserveTimedOut records one case that drained without a reply.
func (r *Recorder) ObserveTimedOut() {
	if r == nil {
		return
	}
	r.timedOut.Inc()
}

// Handler returns the http.Handler that serves this Recorder's metrics in
// the Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr, and stops it when
// ctx is canceled. It blocks until the server stops, returning nil on a
// clean shutdown.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	if r == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve %s: %w", addr, err)
	case <-ctx.Done():
		return srv.Close()
	}
}

// internal/metrics/collector.go
// Package metrics exposes client-side prometheus metrics for server orchestration,
// HTTP traffic and chat streaming.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kolosalctl"

// Collector owns a private registry and every metric the client records.
type Collector struct {
	registry *prometheus.Registry

	healthChecks    *prometheus.CounterVec
	downloadPolls   *prometheus.CounterVec
	streamChunks    prometheus.Counter
	streamMalformed prometheus.Counter
	serverSpawns    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	chatTTFT        *prometheus.HistogramVec
	chatTPS         *prometheus.HistogramVec
}

var (
	_ kolosal.Recorder   = (*Collector)(nil)
	_ transport.Observer = (*Collector)(nil)
)

// NewCollector creates the metrics and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Health checks sent to the server, by result.",
		}, []string{"result"}),
		downloadPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_polls_total",
			Help:      "Download progress polls, by reported state.",
		}, []string{"state"}),
		streamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Text fragments received from streaming completions.",
		}),
		streamMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_malformed_total",
			Help:      "Stream fragments skipped because they did not decode.",
		}),
		serverSpawns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_spawns_total",
			Help:      "Server process launches, by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests sent to the server.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),
		chatTTFT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_ttft_seconds",
			Help:      "Time to first streamed token.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		chatTPS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_tokens_per_second",
			Help:      "Generation speed reported at the end of a stream.",
			Buckets:   prometheus.LinearBuckets(5, 5, 12),
		}, []string{"provider"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.healthChecks,
		c.downloadPolls,
		c.streamChunks,
		c.streamMalformed,
		c.serverSpawns,
		c.httpRequests,
		c.httpDuration,
		c.chatTTFT,
		c.chatTPS,
	)
	return c
}

// HealthCheck implements kolosal.Recorder.
func (c *Collector) HealthCheck(healthy bool) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	c.healthChecks.WithLabelValues(result).Inc()
}

// DownloadPoll implements kolosal.Recorder.
func (c *Collector) DownloadPoll(state string) { c.downloadPolls.WithLabelValues(state).Inc() }

// StreamChunk implements kolosal.Recorder.
func (c *Collector) StreamChunk() { c.streamChunks.Inc() }

// StreamMalformed implements kolosal.Recorder.
func (c *Collector) StreamMalformed() { c.streamMalformed.Inc() }

// ServerSpawn implements kolosal.Recorder.
func (c *Collector) ServerSpawn(outcome string) { c.serverSpawns.WithLabelValues(outcome).Inc() }

// ObserveRequest implements transport.Observer. A status of 0 means the request never
// got a response.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	c.httpRequests.WithLabelValues(method, route, code).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveChat records the speed figures of one finished stream. ttft is in seconds.
func (c *Collector) ObserveChat(provider string, ttft, tps float64) {
	if ttft > 0 {
		c.chatTTFT.WithLabelValues(provider).Observe(ttft)
	}
	if tps > 0 {
		c.chatTPS.WithLabelValues(provider).Observe(tps)
	}
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger().Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

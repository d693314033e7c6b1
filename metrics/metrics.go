// Package metrics records Prometheus metrics for dispatches, provider calls,
// synthesis tiers and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const namespace = "xoswarm"

// Collector holds the metric vectors. It satisfies xoswarm.Recorder.
type Collector struct {
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	dispatches       prometheus.Counter
	dispatchSize     prometheus.Histogram
	dispatchDuration prometheus.Histogram
	synthesisTotal   *prometheus.CounterVec
	synthesisLatency *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the metrics with reg.
func NewCollector(reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	llmBuckets := []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.providerCalls = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider calls by outcome",
		},
		[]string{"provider", "status"},
	)
	c.providerDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   llmBuckets,
		},
		[]string{"provider"},
	)
	c.dispatches = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatches_total",
		Help:      "Fan-out dispatches",
	})
	c.dispatchSize = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_providers",
		Help:      "Providers per dispatch",
		Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
	})
	c.dispatchDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Wall time of a fan-out dispatch in seconds",
		Buckets:   llmBuckets,
	})
	c.synthesisTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Syntheses by the tier that produced the answer",
		},
		[]string{"tier"},
	)
	c.synthesisLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Synthesis cascade duration in seconds",
			Buckets:   llmBuckets,
		},
		[]string{"tier"},
	)
	c.httpRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.logger.Debug("metrics registered")
	return c
}

// ObserveProvider records one provider call.
func (c *Collector) ObserveProvider(provider string, failed bool, elapsed time.Duration) {
	status := "success"
	if failed {
		status = "error"
	}
	c.providerCalls.WithLabelValues(provider, status).Inc()
	c.providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveDispatch records one completed dispatch.
func (c *Collector) ObserveDispatch(providers int, elapsed time.Duration) {
	c.dispatches.Inc()
	c.dispatchSize.Observe(float64(providers))
	c.dispatchDuration.Observe(elapsed.Seconds())
}

// ObserveSynthesis records which tier produced an answer.
func (c *Collector) ObserveSynthesis(tier string, elapsed time.Duration) {
	c.synthesisTotal.WithLabelValues(tier).Inc()
	c.synthesisLatency.WithLabelValues(tier).Observe(elapsed.Seconds())
}

// Middleware counts requests to next under the fixed label path.
func (c *Collector) Middleware(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers flush through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes used as the "outcome" label.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Recorder owns the Prometheus collectors for one service instance.
type Recorder struct {
	registry               *prometheus.Registry
	handler                http.Handler
	commands               *prometheus.CounterVec
	eventsAppended         *prometheus.CounterVec
	reconstructionFailures prometheus.Counter
	requestDuration        *prometheus.HistogramVec
	requestTotal           *prometheus.CounterVec
}

// New registers the registration service collectors in a private registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursereg_commands_total",
		Help: "Commands handled by outcome",
	}, []string{"command", "outcome"})

	eventsAppended := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursereg_events_appended_total",
		Help: "Events appended to the event store",
	}, []string{"type"})

	reconstructionFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursereg_reconstruction_failures_total",
		Help: "Aggregate replays that failed on a corrupt stream",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coursereg_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursereg_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "coursereg_goroutines",
		Help: "Number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(commands, eventsAppended, reconstructionFailures, requestDuration, requestTotal, goroutines)

	return &Recorder{
		registry:               registry,
		handler:                promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		commands:               commands,
		eventsAppended:         eventsAppended,
		reconstructionFailures: reconstructionFailures,
		requestDuration:        requestDuration,
		requestTotal:           requestTotal,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// CommandHandled counts one command outcome.
func (r *Recorder) CommandHandled(command, outcome string) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(command, outcome).Inc()
}

// EventAppended counts one appended event.
func (r *Recorder) EventAppended(eventType string) {
	if r == nil {
		return
	}
	r.eventsAppended.WithLabelValues(eventType).Inc()
}

// ReconstructionFailed counts one failed replay.
func (r *Recorder) ReconstructionFailed() {
	if r == nil {
		return
	}
	r.reconstructionFailures.Inc()
}

// ObserveHTTPRequest records request count and latency.
func (r *Recorder) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	r.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	r.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ragRequestsTotal   *prometheus.CounterVec
	ragGroundedTotal   *prometheus.CounterVec
	ragUngroundedTotal *prometheus.CounterVec
	ragRetrievedChunks *prometheus.HistogramVec
	ragDuration        *prometheus.HistogramVec

	ingestTotal    *prometheus.CounterVec
	ingestChunks   *prometheus.HistogramVec
	ingestDuration *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ragRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "rag",
			Name:      "requests_total",
			Help:      "Total successful answer requests.",
		},
		[]string{"service"},
	)
	ragGroundedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "rag",
			Name:      "grounded_total",
			Help:      "Total answers backed by at least one retrieved chunk.",
		},
		[]string{"service"},
	)
	ragUngroundedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "rag",
			Name:      "ungrounded_total",
			Help:      "Total answers produced without retrieval context.",
		},
		[]string{"service"},
	)
	ragRetrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Distribution of prompted chunks per successful answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	ragDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "Answer pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total synchronous document ingestions by status.",
		},
		[]string{"service", "status"},
	)
	ingestChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "ingest",
			Name:      "chunks_per_document",
			Help:      "Distribution of chunks produced per ingested document.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
		[]string{"service"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Synchronous ingest pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ragRequestsTotal,
		ragGroundedTotal,
		ragUngroundedTotal,
		ragRetrievedChunks,
		ragDuration,
		ingestTotal,
		ingestChunks,
		ingestDuration,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		ragRequestsTotal:   ragRequestsTotal,
		ragGroundedTotal:   ragGroundedTotal,
		ragUngroundedTotal: ragUngroundedTotal,
		ragRetrievedChunks: ragRetrievedChunks,
		ragDuration:        ragDuration,
		ingestTotal:        ingestTotal,
		ingestChunks:       ingestChunks,
		ingestDuration:     ingestDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordAnswer(service string, grounded bool, sourceCount int, duration time.Duration) {
	m.ragRequestsTotal.WithLabelValues(service).Inc()
	m.ragRetrievedChunks.WithLabelValues(service).Observe(float64(sourceCount))
	m.ragDuration.WithLabelValues(service).Observe(duration.Seconds())

	if grounded {
		m.ragGroundedTotal.WithLabelValues(service).Inc()
		return
	}
	m.ragUngroundedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordIngest(service string, chunks int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ingestTotal.WithLabelValues(service, status).Inc()
	m.ingestDuration.WithLabelValues(service).Observe(duration.Seconds())
	if err == nil {
		m.ingestChunks.WithLabelValues(service).Observe(float64(chunks))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

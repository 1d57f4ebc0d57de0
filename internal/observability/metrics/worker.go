package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge

	batchRunsTotal      *prometheus.CounterVec
	batchDocumentsTotal *prometheus.CounterVec
	batchDuration       *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed reindex events by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mrag",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total completed batch update runs by status.",
		},
		[]string{"service", "status"},
	)
	batchDocumentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "batch",
			Name:      "documents_total",
			Help:      "Documents touched by batch runs, by outcome.",
		},
		[]string{"service", "outcome"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Batch run duration in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		batchRunsTotal,
		batchDocumentsTotal,
		batchDuration,
	)

	return &WorkerMetrics{
		registry:            registry,
		processTotal:        processTotal,
		processDuration:     processDuration,
		processInFlight:     processInFlight,
		batchRunsTotal:      batchRunsTotal,
		batchDocumentsTotal: batchDocumentsTotal,
		batchDuration:       batchDuration,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) FinishBatch(service string, duration time.Duration, updated, skipped, failed int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.batchRunsTotal.WithLabelValues(service, status).Inc()
	m.batchDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.batchDocumentsTotal.WithLabelValues(service, "updated").Add(float64(updated))
	m.batchDocumentsTotal.WithLabelValues(service, "skipped").Add(float64(skipped))
	m.batchDocumentsTotal.WithLabelValues(service, "failed").Add(float64(failed))
}
